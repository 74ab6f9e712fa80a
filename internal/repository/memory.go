package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

type memoryCollection struct {
	order   []string
	records map[string]Record
}

type snapshotRecord struct {
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// MemoryBackend держит коллекции в памяти. Если задан dir, после каждой
// записи коллекция целиком сохраняется в <dir>/<collection>.json.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	dir         string
	log         logger.Logger
}

func NewMemoryBackend(dir string, log logger.Logger) (*MemoryBackend, error) {
	b := &MemoryBackend{
		collections: make(map[string]*memoryCollection),
		dir:         dir,
		log:         log,
	}
	if dir == "" {
		return b, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := b.loadSnapshots(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MemoryBackend) loadSnapshots() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("read data dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		raw, err := os.ReadFile(filepath.Join(b.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read snapshot %s: %w", name, err)
		}
		var recs []snapshotRecord
		if err := json.Unmarshal(raw, &recs); err != nil {
			return fmt.Errorf("decode snapshot %s: %w", name, err)
		}
		col := b.collection(name)
		for _, r := range recs {
			col.order = append(col.order, r.ID)
			col.records[r.ID] = Record{ID: r.ID, Data: []byte(r.Data), Version: r.Version}
		}
		b.log.Info("Collection loaded from snapshot", "collection", name, "documents", len(recs))
	}
	return nil
}

// collection вызывается под b.mu
func (b *MemoryBackend) collection(name string) *memoryCollection {
	col, ok := b.collections[name]
	if !ok {
		col = &memoryCollection{records: make(map[string]Record)}
		b.collections[name] = col
	}
	return col
}

func (b *MemoryBackend) List(_ context.Context, collection string) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	col, ok := b.collections[collection]
	if !ok {
		return nil, nil
	}
	out := make([]Record, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, col.records[id])
	}
	return out, nil
}

func (b *MemoryBackend) Get(_ context.Context, collection, id string) (*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	col, ok := b.collections[collection]
	if !ok {
		return nil, nil
	}
	rec, ok := col.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (b *MemoryBackend) Insert(_ context.Context, collection string, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	col := b.collection(collection)
	if _, exists := col.records[rec.ID]; exists {
		return fmt.Errorf("%w: document %s already exists", apperrors.ErrConflict, rec.ID)
	}
	col.order = append(col.order, rec.ID)
	col.records[rec.ID] = rec
	return b.persist(collection, col)
}

func (b *MemoryBackend) Replace(_ context.Context, collection string, rec Record, expected int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	col := b.collection(collection)
	cur, ok := col.records[rec.ID]
	if !ok {
		return ErrNoRecord
	}
	if cur.Version != expected {
		return ErrVersionConflict
	}
	col.records[rec.ID] = rec
	return b.persist(collection, col)
}

func (b *MemoryBackend) Delete(_ context.Context, collection string, ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	col, ok := b.collections[collection]
	if !ok {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, exists := col.records[id]; exists {
			drop[id] = struct{}{}
			delete(col.records, id)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := col.order[:0]
	for _, id := range col.order {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	col.order = kept
	return b.persist(collection, col)
}

func (b *MemoryBackend) Close() error {
	return nil
}

// persist пишет снапшот через временный файл и rename, чтобы
// при падении на диске осталась либо старая, либо новая версия
func (b *MemoryBackend) persist(name string, col *memoryCollection) error {
	if b.dir == "" {
		return nil
	}
	recs := make([]snapshotRecord, 0, len(col.order))
	for _, id := range col.order {
		r := col.records[id]
		recs = append(recs, snapshotRecord{ID: r.ID, Version: r.Version, Data: json.RawMessage(r.Data)})
	}
	raw, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", name, err)
	}
	_, werr := tmp.Write(raw)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.dir, name+".json")); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot %s: %w", name, err)
	}
	return nil
}
