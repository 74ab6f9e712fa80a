package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"messenger/internal/config"
	"messenger/internal/domain"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

const testSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

type broadcast struct {
	chatID  string
	event   string
	payload any
}

// fakeBroadcaster записывает рассылки вместо отправки в комнаты
type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []broadcast
}

func (b *fakeBroadcaster) BroadcastToChat(chatID, event string, payload any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, broadcast{chatID: chatID, event: event, payload: payload})
	return 1
}

func (b *fakeBroadcaster) events(event string) []broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcast
	for _, s := range b.sent {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []broadcast
}

func (e *fakeEmitter) Emit(event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, broadcast{event: event, payload: payload})
	return nil
}

func (e *fakeEmitter) received(event string) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []any
	for _, ev := range e.events {
		if ev.event == event {
			out = append(out, ev.payload)
		}
	}
	return out
}

func (e *fakeEmitter) total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

type fakePeers struct {
	mu    sync.Mutex
	peers map[string]*fakeEmitter
}

func newFakePeers(ids ...string) *fakePeers {
	p := &fakePeers{peers: make(map[string]*fakeEmitter)}
	for _, id := range ids {
		p.peers[id] = &fakeEmitter{}
	}
	return p
}

func (p *fakePeers) Lookup(userID string) (Emitter, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.peers[userID]
	if !ok {
		return nil, false
	}
	return e, true
}

func (p *fakePeers) get(userID string) *fakeEmitter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peers[userID]
}

func (p *fakePeers) drop(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.peers, userID)
}

type testEnv struct {
	repos       *repository.Repositories
	services    *Services
	broadcaster *fakeBroadcaster
	peers       *fakePeers
}

// setupServices собирает сервисы поверх хранилища в памяти
func setupServices(t *testing.T, peers *fakePeers) *testEnv {
	t.Helper()
	log := logger.Nop()

	backend, err := repository.NewMemoryBackend("", log)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	repos := repository.NewRepositories(backend, nil, log)

	if peers == nil {
		peers = newFakePeers()
	}
	b := &fakeBroadcaster{}
	cfg := &config.Config{
		JWT:      config.JWTConfig{Secret: "test-secret", TTL: time.Hour, Issuer: "test"},
		Realtime: config.RealtimeConfig{DeliveredDelay: 5 * time.Millisecond},
		Blob:     config.BlobConfig{PublicBaseURL: "https://cdn.example.com/files"},
	}

	return &testEnv{
		repos:       repos,
		services:    NewServices(repos, cfg, b, peers, log),
		broadcaster: b,
		peers:       peers,
	}
}

func (e *testEnv) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, Email: name + "@example.com", Avatar: name + ".png"}
	if ok, err := e.repos.User.CreateUnique(context.Background(), u); err != nil || !ok {
		t.Fatalf("Failed to create user %s: ok=%v err=%v", name, ok, err)
	}
	return u
}

func (e *testEnv) waitDeliveries(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.services.Message.Close(ctx); err != nil {
		t.Fatalf("Deliveries did not finish: %v", err)
	}
}
