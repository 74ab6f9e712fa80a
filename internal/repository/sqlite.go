package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

type documentRow struct {
	Seq        uint      `gorm:"primaryKey;autoIncrement"`
	Collection string    `gorm:"not null;uniqueIndex:idx_documents_collection_doc"`
	DocID      string    `gorm:"column:doc_id;not null;uniqueIndex:idx_documents_collection_doc"`
	Data       string    `gorm:"type:text;not null"`
	Version    int64     `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string {
	return "documents"
}

// SQLiteBackend - то же хранилище документов для локального запуска в одном файле
type SQLiteBackend struct {
	db  *gorm.DB
	log logger.Logger
}

func NewSQLiteBackend(path string, log logger.Logger) (*SQLiteBackend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Один писатель на файл, иначе параллельные записи ловят "database is locked"
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &SQLiteBackend{db: db, log: log}, nil
}

func (b *SQLiteBackend) List(ctx context.Context, collection string) ([]Record, error) {
	var rows []documentRow
	err := b.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		b.log.Error("Failed to list documents", "collection", collection, "error", err)
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{ID: r.DocID, Data: []byte(r.Data), Version: r.Version}
	}
	return out, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, collection, id string) (*Record, error) {
	var row documentRow
	err := b.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Record{ID: row.DocID, Data: []byte(row.Data), Version: row.Version}, nil
}

func (b *SQLiteBackend) Insert(ctx context.Context, collection string, rec Record) error {
	row := documentRow{
		Collection: collection,
		DocID:      rec.ID,
		Data:       string(rec.Data),
		Version:    rec.Version,
	}
	err := b.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: document %s already exists", apperrors.ErrConflict, rec.ID)
	}
	return err
}

func (b *SQLiteBackend) Replace(ctx context.Context, collection string, rec Record, expected int64) error {
	res := b.db.WithContext(ctx).
		Model(&documentRow{}).
		Where("collection = ? AND doc_id = ? AND version = ?", collection, rec.ID, expected).
		Updates(map[string]any{
			"data":       string(rec.Data),
			"version":    rec.Version,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	err := b.db.WithContext(ctx).
		Model(&documentRow{}).
		Where("collection = ? AND doc_id = ?", collection, rec.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNoRecord
	}
	return ErrVersionConflict
}

func (b *SQLiteBackend) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.db.WithContext(ctx).
		Where("collection = ? AND doc_id IN ?", collection, ids).
		Delete(&documentRow{}).Error
}

func (b *SQLiteBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
