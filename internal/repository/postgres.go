package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS documents (
		seq         BIGSERIAL,
		collection  TEXT        NOT NULL,
		id          TEXT        NOT NULL,
		data        JSONB       NOT NULL,
		version     BIGINT      NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection_seq ON documents (collection, seq);
`

// PostgresBackend хранит документы в одной таблице с JSONB
type PostgresBackend struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewPostgresBackend(ctx context.Context, db *pgxpool.Pool, log logger.Logger) (*PostgresBackend, error) {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &PostgresBackend{db: db, log: log}, nil
}

func (b *PostgresBackend) List(ctx context.Context, collection string) ([]Record, error) {
	query := `SELECT id, data, version FROM documents WHERE collection = $1 ORDER BY seq`

	rows, err := b.db.Query(ctx, query, collection)
	if err != nil {
		b.log.Error("Failed to list documents", "collection", collection, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Data, &rec.Version); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) Get(ctx context.Context, collection, id string) (*Record, error) {
	query := `SELECT id, data, version FROM documents WHERE collection = $1 AND id = $2`

	var rec Record
	err := b.db.QueryRow(ctx, query, collection, id).Scan(&rec.ID, &rec.Data, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		b.log.Error("Failed to get document", "collection", collection, "id", id, "error", err)
		return nil, err
	}
	return &rec, nil
}

func (b *PostgresBackend) Insert(ctx context.Context, collection string, rec Record) error {
	query := `INSERT INTO documents (collection, id, data, version) VALUES ($1, $2, $3, $4)`

	_, err := b.db.Exec(ctx, query, collection, rec.ID, string(rec.Data), rec.Version)
	if err != nil {
		// 23505 = unique_violation
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: document %s already exists", apperrors.ErrConflict, rec.ID)
		}
		return err
	}
	return nil
}

func (b *PostgresBackend) Replace(ctx context.Context, collection string, rec Record, expected int64) error {
	query := `
		UPDATE documents
		SET data = $3, version = $4, updated_at = NOW()
		WHERE collection = $1 AND id = $2 AND version = $5
	`

	tag, err := b.db.Exec(ctx, query, collection, rec.ID, string(rec.Data), rec.Version, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = b.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
		collection, rec.ID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoRecord
	}
	return ErrVersionConflict
}

func (b *PostgresBackend) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := b.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = ANY($2)`, collection, ids)
	return err
}

func (b *PostgresBackend) Close() error {
	b.db.Close()
	return nil
}
