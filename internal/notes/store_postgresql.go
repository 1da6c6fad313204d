package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"goupdate/internal/core"
)

// PostgreSQLStore stores release notes in PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the release_notes table if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS release_notes (
			product TEXT NOT NULL,
			version TEXT NOT NULL,
			notes TEXT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (product, version)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create release_notes table: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// Load returns every note of a product.
func (s *PostgreSQLStore) Load(ctx context.Context, product string) ([]core.ReleaseNote, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT version, notes
		FROM release_notes
		WHERE product = $1
		ORDER BY version
	`, product)
	if err != nil {
		return nil, fmt.Errorf("query release notes: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ReleaseNote, error) {
		var n core.ReleaseNote
		err := row.Scan(&n.Version, &n.Notes)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect release note rows: %w", err)
	}
	return items, nil
}

// Upsert writes notes as one batch.
func (s *PostgreSQLStore) Upsert(ctx context.Context, product string, notes []core.ReleaseNote) error {
	if product == "" {
		return fmt.Errorf("product is required")
	}
	if len(notes) == 0 {
		return nil
	}

	updatedAt := time.Now().Unix()
	batch := &pgx.Batch{}
	for v, n := range toMap(notes) {
		batch.Queue(`
			INSERT INTO release_notes (product, version, notes, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (product, version) DO UPDATE
			SET notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
		`, product, v, n, updatedAt)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert release notes: %w", err)
	}
	return nil
}

// Close is a no-op; pool lifecycle is managed by storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
