package notes

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"goupdate/internal/core"
)

// SQLiteStore stores release notes in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the release_notes table if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS release_notes (
			product TEXT NOT NULL,
			version TEXT NOT NULL,
			notes TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (product, version)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create release_notes table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load returns every note of a product.
func (s *SQLiteStore) Load(ctx context.Context, product string) ([]core.ReleaseNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, notes
		FROM release_notes
		WHERE product = ?
		ORDER BY version
	`, product)
	if err != nil {
		return nil, fmt.Errorf("query release notes: %w", err)
	}
	defer rows.Close()

	items := make([]core.ReleaseNote, 0)
	for rows.Next() {
		var n core.ReleaseNote
		if err := rows.Scan(&n.Version, &n.Notes); err != nil {
			return nil, fmt.Errorf("scan release note row: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate release note rows: %w", err)
	}
	return items, nil
}

// Upsert writes notes in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, product string, notes []core.ReleaseNote) error {
	if product == "" {
		return fmt.Errorf("product is required")
	}
	if len(notes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release notes transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	updatedAt := time.Now().Unix()
	for v, n := range toMap(notes) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO release_notes (product, version, notes, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (product, version) DO UPDATE
			SET notes = excluded.notes, updated_at = excluded.updated_at
		`, product, v, n, updatedAt)
		if err != nil {
			return fmt.Errorf("upsert release note %s: %w", v, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit release notes: %w", err)
	}
	return nil
}

// Close is a no-op; DB lifecycle is managed by storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
