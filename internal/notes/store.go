// Package notes keeps the per-version release-note history of each product and
// persists it so the history survives restarts.
package notes

import (
	"context"
	"errors"
	"sort"

	"goupdate/internal/core"
)

// ErrCorrupt indicates that a persisted note mapping could not be decoded.
var ErrCorrupt = errors.New("release notes data is corrupt")

// Store defines persistence operations for release notes.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns every persisted note of a product.
	// A product with no notes yields an empty slice and no error.
	Load(ctx context.Context, product string) ([]core.ReleaseNote, error)

	// Upsert writes the given notes, replacing any stored note of the same version.
	Upsert(ctx context.Context, product string, notes []core.ReleaseNote) error

	// Close releases resources held by the store.
	Close() error
}

func toMap(notes []core.ReleaseNote) map[string]string {
	m := make(map[string]string, len(notes))
	for _, n := range notes {
		if n.Version == "" {
			continue
		}
		m[n.Version] = n.Notes
	}
	return m
}

// fromMap converts a mapping to a slice ordered by version string so stores
// return deterministic output.
func fromMap(m map[string]string) []core.ReleaseNote {
	out := make([]core.ReleaseNote, 0, len(m))
	for v, n := range m {
		out = append(out, core.ReleaseNote{Version: v, Notes: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}
