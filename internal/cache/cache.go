// Package cache provides a resilient single-value cache for release data.
// A cached value expires after a TTL, concurrent refreshes are collapsed into
// one producer call, a failed refresh keeps serving the previous value, and the
// last good value can be persisted to a local file or Redis so it survives a
// restart.
package cache

import (
	"context"
	"time"
)

// snapshotFormatVersion is bumped when the persisted Snapshot layout changes.
// Snapshots written with another version are ignored on restore.
const snapshotFormatVersion = 1

// Snapshot is the persisted form of a cache entry.
type Snapshot[T any] struct {
	Version   int       `json:"version"`
	FetchedAt time.Time `json:"fetched_at"`
	Value     T         `json:"value"`
}

// SnapshotStore defines the interface for persisting the last good value of a cache.
// Implementations must be safe for concurrent use.
type SnapshotStore[T any] interface {
	// Load retrieves the persisted snapshot.
	// Returns nil, nil if no snapshot exists yet.
	Load(ctx context.Context) (*Snapshot[T], error)

	// Save stores the snapshot.
	Save(ctx context.Context, snapshot *Snapshot[T]) error

	// Close releases any resources held by the store.
	Close() error
}

// Producer fetches a fresh value for a cache.
type Producer[T any] func(ctx context.Context) (T, error)
