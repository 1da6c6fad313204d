package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// DefaultProducerTimeout bounds a single producer call when Config.ProducerTimeout is zero.
const DefaultProducerTimeout = 30 * time.Second

// snapshotSaveTimeout bounds a snapshot write. It starts after the producer
// returns, so a slow producer does not eat into it.
const snapshotSaveTimeout = 5 * time.Second

// flightKey is the only key used in the single-flight group: each Resilient
// caches exactly one value.
const flightKey = "refresh"

// Config configures a Resilient cache.
type Config[T any] struct {
	// Name identifies the cache in logs, metrics and snapshot keys.
	Name string

	// TTL is how long a fetched value is served without calling the producer again.
	TTL time.Duration

	// Producer fetches a fresh value. Required.
	Producer Producer[T]

	// Snapshot persists the last good value. Optional.
	Snapshot SnapshotStore[T]

	// Validate rejects a successfully produced value. A rejected value is
	// treated like a producer failure. Optional.
	Validate func(T) error

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// ProducerTimeout bounds each producer call (defaults to 30 seconds).
	ProducerTimeout time.Duration
}

// entry is one cached value. Entries are immutable once published.
type entry[T any] struct {
	value     T
	fetchedAt time.Time
	expired   bool
}

// Resilient caches a single value produced on demand.
//
// Reads of a fresh entry are a single atomic load. When the entry is missing or
// expired, the first reader starts a refresh and every concurrent reader waits
// for that same refresh. A failed refresh leaves the previous entry in place
// and its value keeps being served until a later refresh succeeds.
type Resilient[T any] struct {
	name            string
	ttl             time.Duration
	producer        Producer[T]
	snapshot        SnapshotStore[T]
	validate        func(T) error
	clock           clockwork.Clock
	producerTimeout time.Duration

	current atomic.Pointer[entry[T]]
	group   singleflight.Group
}

// New creates a Resilient cache.
func New[T any](cfg Config[T]) (*Resilient[T], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("cache name is required")
	}
	if cfg.Producer == nil {
		return nil, fmt.Errorf("cache %s: producer is required", cfg.Name)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache %s: ttl must be positive, got %s", cfg.Name, cfg.TTL)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timeout := cfg.ProducerTimeout
	if timeout <= 0 {
		timeout = DefaultProducerTimeout
	}

	return &Resilient[T]{
		name:            cfg.Name,
		ttl:             cfg.TTL,
		producer:        cfg.Producer,
		snapshot:        cfg.Snapshot,
		validate:        cfg.Validate,
		clock:           clock,
		producerTimeout: timeout,
	}, nil
}

// Name returns the cache name.
func (r *Resilient[T]) Name() string {
	return r.name
}

// TTL returns the configured time-to-live.
func (r *Resilient[T]) TTL() time.Duration {
	return r.ttl
}

func (r *Resilient[T]) fresh(e *entry[T]) bool {
	return e != nil && !e.expired && r.clock.Since(e.fetchedAt) < r.ttl
}

// Get returns the cached value, refreshing it first when it is missing or expired.
//
// The boolean is false only when no value has ever been produced (or restored)
// and the refresh did not yield one. If ctx ends before the refresh settles,
// Get returns the last known value; the refresh keeps running and its result
// is cached for later readers.
func (r *Resilient[T]) Get(ctx context.Context) (T, bool) {
	if e := r.current.Load(); r.fresh(e) {
		cacheHits.WithLabelValues(r.name).Inc()
		return e.value, true
	}
	cacheMisses.WithLabelValues(r.name).Inc()

	ch := r.group.DoChan(flightKey, func() (any, error) {
		return r.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			cacheShared.WithLabelValues(r.name).Inc()
		}
		if res.Err != nil {
			return r.lastKnown()
		}
		value, _ := res.Val.(T)
		return value, true
	case <-ctx.Done():
		return r.lastKnown()
	}
}

// refresh runs inside the single-flight group. It reuses an entry that became
// fresh between the caller's check and the start of the flight.
func (r *Resilient[T]) refresh(callerCtx context.Context) (T, error) {
	if e := r.current.Load(); r.fresh(e) {
		return e.value, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), r.producerTimeout)
	defer cancel()

	refreshID := uuid.NewString()
	start := r.clock.Now()

	value, err := r.produce(ctx)
	if err != nil {
		producerFailures.WithLabelValues(r.name).Inc()
		attrs := []any{
			"cache", r.name,
			"refresh_id", refreshID,
			"duration", r.clock.Since(start),
			"error", err,
		}
		if e := r.current.Load(); e != nil {
			attrs = append(attrs, "serving_stale_from", e.fetchedAt)
		}
		slog.Warn("cache refresh failed", attrs...)
		var zero T
		return zero, err
	}

	fetchedAt := r.clock.Now()
	r.current.Store(&entry[T]{value: value, fetchedAt: fetchedAt})

	slog.Debug("cache refreshed",
		"cache", r.name,
		"refresh_id", refreshID,
		"duration", r.clock.Since(start),
	)

	if r.snapshot != nil {
		snap := &Snapshot[T]{Version: snapshotFormatVersion, FetchedAt: fetchedAt, Value: value}
		saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), snapshotSaveTimeout)
		err := r.snapshot.Save(saveCtx, snap)
		cancelSave()
		if err != nil {
			snapshotFailures.WithLabelValues(r.name).Inc()
			slog.Warn("failed to save cache snapshot", "cache", r.name, "error", err)
		}
	}

	return value, nil
}

func (r *Resilient[T]) produce(ctx context.Context) (value T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("producer panic: %v", p)
		}
	}()

	value, err = r.producer(ctx)
	if err != nil {
		return value, err
	}
	if r.validate != nil {
		if verr := r.validate(value); verr != nil {
			var zero T
			return zero, fmt.Errorf("invalid value: %w", verr)
		}
	}
	return value, nil
}

func (r *Resilient[T]) lastKnown() (T, bool) {
	if e := r.current.Load(); e != nil {
		if !r.fresh(e) {
			staleServes.WithLabelValues(r.name).Inc()
		}
		return e.value, true
	}
	var zero T
	return zero, false
}

// Invalidate expires the current entry so the next Get refreshes. The expired
// value is kept as the fallback for a failing refresh. A refresh already in
// flight is not affected and its result becomes the new entry.
func (r *Resilient[T]) Invalidate() {
	for {
		e := r.current.Load()
		if e == nil || e.expired {
			return
		}
		expired := &entry[T]{value: e.value, fetchedAt: e.fetchedAt, expired: true}
		if r.current.CompareAndSwap(e, expired) {
			slog.Info("cache invalidated", "cache", r.name)
			return
		}
	}
}

// Peek returns the current entry without triggering a refresh.
func (r *Resilient[T]) Peek() (T, time.Time, bool) {
	if e := r.current.Load(); e != nil {
		return e.value, e.fetchedAt, true
	}
	var zero T
	return zero, time.Time{}, false
}

// Fresh reports whether the current entry is within its TTL.
func (r *Resilient[T]) Fresh() bool {
	return r.fresh(r.current.Load())
}

// ErrSnapshotVersion is returned by Restore for a snapshot written in another format.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// Restore seeds the cache from its snapshot store. The restored entry keeps
// the snapshot's original fetch time, so an old snapshot is served only as a
// stale fallback while the first refresh runs. Restore never replaces an entry
// that already exists. It reports whether an entry was installed.
func (r *Resilient[T]) Restore(ctx context.Context) (bool, error) {
	if r.snapshot == nil {
		return false, nil
	}

	snap, err := r.snapshot.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("cache %s: %w", r.name, err)
	}
	if snap == nil {
		return false, nil
	}
	if snap.Version != snapshotFormatVersion {
		return false, fmt.Errorf("cache %s: %w: %d", r.name, ErrSnapshotVersion, snap.Version)
	}
	if r.validate != nil {
		if err := r.validate(snap.Value); err != nil {
			return false, fmt.Errorf("cache %s: invalid snapshot value: %w", r.name, err)
		}
	}

	if !r.current.CompareAndSwap(nil, &entry[T]{value: snap.Value, fetchedAt: snap.FetchedAt}) {
		return false, nil
	}

	slog.Info("cache restored from snapshot",
		"cache", r.name,
		"fetched_at", snap.FetchedAt,
		"age", r.clock.Since(snap.FetchedAt),
	)
	return true, nil
}

// Close releases the snapshot store.
func (r *Resilient[T]) Close() error {
	if r.snapshot != nil {
		return r.snapshot.Close()
	}
	return nil
}
