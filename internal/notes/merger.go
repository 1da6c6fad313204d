package notes

import (
	"context"
	"log/slog"
	"sync"

	"goupdate/internal/core"
)

// Merger holds the release-note history of one product. Notes observed by
// successive fetches are merged into it, last write winning per version, and
// every change is written through to the store.
//
// Readers only take mu, which is never held across a store call. Writes to
// the store are serialized by persistMu.
type Merger struct {
	product string
	store   Store

	mu       sync.RWMutex
	notes    map[string]string
	revision uint64

	persistMu sync.Mutex
	unsaved   map[string]struct{} // versions whose last write failed
}

// NewMerger loads the product's persisted history from store. A missing or
// unreadable history starts the merger empty; it never fails. A nil store keeps
// the history in memory only.
func NewMerger(ctx context.Context, product string, store Store) *Merger {
	m := &Merger{
		product: product,
		store:   store,
		notes:   make(map[string]string),
		unsaved: make(map[string]struct{}),
	}
	if store == nil {
		return m
	}

	loaded, err := store.Load(ctx, product)
	if err != nil {
		slog.Warn("failed to load release notes, starting empty",
			"product", product,
			"error", err,
		)
		return m
	}
	m.notes = toMap(loaded)
	if len(m.notes) > 0 {
		slog.Info("release notes loaded", "product", product, "versions", len(m.notes))
	}
	return m
}

// Product returns the product the merger belongs to.
func (m *Merger) Product() string {
	return m.product
}

// Merge records notes, replacing any existing note for the same version.
// Notes without a version are skipped. Changed notes are persisted before
// Merge returns; a persistence failure is logged and the in-memory history
// stays authoritative. Versions that failed to persist are written again by
// the next Merge.
func (m *Merger) Merge(ctx context.Context, notes []core.ReleaseNote) {
	changed := m.apply(notes)
	if m.store == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	for _, v := range changed {
		m.unsaved[v] = struct{}{}
	}
	if len(m.unsaved) == 0 {
		return
	}

	// Values are read at write time so the store ends up with the latest
	// in-memory note even when concurrent merges reach this point out of order.
	batch := make([]core.ReleaseNote, 0, len(m.unsaved))
	m.mu.RLock()
	for v := range m.unsaved {
		batch = append(batch, core.ReleaseNote{Version: v, Notes: m.notes[v]})
	}
	m.mu.RUnlock()

	if err := m.store.Upsert(ctx, m.product, batch); err != nil {
		slog.Error("failed to persist release notes",
			"product", m.product,
			"versions", len(batch),
			"error", err,
		)
		return
	}
	clear(m.unsaved)
}

// apply updates the in-memory history and returns the versions it changed.
func (m *Merger) apply(notes []core.ReleaseNote) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []string
	for v, n := range toMap(notes) {
		if old, ok := m.notes[v]; ok && old == n {
			continue
		}
		m.notes[v] = n
		changed = append(changed, v)
	}
	if len(changed) > 0 {
		m.revision++
	}
	return changed
}

// All returns a copy of every known note. Order is unspecified.
func (m *Merger) All() []core.ReleaseNote {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.ReleaseNote, 0, len(m.notes))
	for v, n := range m.notes {
		out = append(out, core.ReleaseNote{Version: v, Notes: n})
	}
	return out
}

// Len returns the number of versions with notes.
func (m *Merger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notes)
}

// Revision increases every time Merge changes the history.
func (m *Merger) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}
