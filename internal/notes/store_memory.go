package notes

import (
	"context"
	"fmt"
	"sync"

	"goupdate/internal/core"
)

// MemoryStore keeps notes in process memory.
// Data survives across requests but not process restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory notes store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]map[string]string),
	}
}

// Load returns a copy of the product's notes.
func (s *MemoryStore) Load(_ context.Context, product string) ([]core.ReleaseNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fromMap(s.items[product]), nil
}

// Upsert stores notes for a product.
func (s *MemoryStore) Upsert(_ context.Context, product string, notes []core.ReleaseNote) error {
	if product == "" {
		return fmt.Errorf("product is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[product]
	if !ok {
		m = make(map[string]string, len(notes))
		s.items[product] = m
	}
	for v, n := range toMap(notes) {
		m[v] = n
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
