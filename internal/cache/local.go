package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore implements SnapshotStore using local file storage.
// This is suitable for single-instance deployments.
type LocalStore[T any] struct {
	mu       sync.RWMutex
	filePath string
}

// NewLocalStore creates a new file-based snapshot store.
// An empty filePath disables persistence.
func NewLocalStore[T any](filePath string) *LocalStore[T] {
	return &LocalStore[T]{
		filePath: filePath,
	}
}

// Path returns the snapshot file path.
func (s *LocalStore[T]) Path() string {
	return s.filePath
}

// Load reads the snapshot from the local file.
func (s *LocalStore[T]) Load(_ context.Context) (*Snapshot[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.filePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No snapshot yet, not an error
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot Snapshot[T]
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	return &snapshot, nil
}

// Save writes the snapshot to the local file.
func (s *LocalStore[T]) Save(_ context.Context, snapshot *Snapshot[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filePath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write atomically using temp file + rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	return nil
}

// Close is a no-op for the local store.
func (s *LocalStore[T]) Close() error {
	return nil
}
