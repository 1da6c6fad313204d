package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"goupdate/internal/core"
)

// FileStore keeps one JSON object per product, mapping version to notes,
// in a directory. Writes go through a temp file and a rename so a crash never
// leaves a half-written file behind.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("notes directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create notes directory: %w", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Path returns the file holding a product's notes.
func (s *FileStore) Path(product string) string {
	return filepath.Join(s.dir, product+".json")
}

func (s *FileStore) lock(product string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[product]
	if !ok {
		l = &sync.Mutex{}
		s.locks[product] = l
	}
	return l
}

// Load reads the product's notes file. A missing file is an empty history;
// an unreadable one yields ErrCorrupt.
func (s *FileStore) Load(_ context.Context, product string) ([]core.ReleaseNote, error) {
	l := s.lock(product)
	l.Lock()
	defer l.Unlock()

	m, err := s.read(product)
	if err != nil {
		return nil, err
	}
	return fromMap(m), nil
}

func (s *FileStore) read(product string) (map[string]string, error) {
	data, err := os.ReadFile(s.Path(product))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read notes file: %w", err)
	}

	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.Path(product), err)
	}
	return m, nil
}

// Upsert merges notes into the product's file. A corrupt file is logged and
// replaced.
func (s *FileStore) Upsert(_ context.Context, product string, notes []core.ReleaseNote) error {
	if product == "" {
		return fmt.Errorf("product is required")
	}

	l := s.lock(product)
	l.Lock()
	defer l.Unlock()

	m, err := s.read(product)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		slog.Warn("replacing corrupt release notes file",
			"product", product,
			"path", s.Path(product),
			"error", err,
		)
		m = map[string]string{}
	}
	for v, n := range toMap(notes) {
		m[v] = n
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal notes: %w", err)
	}

	path := s.Path(product)
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write notes file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename notes file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
