package notes

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"goupdate/config"
	"goupdate/internal/storage"
)

// Store backend names accepted in notes.store.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendDatabase = "database"
)

// DefaultDir is used by the file backend when no directory is configured.
var DefaultDir = filepath.Join("data", "notes")

// Result holds the initialized notes store and optional owned storage.
type Result struct {
	Store   Store
	Storage storage.Storage
}

// Close releases resources held by the notes store.
func (r *Result) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates a notes store from app configuration. The database backend opens
// its own storage connection, owned by the returned Result.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	switch cfg.Notes.Store {
	case BackendMemory:
		return &Result{Store: NewMemoryStore()}, nil
	case BackendFile, "":
		dir := cfg.Notes.Dir
		if dir == "" {
			dir = DefaultDir
		}
		store, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return &Result{Store: store}, nil
	case BackendDatabase:
		shared, err := storage.Open(ctx, BuildStorageConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		store, err := createStore(ctx, shared)
		if err != nil {
			_ = shared.Close()
			return nil, err
		}
		return &Result{Store: store, Storage: shared}, nil
	default:
		return nil, fmt.Errorf("unknown notes store: %s (valid: file, memory, database)", cfg.Notes.Store)
	}
}

// NewWithSharedStorage creates a notes store using a shared storage connection.
func NewWithSharedStorage(ctx context.Context, shared storage.Storage) (*Result, error) {
	if shared == nil {
		return nil, fmt.Errorf("shared storage is required")
	}
	store, err := createStore(ctx, shared)
	if err != nil {
		return nil, err
	}
	return &Result{
		Store: store,
	}, nil
}

// BuildStorageConfig maps the storage section of the app configuration.
func BuildStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Type: cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	}.WithDefaults()
}

func createStore(ctx context.Context, shared storage.Storage) (Store, error) {
	switch db := shared.(type) {
	case *storage.SQLite:
		return NewSQLiteStore(db.DB)
	case *storage.PostgreSQL:
		return NewPostgreSQLStore(ctx, db.Pool)
	case *storage.MongoDB:
		return NewMongoDBStore(db.Database)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", shared.Type())
	}
}
