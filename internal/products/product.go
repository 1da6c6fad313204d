// Package products wires each configured product to its release source,
// release-note history and resilient cache, and finds the product a request
// is for.
package products

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"goupdate/internal/cache"
	"goupdate/internal/core"
	"goupdate/internal/notes"
	"goupdate/internal/releases"
)

// ErrNoPlatforms is returned by Latest for a product that does not publish
// per-platform artifacts.
var ErrNoPlatforms = errors.New("product does not publish platform artifacts")

// Product is one configured application. Exactly one of its caches is set,
// depending on Kind.
type Product struct {
	Name   string
	Kind   core.Kind
	Hosts  []string
	Source *releases.Source
	Notes  *notes.Merger

	tauri  *cache.Resilient[*core.LatestRelease]
	simple *cache.Resilient[*core.SimpleRelease]
}

// Status describes a product's cache and history for the admin API.
type Status struct {
	Name          string    `json:"name"`
	Kind          core.Kind `json:"kind"`
	Hosts         []string  `json:"hosts"`
	Repository    string    `json:"repository"`
	Cached        bool      `json:"cached"`
	Fresh         bool      `json:"fresh"`
	Version       string    `json:"version,omitempty"`
	FetchedAt     time.Time `json:"fetched_at,omitempty"`
	NoteVersions  int       `json:"note_versions"`
	NotesRevision uint64    `json:"notes_revision"`
}

// Latest returns the product's current release manifest. ok is false when no
// manifest has ever been fetched.
func (p *Product) Latest(ctx context.Context) (*core.LatestRelease, bool, error) {
	if p.tauri == nil {
		return nil, false, ErrNoPlatforms
	}
	latest, ok := p.tauri.Get(ctx)
	return latest, ok, nil
}

// LatestSimple returns the product's current version, notes and publish date.
// For a Tauri product it is derived from the manifest.
func (p *Product) LatestSimple(ctx context.Context) (*core.SimpleRelease, bool) {
	if p.simple != nil {
		return p.simple.Get(ctx)
	}
	latest, ok := p.tauri.Get(ctx)
	if !ok || latest == nil {
		return nil, false
	}
	return &core.SimpleRelease{
		Version: latest.Version,
		Notes:   latest.Notes,
		PubDate: latest.PubDate,
	}, true
}

// Warm refreshes the cache if its entry has expired and reports whether a
// value is available afterwards.
func (p *Product) Warm(ctx context.Context) bool {
	if p.tauri != nil {
		_, ok := p.tauri.Get(ctx)
		return ok
	}
	_, ok := p.simple.Get(ctx)
	return ok
}

// Invalidate expires the product's cached release.
func (p *Product) Invalidate() {
	if p.tauri != nil {
		p.tauri.Invalidate()
		return
	}
	p.simple.Invalidate()
}

// Restore seeds the product's cache from its snapshot.
func (p *Product) Restore(ctx context.Context) (bool, error) {
	if p.tauri != nil {
		return p.tauri.Restore(ctx)
	}
	return p.simple.Restore(ctx)
}

// Status reports the product's cache and history without refreshing.
func (p *Product) Status() Status {
	st := Status{
		Name:       p.Name,
		Kind:       p.Kind,
		Hosts:      p.Hosts,
		Repository: p.Source.String(),
	}
	if p.Notes != nil {
		st.NoteVersions = p.Notes.Len()
		st.NotesRevision = p.Notes.Revision()
	}

	if p.tauri != nil {
		if v, at, ok := p.tauri.Peek(); ok && v != nil {
			st.Cached, st.Version, st.FetchedAt = true, v.Version, at
		}
		st.Fresh = p.tauri.Fresh()
	} else {
		if v, at, ok := p.simple.Peek(); ok && v != nil {
			st.Cached, st.Version, st.FetchedAt = true, v.Version, at
		}
		st.Fresh = p.simple.Fresh()
	}
	return st
}

// Close releases the product's snapshot store.
func (p *Product) Close() error {
	if p.tauri != nil {
		return p.tauri.Close()
	}
	if p.simple != nil {
		return p.simple.Close()
	}
	return nil
}

// Options configure NewProduct.
type Options struct {
	Name   string
	Kind   core.Kind
	Hosts  []string
	Source *releases.Source
	Notes  *notes.Merger

	TTL             time.Duration
	ProducerTimeout time.Duration
	Clock           clockwork.Clock

	// Snapshots builds the snapshot store of the product's cache. Optional.
	Snapshots SnapshotFactory
}

// SnapshotFactory builds snapshot stores for a product's cache. Implementations
// return nil stores when persistence is disabled.
type SnapshotFactory interface {
	Latest(product string) cache.SnapshotStore[*core.LatestRelease]
	Simple(product string) cache.SnapshotStore[*core.SimpleRelease]
}

// NewProduct builds a product and its cache.
func NewProduct(opts Options) (*Product, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("product name is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("product %s: release source is required", opts.Name)
	}

	p := &Product{
		Name:   opts.Name,
		Kind:   opts.Kind,
		Hosts:  opts.Hosts,
		Source: opts.Source,
		Notes:  opts.Notes,
	}

	var err error
	switch opts.Kind {
	case core.KindTauri:
		cfg := cache.Config[*core.LatestRelease]{
			Name:            opts.Name,
			TTL:             opts.TTL,
			Producer:        releases.TauriProducer(opts.Source, opts.Notes),
			Validate:        releases.ValidateLatest,
			ProducerTimeout: opts.ProducerTimeout,
			Clock:           opts.Clock,
		}
		if opts.Snapshots != nil {
			cfg.Snapshot = opts.Snapshots.Latest(opts.Name)
		}
		p.tauri, err = cache.New(cfg)
	case core.KindSimple:
		cfg := cache.Config[*core.SimpleRelease]{
			Name:            opts.Name,
			TTL:             opts.TTL,
			Producer:        releases.SimpleProducer(opts.Source, opts.Notes),
			Validate:        releases.ValidateSimple,
			ProducerTimeout: opts.ProducerTimeout,
			Clock:           opts.Clock,
		}
		if opts.Snapshots != nil {
			cfg.Snapshot = opts.Snapshots.Simple(opts.Name)
		}
		p.simple, err = cache.New(cfg)
	default:
		return nil, fmt.Errorf("product %s: unknown kind %q", opts.Name, opts.Kind)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
