package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentWarms bounds how many products refresh at once during warming.
const maxConcurrentWarms = 4

// Registry maps product names and hostnames to products.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Product
	byHost map[string]*Product
	clock  clockwork.Clock
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Product),
		byHost: make(map[string]*Product),
		clock:  clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock driving background refresh.
func (r *Registry) SetClock(clock clockwork.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// Register adds a product. Names and hosts must be unique.
func (r *Registry) Register(p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name]; exists {
		return fmt.Errorf("product %s already registered", p.Name)
	}
	hosts := make([]string, 0, len(p.Hosts))
	for _, h := range p.Hosts {
		host := NormalizeHost(h)
		if host == "" {
			continue
		}
		if other, exists := r.byHost[host]; exists {
			return fmt.Errorf("host %s already bound to product %s", host, other.Name)
		}
		hosts = append(hosts, host)
	}

	r.byName[p.Name] = p
	for _, h := range hosts {
		r.byHost[h] = p
	}
	return nil
}

// Lookup returns the product with the given name.
func (r *Registry) Lookup(name string) (*Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// LookupHost returns the product bound to an HTTP Host header value.
func (r *Registry) LookupHost(host string) (*Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byHost[NormalizeHost(host)]
	return p, ok
}

// List returns all products sorted by name.
func (r *Registry) List() []*Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Product, 0, len(r.byName))
	for _, p := range r.byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered products.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// NormalizeHost lowercases a host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}

// WarmAll refreshes every product whose cache entry has expired and returns
// how many products have a value afterwards.
func (r *Registry) WarmAll(ctx context.Context) int {
	products := r.List()

	var (
		mu    sync.Mutex
		ready int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWarms)
	for _, p := range products {
		g.Go(func() error {
			if p.Warm(gctx) {
				mu.Lock()
				ready++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return ready
}

// InitializeAsync restores every product from its snapshot so traffic can be
// served immediately, then warms all products in the background.
func (r *Registry) InitializeAsync(ctx context.Context, timeout time.Duration) {
	for _, p := range r.List() {
		restored, err := p.Restore(ctx)
		if err != nil {
			slog.Warn("failed to restore release snapshot", "product", p.Name, "error", err)
			continue
		}
		if restored {
			slog.Info("serving cached release while refreshing", "product", p.Name)
		}
	}

	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		ready := r.WarmAll(warmCtx)
		slog.Info("release caches warmed", "ready", ready, "products", r.Len())
	}()
}

// StartBackgroundRefresh warms all products every interval until the returned
// function is called.
func (r *Registry) StartBackgroundRefresh(interval, timeout time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.RLock()
	clock := r.clock
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				refreshCtx, refreshCancel := context.WithTimeout(ctx, timeout)
				ready := r.WarmAll(refreshCtx)
				refreshCancel()
				if ready < r.Len() {
					slog.Warn("background release refresh incomplete", "ready", ready, "products", r.Len())
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// Close releases every product's resources.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.List() {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("product %s: %w", p.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
