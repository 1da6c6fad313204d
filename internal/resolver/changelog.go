package resolver

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"goupdate/internal/core"
)

// DefaultChangelogSize is the number of aggregated changelogs kept by NewChangelogs
// when size is not positive.
const DefaultChangelogSize = 1024

// NoteSource is the note history a changelog is built from.
type NoteSource interface {
	Product() string
	Revision() uint64
	All() []core.ReleaseNote
}

type changelogKey struct {
	product  string
	revision uint64
	current  string
}

// Changelogs memoizes AggregateNotes per product, history revision and client
// version. Clients on the same version polling between merges share one
// aggregation. Safe for concurrent use.
type Changelogs struct {
	cache *lru.Cache[changelogKey, string]
}

// NewChangelogs creates a memo holding at most size changelogs.
func NewChangelogs(size int) (*Changelogs, error) {
	if size <= 0 {
		size = DefaultChangelogSize
	}
	cache, err := lru.New[changelogKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("create changelog cache: %w", err)
	}
	return &Changelogs{cache: cache}, nil
}

// Notes returns the aggregated changelog of src for a client on current.
func (c *Changelogs) Notes(src NoteSource, current string) string {
	key := changelogKey{product: src.Product(), revision: src.Revision(), current: current}
	if notes, ok := c.cache.Get(key); ok {
		return notes
	}
	notes := AggregateNotes(src.All(), current)
	c.cache.Add(key, notes)
	return notes
}

// Len returns the number of memoized changelogs.
func (c *Changelogs) Len() int {
	return c.cache.Len()
}

// ResolvePlatform is ResolvePlatform with the changelog taken from the memo.
func (c *Changelogs) ResolvePlatform(latest *core.LatestRelease, src NoteSource, current, target, arch string) PlatformDecision {
	if latest == nil {
		return PlatformDecision{}
	}
	notes := c.Notes(src, current)
	if notes == "" {
		notes = latest.Notes
	}
	return decidePlatform(latest, notes, current, target, arch)
}

// ResolveSimple is ResolveSimple with the changelog taken from the memo.
func (c *Changelogs) ResolveSimple(latest *core.SimpleRelease, src NoteSource, current string) SimpleDecision {
	if latest == nil {
		return SimpleDecision{}
	}
	return decideSimple(latest, c.Notes(src, current), current)
}
