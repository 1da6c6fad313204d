package products

import (
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"goupdate/internal/cache"
	"goupdate/internal/core"
)

// LocalSnapshots keeps each product's snapshot in Dir/<product>.json.
type LocalSnapshots struct {
	Dir string
}

func (s LocalSnapshots) path(product string) string {
	return filepath.Join(s.Dir, product+".json")
}

// Latest returns the manifest snapshot store of a Tauri product.
func (s LocalSnapshots) Latest(product string) cache.SnapshotStore[*core.LatestRelease] {
	return cache.NewLocalStore[*core.LatestRelease](s.path(product))
}

// Simple returns the release snapshot store of a simple product.
func (s LocalSnapshots) Simple(product string) cache.SnapshotStore[*core.SimpleRelease] {
	return cache.NewLocalStore[*core.SimpleRelease](s.path(product))
}

// RedisSnapshots keeps snapshots in Redis so every instance behind a load
// balancer can serve the last good release after a restart. All stores share
// Client, which RedisSnapshots does not close.
type RedisSnapshots struct {
	Client *redis.Client
	Config cache.RedisConfig
}

// Latest returns the manifest snapshot store of a Tauri product.
func (s RedisSnapshots) Latest(product string) cache.SnapshotStore[*core.LatestRelease] {
	return cache.NewRedisStore[*core.LatestRelease](s.Client, product, s.Config)
}

// Simple returns the release snapshot store of a simple product.
func (s RedisSnapshots) Simple(product string) cache.SnapshotStore[*core.SimpleRelease] {
	return cache.NewRedisStore[*core.SimpleRelease](s.Client, product, s.Config)
}
