package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"goupdate/config"
	"goupdate/internal/cache"
	"goupdate/internal/core"
	"goupdate/internal/httpclient"
	"goupdate/internal/notes"
	"goupdate/internal/pkg/apiclient"
	"goupdate/internal/releases"
	"goupdate/internal/resolver"
)

// InitResult holds the initialized products and cleanup functions.
type InitResult struct {
	Registry   *Registry
	Changelogs *resolver.Changelogs
	Notes      *notes.Result

	// API is shared by every product's release source, so one outage trips
	// a single breaker.
	API *apiclient.Client

	redis *redis.Client

	// stopRefresh is called to stop the background refresh goroutine
	stopRefresh func()
}

// Close stops background refresh and releases every store.
// Safe to call multiple times.
func (r *InitResult) Close() error {
	if r.stopRefresh != nil {
		r.stopRefresh()
		r.stopRefresh = nil
	}

	var errs []error
	if r.Registry != nil {
		if err := r.Registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Notes != nil {
		if err := r.Notes.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notes: %w", err))
		}
		r.Notes = nil
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		r.redis = nil
	}
	return errors.Join(errs...)
}

// InitConfig holds options for product initialization.
type InitConfig struct {
	// HTTPClient is used for every release API call. Built from the http
	// section of the configuration when nil.
	HTTPClient *http.Client

	// Clock drives cache expiry and background refresh. Defaults to the real clock.
	Clock clockwork.Clock

	// WarmTimeout bounds the initial warm-up. Default: 1 minute
	WarmTimeout time.Duration
}

// Init builds every configured product, restores their snapshots, and starts
// warming and background refresh. It returns as soon as the restored snapshots
// are in place; the first fetch happens in the background.
//
// The caller must call InitResult.Close() during shutdown.
func Init(ctx context.Context, cfg *config.Config, initCfg InitConfig) (*InitResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(cfg.Products) == 0 {
		return nil, fmt.Errorf("no products configured")
	}

	clock := initCfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	client := initCfg.HTTPClient
	if client == nil {
		clientCfg := httpclient.DefaultConfig()
		if cfg.HTTP.Timeout > 0 {
			clientCfg.Timeout = config.Seconds(cfg.HTTP.Timeout)
		}
		if cfg.HTTP.ResponseHeaderTimeout > 0 {
			clientCfg.ResponseHeaderTimeout = config.Seconds(cfg.HTTP.ResponseHeaderTimeout)
		}
		client = httpclient.NewHTTPClient(&clientCfg)
	}

	result := &InitResult{API: newAPIClient(cfg.GitHub, client, clock)}
	fail := func(err error) (*InitResult, error) {
		_ = result.Close()
		return nil, err
	}

	notesResult, err := notes.New(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize notes store: %w", err))
	}
	result.Notes = notesResult

	snapshots, redisClient, err := initSnapshots(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize release cache: %w", err))
	}
	result.redis = redisClient

	changelogs, err := resolver.NewChangelogs(cfg.Notes.ChangelogCacheSize)
	if err != nil {
		return fail(err)
	}
	result.Changelogs = changelogs

	registry := NewRegistry()
	registry.SetClock(clock)
	result.Registry = registry

	for _, pc := range cfg.Products {
		p, err := NewProduct(Options{
			Name:            pc.Name,
			Kind:            core.Kind(pc.Kind),
			Hosts:           pc.Hosts,
			Source:          newSource(cfg, pc, result.API),
			Notes:           notes.NewMerger(ctx, pc.Name, notesResult.Store),
			TTL:             config.Seconds(cfg.Cache.TTL),
			ProducerTimeout: config.Seconds(cfg.Cache.ProducerTimeout),
			Clock:           clock,
			Snapshots:       snapshots,
		})
		if err != nil {
			return fail(err)
		}
		if err := registry.Register(p); err != nil {
			_ = p.Close()
			return fail(err)
		}
	}

	warmTimeout := initCfg.WarmTimeout
	if warmTimeout <= 0 {
		warmTimeout = time.Minute
	}
	slog.Info("starting non-blocking release cache initialization...", "products", registry.Len())
	registry.InitializeAsync(ctx, warmTimeout)

	if cfg.Cache.RefreshInterval > 0 {
		result.stopRefresh = registry.StartBackgroundRefresh(config.Seconds(cfg.Cache.RefreshInterval), warmTimeout)
	}

	return result, nil
}

func newAPIClient(gh config.GitHubConfig, client *http.Client, clock clockwork.Clock) *apiclient.Client {
	apiCfg := apiclient.DefaultConfig("github")
	apiCfg.MaxRetries = gh.MaxRetries
	apiCfg.InitialBackoff = config.Seconds(gh.RetryBackoff)
	apiCfg.Clock = clock
	if gh.BreakerThreshold > 0 {
		apiCfg.CircuitBreaker.FailureThreshold = gh.BreakerThreshold
		if gh.BreakerTimeout > 0 {
			apiCfg.CircuitBreaker.Timeout = config.Seconds(gh.BreakerTimeout)
		}
	} else {
		apiCfg.CircuitBreaker = nil
	}
	return apiclient.New(client, apiCfg)
}

func newSource(cfg *config.Config, pc config.ProductConfig, api *apiclient.Client) *releases.Source {
	token := pc.Token
	if token == "" {
		token = cfg.GitHub.Token
	}
	return &releases.Source{
		APIURL:             cfg.GitHub.APIURL,
		Owner:              pc.Owner,
		Repo:               pc.Repo,
		Token:              token,
		TagPrefix:          pc.TagPrefix,
		IncludePrereleases: pc.IncludePrereleases,
		ManifestAsset:      pc.ManifestAsset,
		PerPage:            cfg.GitHub.PerPage,
		API:                api,
	}
}

// initSnapshots selects where release snapshots live. The returned Redis
// client, if any, is owned by the caller.
func initSnapshots(ctx context.Context, cfg *config.Config) (SnapshotFactory, *redis.Client, error) {
	switch cfg.Cache.Type {
	case config.CacheTypeNone:
		return nil, nil, nil
	case config.CacheTypeRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Cache.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		redisCfg := cache.RedisConfig{
			URL:       cfg.Cache.Redis.URL,
			KeyPrefix: cfg.Cache.Redis.KeyPrefix,
			TTL:       config.Seconds(cfg.Cache.Redis.TTL),
		}
		slog.Info("using redis release snapshots", "prefix", redisCfg.KeyPrefix)
		return RedisSnapshots{Client: client, Config: redisCfg}, client, nil
	case config.CacheTypeLocal, "":
		dir := cfg.Cache.Dir
		if dir == "" {
			dir = ".cache"
		}
		slog.Info("using local release snapshots", "dir", dir)
		return LocalSnapshots{Dir: dir}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache type: %s", cfg.Cache.Type)
	}
}
