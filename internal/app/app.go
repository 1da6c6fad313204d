// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the update server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"goupdate/config"
	"goupdate/internal/products"
	"goupdate/internal/server"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	products *products.InitResult
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// Products overrides product initialization options, e.g. the HTTP client
	// or clock used in tests. Optional.
	Products products.InitConfig
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}

	appCfg := cfg.AppConfig.Config
	app := &App{config: appCfg}

	productResult, err := products.Init(ctx, appCfg, cfg.Products)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize products: %w", err)
	}
	app.products = productResult

	app.logStartupInfo(cfg.AppConfig.ConfigFile)

	app.server = server.New(productResult.Registry, productResult.Changelogs, &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		RequestTimeout:  config.Seconds(appCfg.Server.RequestTimeout),
	})

	return app, nil
}

// Registry returns the product registry.
func (a *App) Registry() *products.Registry {
	if a.products == nil {
		return nil
	}
	return a.products.Registry
}

// Handler returns the HTTP handler serving update checks.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, honoring ctx, then the products (background refresh,
// snapshot stores, notes storage and the Redis client).
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// Every step is attempted and failures are joined.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.products != nil {
		if err := a.products.Close(); err != nil {
			slog.Error("products close error", "error", err)
			errs = append(errs, fmt.Errorf("products close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(configFile string) {
	cfg := a.config

	if configFile != "" {
		slog.Info("configuration loaded", "file", configFile)
	}

	if cfg.Server.MasterKey == "" {
		slog.Info("admin API disabled", "reason", "GOUPDATE_MASTER_KEY not set")
	} else {
		slog.Info("admin API enabled", "api", "/admin/api/v1")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", server.MetricsPath(cfg.Metrics.Endpoint))
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("release cache configured",
		"type", cfg.Cache.Type,
		"ttl", config.Seconds(cfg.Cache.TTL),
		"refresh_interval", config.Seconds(cfg.Cache.RefreshInterval),
	)
	slog.Info("release notes store configured", "store", cfg.Notes.Store)

	if cfg.GitHub.Token == "" {
		slog.Warn("GITHUB_TOKEN not set, release API calls are unauthenticated and rate limited")
	}

	for _, p := range cfg.Products {
		slog.Info("product configured",
			"product", p.Name,
			"kind", p.Kind,
			"repository", p.Owner+"/"+p.Repo,
			"hosts", p.Hosts,
		)
	}
}
