package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
)

var productNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %d", c.Cache.TTL))
	}
	if c.Cache.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("cache.refresh_interval must not be negative"))
	}
	if c.Cache.RefreshInterval >= c.Cache.TTL && c.Cache.RefreshInterval > 0 {
		slog.Warn("cache.refresh_interval is not below cache.ttl; clients may wait for refreshes",
			"refresh_interval", c.Cache.RefreshInterval,
			"ttl", c.Cache.TTL,
		)
	}
	switch c.Cache.Type {
	case CacheTypeLocal, CacheTypeNone:
	case CacheTypeRedis:
		if c.Cache.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("cache.redis.url is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.type %q (valid: local, redis, none)", c.Cache.Type))
	}

	switch c.Notes.Store {
	case "file", "memory", "database":
	default:
		errs = append(errs, fmt.Errorf("unknown notes.store %q (valid: file, memory, database)", c.Notes.Store))
	}

	switch c.Log.Format {
	case LogFormatJSON, LogFormatPretty:
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q (valid: json, pretty)", c.Log.Format))
	}

	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must be positive"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("metrics.endpoint must start with /, got %q", c.Metrics.Endpoint))
	}

	if c.GitHub.MaxRetries < 0 || c.GitHub.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("github.max_retries and github.retry_backoff must not be negative"))
	}
	if c.GitHub.BreakerThreshold < 0 || c.GitHub.BreakerTimeout < 0 {
		errs = append(errs, fmt.Errorf("github.breaker_threshold and github.breaker_timeout must not be negative"))
	}

	errs = append(errs, c.validateProducts()...)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateProducts() []error {
	var errs []error
	names := make(map[string]bool, len(c.Products))
	hosts := make(map[string]string)

	for i, p := range c.Products {
		if !productNamePattern.MatchString(p.Name) {
			errs = append(errs, fmt.Errorf("products[%d]: invalid name %q (lowercase letters, digits, '.', '_' and '-')", i, p.Name))
			continue
		}
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("products[%d]: duplicate name %q", i, p.Name))
		}
		names[p.Name] = true

		if p.Kind != "tauri" && p.Kind != "simple" {
			errs = append(errs, fmt.Errorf("product %s: unknown kind %q (valid: tauri, simple)", p.Name, p.Kind))
		}
		if p.Owner == "" || p.Repo == "" {
			errs = append(errs, fmt.Errorf("product %s: owner and repo are required", p.Name))
		}
		for _, h := range p.Hosts {
			host := strings.ToLower(strings.TrimSpace(h))
			if hp, _, err := net.SplitHostPort(host); err == nil {
				host = hp
			}
			if host == "" {
				continue
			}
			if other, ok := hosts[host]; ok {
				errs = append(errs, fmt.Errorf("product %s: host %s already bound to product %s", p.Name, host, other))
				continue
			}
			hosts[host] = p.Name
		}
	}
	return errs
}
