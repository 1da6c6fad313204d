package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides applies environment variables on top of cfg.
// Invalid numeric or boolean values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"PORT", &cfg.Server.Port},
		{"GOUPDATE_MASTER_KEY", &cfg.Server.MasterKey},
		{"GITHUB_TOKEN", &cfg.GitHub.Token},
		{"GITHUB_API_URL", &cfg.GitHub.APIURL},
		{"CACHE_TYPE", &cfg.Cache.Type},
		{"CACHE_DIR", &cfg.Cache.Dir},
		{"REDIS_URL", &cfg.Cache.Redis.URL},
		{"NOTES_STORE", &cfg.Notes.Store},
		{"NOTES_DIR", &cfg.Notes.Dir},
		{"STORAGE_TYPE", &cfg.Storage.Type},
		{"SQLITE_PATH", &cfg.Storage.SQLite.Path},
		{"POSTGRES_URL", &cfg.Storage.PostgreSQL.URL},
		{"MONGODB_URL", &cfg.Storage.MongoDB.URL},
		{"MONGODB_DATABASE", &cfg.Storage.MongoDB.Database},
		{"METRICS_ENDPOINT", &cfg.Metrics.Endpoint},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"LOG_LEVEL", &cfg.Log.Level},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns},
		{"GITHUB_PER_PAGE", &cfg.GitHub.PerPage},
		{"GITHUB_MAX_RETRIES", &cfg.GitHub.MaxRetries},
		{"GITHUB_BREAKER_THRESHOLD", &cfg.GitHub.BreakerThreshold},
	}
	for _, i := range ints {
		if err := envInt(i.key, i.dst); err != nil {
			return err
		}
	}

	seconds := []struct {
		key string
		dst *int
	}{
		{"CACHE_TTL", &cfg.Cache.TTL},
		{"CACHE_REFRESH_INTERVAL", &cfg.Cache.RefreshInterval},
		{"CACHE_PRODUCER_TIMEOUT", &cfg.Cache.ProducerTimeout},
		{"REQUEST_TIMEOUT", &cfg.Server.RequestTimeout},
		{"HTTP_TIMEOUT", &cfg.HTTP.Timeout},
		{"HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout},
		{"GITHUB_RETRY_BACKOFF", &cfg.GitHub.RetryBackoff},
		{"GITHUB_BREAKER_TIMEOUT", &cfg.GitHub.BreakerTimeout},
	}
	for _, s := range seconds {
		if err := envSeconds(s.key, s.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED %q: %w", v, err)
		}
		cfg.Metrics.Enabled = b
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

// envSeconds accepts either plain integers (interpreted as seconds) or Go
// duration strings (e.g., "10m", "1h30m").
func envSeconds(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = secs
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: expected seconds or a duration", key, v)
	}
	*dst = int(d / time.Second)
	return nil
}
