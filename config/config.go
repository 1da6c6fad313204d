// Package config provides configuration management for the application.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (with ${VAR} and ${VAR:-default} placeholders expanded from the environment),
// then a .env file, then environment variable overrides. The result is
// validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Cache backends accepted in cache.type.
const (
	CacheTypeLocal = "local"
	CacheTypeRedis = "redis"
	CacheTypeNone  = "none"
)

// Log formats accepted in log.format.
const (
	LogFormatJSON   = "json"
	LogFormatPretty = "pretty"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Cache    CacheConfig     `yaml:"cache"`
	Notes    NotesConfig     `yaml:"notes"`
	Storage  StorageConfig   `yaml:"storage"`
	GitHub   GitHubConfig    `yaml:"github"`
	HTTP     HTTPConfig      `yaml:"http"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Log      LogConfig       `yaml:"log"`
	Products []ProductConfig `yaml:"products"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`

	// MasterKey protects the admin API. Empty disables the admin API.
	MasterKey string `yaml:"master_key"`

	// RequestTimeout bounds, in seconds, how long an update check waits for a
	// cache refresh before answering from the last known release.
	RequestTimeout int `yaml:"request_timeout"`
}

// CacheConfig holds release cache configuration
type CacheConfig struct {
	// Type selects where release snapshots are persisted: "local", "redis" or "none"
	Type string `yaml:"type"`

	// Dir is the snapshot directory for the local backend
	Dir string `yaml:"dir"`

	// TTL is how long, in seconds, a fetched release is served before refreshing
	TTL int `yaml:"ttl"`

	// RefreshInterval is how often, in seconds, all products are warmed in the background. 0 disables it.
	RefreshInterval int `yaml:"refresh_interval"`

	// ProducerTimeout bounds, in seconds, one release fetch
	ProducerTimeout int `yaml:"producer_timeout"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis snapshot configuration
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
	// TTL is the snapshot lifetime in seconds
	TTL int `yaml:"ttl"`
}

// NotesConfig holds release-note history configuration
type NotesConfig struct {
	// Store selects the backend: "file", "memory" or "database"
	Store string `yaml:"store"`

	// Dir is the directory of the file backend
	Dir string `yaml:"dir"`

	// ChangelogCacheSize is the number of aggregated changelogs kept in memory
	ChangelogCacheSize int `yaml:"changelog_cache_size"`
}

// StorageConfig holds the database used by the "database" notes backend
type StorageConfig struct {
	// Type is "sqlite", "postgresql" or "mongodb"
	Type       string                  `yaml:"type"`
	SQLite     SQLiteStorageConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLStorageConfig `yaml:"postgresql"`
	MongoDB    MongoDBStorageConfig    `yaml:"mongodb"`
}

// SQLiteStorageConfig holds SQLite configuration
type SQLiteStorageConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLStorageConfig holds PostgreSQL configuration
type PostgreSQLStorageConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBStorageConfig holds MongoDB configuration
type MongoDBStorageConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// GitHubConfig holds release API configuration shared by all products
type GitHubConfig struct {
	APIURL  string `yaml:"api_url"`
	Token   string `yaml:"token"`
	PerPage int    `yaml:"per_page"`

	// MaxRetries is how often a request failing with a network error or a
	// 502/503/504 is retried. RetryBackoff is the first wait, in seconds.
	MaxRetries   int `yaml:"max_retries"`
	RetryBackoff int `yaml:"retry_backoff"`

	// BreakerThreshold consecutive failures stop upstream calls for
	// BreakerTimeout seconds. 0 disables the breaker.
	BreakerThreshold int `yaml:"breaker_threshold"`
	BreakerTimeout   int `yaml:"breaker_timeout"`
}

// HTTPConfig holds outbound HTTP client timeouts, in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig holds application log configuration
type LogConfig struct {
	// Format is "json" or "pretty"
	Format string `yaml:"format"`
	// Level is "debug", "info", "warn" or "error"
	Level string `yaml:"level"`
}

// ProductConfig describes one application served by the update server
type ProductConfig struct {
	Name string `yaml:"name"`

	// Kind is "tauri" (manifest with per-platform artifacts) or "simple"
	Kind string `yaml:"kind"`

	// Hosts are the hostnames whose requests are answered for this product
	Hosts []string `yaml:"hosts"`

	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`

	// Token overrides github.token for this product's repository
	Token string `yaml:"token"`

	// TagPrefix is stripped from release tags before version parsing
	TagPrefix string `yaml:"tag_prefix"`

	IncludePrereleases bool `yaml:"include_prereleases"`

	// ManifestAsset is the name of the Tauri manifest attached to each release
	ManifestAsset string `yaml:"manifest_asset"`
}

// LoadResult holds the loaded configuration and where it came from.
type LoadResult struct {
	Config *Config

	// ConfigFile is the YAML file that was read, or "" when none was found.
	ConfigFile string
}

// Seconds converts a configured number of seconds to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// buildDefaultConfig returns the configuration used when nothing is set.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			RequestTimeout: 10,
		},
		Cache: CacheConfig{
			Type:            CacheTypeLocal,
			Dir:             ".cache",
			TTL:             300,
			RefreshInterval: 240,
			ProducerTimeout: 30,
		},
		Notes: NotesConfig{
			Store:              "file",
			Dir:                "data/notes",
			ChangelogCacheSize: 1024,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteStorageConfig{
				Path: "data/goupdate.db",
			},
			PostgreSQL: PostgreSQLStorageConfig{
				MaxConns: 10,
			},
			MongoDB: MongoDBStorageConfig{
				Database: "goupdate",
			},
		},
		GitHub: GitHubConfig{
			APIURL:           "https://api.github.com",
			PerPage:          30,
			MaxRetries:       2,
			RetryBackoff:     1,
			BreakerThreshold: 5,
			BreakerTimeout:   30,
		},
		HTTP: HTTPConfig{
			Timeout:               30,
			ResponseHeaderTimeout: 15,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		Log: LogConfig{
			Format: LogFormatJSON,
			Level:  "info",
		},
	}
}

// configFileCandidates are searched in order when CONFIG_FILE is not set.
var configFileCandidates = []string{"config/config.yaml", "config.yaml"}

// Load reads configuration from defaults, the YAML file, .env and the environment.
func Load() (*LoadResult, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := buildDefaultConfig()

	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &LoadResult{Config: cfg, ConfigFile: path}, nil
}

func findConfigFile() (string, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}
	for _, path := range configFileCandidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// loadYAML decodes the YAML file at path onto cfg. Fields absent from the file
// keep their current values.
func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	v := viper.New()
	for k, val := range raw {
		v.Set(k, expandValue(val))
	}
	if err := v.Unmarshal(cfg, snakeCaseMatchName()); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// snakeCaseMatchName lets snake_case YAML keys match Go field names
// (body_size_limit -> BodySizeLimit). Keys with leading, trailing or doubled
// underscores never match.
func snakeCaseMatchName() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.MatchName = func(mapKey, fieldName string) bool {
			if strings.HasPrefix(mapKey, "_") || strings.HasSuffix(mapKey, "_") || strings.Contains(mapKey, "__") {
				return false
			}
			return strings.EqualFold(strings.ReplaceAll(mapKey, "_", ""), fieldName)
		}
	}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with values from the
// environment. A variable that is unset or empty takes its default; without a
// default the placeholder is left unchanged.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if parts[2] != "" {
			return parts[3]
		}
		return m
	})
}

// expandValue applies expandString to every string in a decoded YAML tree.
func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item)
		}
		return out
	default:
		return v
	}
}

// normalize fills per-product defaults.
func (c *Config) normalize() {
	for i := range c.Products {
		p := &c.Products[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Kind == "" {
			p.Kind = "tauri"
		}
		p.Kind = strings.ToLower(p.Kind)
	}
	c.Cache.Type = strings.ToLower(c.Cache.Type)
	c.Log.Format = strings.ToLower(c.Log.Format)
}
