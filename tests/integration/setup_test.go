//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goupdate/config"
	"goupdate/internal/app"
	"goupdate/internal/products"
)

// TestServerConfig configures how the test server is set up.
type TestServerConfig struct {
	// DBType is "postgresql" or "mongodb"; empty keeps notes in memory
	DBType string

	// CacheType is the snapshot backend; defaults to "none"
	CacheType string

	// CacheDir is the local snapshot directory; defaults to a temp dir
	CacheDir string

	// RedisKeyPrefix isolates the snapshots of one test
	RedisKeyPrefix string

	// MasterKey enables the admin API
	MasterKey string
}

// TestServerFixture holds test server resources.
type TestServerFixture struct {
	// ServerURL is the base URL of the test server
	ServerURL string

	// App is the running application
	App *app.App

	// Upstream is the fake release API the products read from
	Upstream *ReleaseAPI
}

// SetupTestServer starts the application against upstream.
func SetupTestServer(t *testing.T, cfg TestServerConfig, upstream *ReleaseAPI) *TestServerFixture {
	t.Helper()

	port, err := findAvailablePort()
	require.NoError(t, err, "failed to find available port")

	appCfg := buildAppConfig(t, cfg, upstream.URL(), port)

	application, err := app.New(GetTestContext(), app.Config{
		AppConfig: appCfg,
		Products:  products.InitConfig{WarmTimeout: 10 * time.Second},
	})
	require.NoError(t, err, "failed to create app")

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	go func() {
		_ = application.Start(fmt.Sprintf("127.0.0.1:%d", port))
	}()

	require.NoError(t, waitForServer(serverURL+"/health"), "server failed to become healthy")

	fixture := &TestServerFixture{ServerURL: serverURL, App: application, Upstream: upstream}
	t.Cleanup(func() { fixture.Shutdown(t) })
	return fixture
}

// Shutdown stops the application and releases its stores. Safe to call
// more than once.
func (f *TestServerFixture) Shutdown(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, f.App.Shutdown(ctx), "failed to shutdown app")
}

// Check performs an update check against the product bound to host.
func (f *TestServerFixture) Check(t *testing.T, host, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, f.ServerURL+path, nil)
	require.NoError(t, err)
	req.Host = host

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func buildAppConfig(t *testing.T, cfg TestServerConfig, upstreamURL string, port int) *config.LoadResult {
	t.Helper()

	cacheType := cfg.CacheType
	if cacheType == "" {
		cacheType = config.CacheTypeNone
	}
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = t.TempDir()
	}

	appCfg := &config.Config{
		Server: config.ServerConfig{
			Port:           fmt.Sprintf("%d", port),
			MasterKey:      cfg.MasterKey,
			RequestTimeout: 10,
		},
		Cache: config.CacheConfig{
			Type:            cacheType,
			Dir:             cacheDir,
			TTL:             300,
			ProducerTimeout: 10,
			Redis: config.RedisConfig{
				URL:       GetRedisURL(),
				KeyPrefix: cfg.RedisKeyPrefix,
			},
		},
		Notes: config.NotesConfig{
			Store:              "memory",
			ChangelogCacheSize: 64,
		},
		GitHub: config.GitHubConfig{APIURL: upstreamURL},
		HTTP:   config.HTTPConfig{Timeout: 10, ResponseHeaderTimeout: 10},
		Log:    config.LogConfig{Format: config.LogFormatJSON, Level: "info"},
		Products: []config.ProductConfig{
			{Name: "desktop", Kind: "tauri", Hosts: []string{"desktop.test"}, Owner: "acme", Repo: "desktop"},
			{Name: "cli", Kind: "simple", Hosts: []string{"cli.test"}, Owner: "acme", Repo: "cli"},
		},
	}

	switch cfg.DBType {
	case "":
	case "postgresql":
		appCfg.Notes.Store = "database"
		appCfg.Storage = config.StorageConfig{
			Type: "postgresql",
			PostgreSQL: config.PostgreSQLStorageConfig{
				URL:      GetPostgreSQLURL(),
				MaxConns: 5,
			},
		}
	case "mongodb":
		appCfg.Notes.Store = "database"
		appCfg.Storage = config.StorageConfig{
			Type: "mongodb",
			MongoDB: config.MongoDBStorageConfig{
				URL:      GetMongoURL(),
				Database: testDatabase,
			},
		}
	default:
		t.Fatalf("unsupported DB type: %s", cfg.DBType)
	}

	require.NoError(t, appCfg.Validate())
	return &config.LoadResult{Config: appCfg}
}

// waitForServer waits for the server to become healthy.
func waitForServer(healthURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(healthURL)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not become healthy within timeout")
}

// findAvailablePort finds an available TCP port on loopback.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// TestRelease is one release published by the fake API.
type TestRelease struct {
	Version string
	Notes   string
}

// ReleaseAPI is a fake GitHub releases API. Every repository publishes the
// same releases; the newest carries a Tauri manifest for linux-x86_64.
type ReleaseAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	releases []TestRelease
	down     bool
}

// NewReleaseAPI starts a fake release API serving releases, newest first.
func NewReleaseAPI(t *testing.T, releases ...TestRelease) *ReleaseAPI {
	t.Helper()
	api := &ReleaseAPI{releases: releases}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

// URL returns the API base URL.
func (a *ReleaseAPI) URL() string {
	return a.server.URL
}

// Publish replaces the published releases.
func (a *ReleaseAPI) Publish(releases ...TestRelease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releases = releases
}

// SetDown makes every request fail with 503.
func (a *ReleaseAPI) SetDown(down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down = down
}

func (a *ReleaseAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	releases, down := a.releases, a.down
	a.mu.Unlock()

	if down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/releases"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, a.releasesJSON(releases))
	case strings.HasPrefix(r.URL.Path, "/download/"):
		version := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/download/"), "/latest.json")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"version": %q, "pub_date": "2026-07-01T00:00:00Z",
			"platforms": {"linux-x86_64": {"url": "https://cdn.test/desktop-%s.tar.gz", "signature": "sig-%s"}}}`,
			version, version, version)
	default:
		http.NotFound(w, r)
	}
}

func (a *ReleaseAPI) releasesJSON(releases []TestRelease) string {
	items := make([]string, len(releases))
	for i, rel := range releases {
		assets := "[]"
		if i == 0 {
			assets = fmt.Sprintf(`[{"name": "latest.json", "browser_download_url": "%s/download/%s/latest.json"}]`, a.server.URL, rel.Version)
		}
		items[i] = fmt.Sprintf(`{"tag_name": "v%s", "body": %q, "published_at": "2026-07-01T00:00:00Z", "assets": %s}`,
			rel.Version, rel.Notes, assets)
	}
	return "[" + strings.Join(items, ",") + "]"
}
