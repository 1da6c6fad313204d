package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goupdate/internal/core"
	"goupdate/internal/notes"
	"goupdate/internal/observability"
	"goupdate/internal/products"
	"goupdate/internal/releases"
)

const desktopReleases = `[
  {"tag_name": "v1.2.0", "body": "Faster sync", "draft": false, "prerelease": false,
   "published_at": "2026-03-02T09:00:00Z",
   "assets": [{"name": "latest.json", "browser_download_url": "%[1]s/download/latest.json", "url": "%[1]s/api/assets/1"}]},
  {"tag_name": "v1.1.0", "body": "Dark mode", "draft": false, "prerelease": false,
   "published_at": "2026-02-01T09:00:00Z", "assets": []},
  {"tag_name": "v1.0.0", "body": "First release", "draft": false, "prerelease": false,
   "published_at": "2026-01-01T09:00:00Z", "assets": []}
]`

const desktopManifest = `{
  "version": "1.2.0",
  "notes": "Faster sync",
  "pub_date": "2026-03-02T09:05:00Z",
  "platforms": {
    "darwin-aarch64": {"signature": "sig-arm", "url": "https://cdn.example.com/desktop-1.2.0-aarch64.app.tar.gz"}
  }
}`

const cliReleases = `[
  {"tag_name": "v2.0.1", "body": "Fix crash on start", "draft": false, "prerelease": false,
   "published_at": "2026-03-05T12:00:00Z", "assets": []}
]`

type upstream struct {
	*httptest.Server
	down atomic.Bool
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/desktop/releases", func(w http.ResponseWriter, r *http.Request) {
		if u.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprintf(w, desktopReleases, u.URL)
	})
	mux.HandleFunc("/repos/acme/cli/releases", func(w http.ResponseWriter, r *http.Request) {
		if u.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(cliReleases))
	})
	mux.HandleFunc("/download/latest.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(desktopManifest))
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func newTestRegistry(t *testing.T, u *upstream) *products.Registry {
	t.Helper()
	r := products.NewRegistry()
	for _, spec := range []struct {
		name string
		kind core.Kind
		host string
	}{
		{"desktop", core.KindTauri, "updates.example.com"},
		{"cli", core.KindSimple, "cli.example.com"},
	} {
		p, err := products.NewProduct(products.Options{
			Name:   spec.name,
			Kind:   spec.kind,
			Hosts:  []string{spec.host},
			Source: &releases.Source{APIURL: u.URL, Owner: "acme", Repo: spec.name, Client: u.Client()},
			Notes:  notes.NewMerger(context.Background(), spec.name, nil),
			TTL:    time.Minute,
			Clock:  clockwork.NewFakeClock(),
		})
		require.NoError(t, err)
		require.NoError(t, r.Register(p))
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func newTestServer(t *testing.T, cfg *Config) (*Server, *upstream, *products.Registry) {
	t.Helper()
	u := newUpstream(t)
	r := newTestRegistry(t, u)
	return New(r, nil, cfg), u, r
}

func get(srv http.Handler, host, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if host != "" {
		req.Host = host
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := get(srv, "", "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPlatformCheck(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	tests := []struct {
		name       string
		host       string
		path       string
		wantStatus int
		wantNotes  string
	}{
		{"update with skipped notes", "updates.example.com", "/darwin/aarch64/1.0.0", http.StatusOK, "## 1.1.0\nDark mode\n\n## 1.2.0\nFaster sync"},
		{"update with one note", "updates.example.com:443", "/darwin/aarch64/1.1.0", http.StatusOK, "Faster sync"},
		{"up to date", "updates.example.com", "/darwin/aarch64/1.2.0", http.StatusNoContent, ""},
		{"ahead of latest", "updates.example.com", "/darwin/aarch64/2.0.0", http.StatusNoContent, ""},
		{"unknown platform", "updates.example.com", "/linux/riscv64/1.0.0", http.StatusNoContent, ""},
		{"invalid version", "updates.example.com", "/darwin/aarch64/latest", http.StatusBadRequest, ""},
		{"unknown host", "other.example.com", "/darwin/aarch64/1.0.0", http.StatusNotFound, ""},
		{"by product name", "", "/products/desktop/darwin/aarch64/1.1.0", http.StatusOK, "Faster sync"},
		{"unknown product name", "", "/products/nope/darwin/aarch64/1.1.0", http.StatusNotFound, ""},
		{"simple product has no platforms", "", "/products/cli/darwin/aarch64/1.0.0", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(srv, tt.host, tt.path)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusOK {
				if tt.wantStatus >= 400 {
					assert.Contains(t, rec.Body.String(), `"error"`)
				}
				return
			}
			var update core.ResolvedUpdate
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &update))
			assert.Equal(t, "1.2.0", update.Version)
			assert.Equal(t, tt.wantNotes, update.Notes)
			assert.Equal(t, "https://cdn.example.com/desktop-1.2.0-aarch64.app.tar.gz", update.URL)
			assert.Equal(t, "sig-arm", update.Signature)
			assert.NotEmpty(t, rec.Header().Get("ETag"))
		})
	}
}

func TestSimpleCheck(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := get(srv, "cli.example.com", "/check/2.0.0")
	require.Equal(t, http.StatusOK, rec.Code)
	var rel core.SimpleRelease
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rel))
	assert.Equal(t, "2.0.1", rel.Version)
	assert.Equal(t, "Fix crash on start", rel.Notes)

	rec = get(srv, "cli.example.com", "/check/2.0.1")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// A Tauri product answers simple checks from its manifest.
	rec = get(srv, "", "/products/desktop/check/1.1.0")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rel))
	assert.Equal(t, "1.2.0", rel.Version)

	rec = get(srv, "cli.example.com", "/check/two")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheck_ETag(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	first := get(srv, "updates.example.com", "/darwin/aarch64/1.0.0")
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	again := get(srv, "updates.example.com", "/darwin/aarch64/1.0.0", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, again.Code)
	assert.Empty(t, again.Body.String())
	assert.Equal(t, etag, again.Header().Get("ETag"))

	// A client on another version gets different notes, so a different tag.
	other := get(srv, "updates.example.com", "/darwin/aarch64/1.1.0", "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, other.Code)
	assert.NotEqual(t, etag, other.Header().Get("ETag"))
}

func TestCheck_Unavailable(t *testing.T) {
	srv, u, _ := newTestServer(t, nil)
	u.down.Store(true)

	rec := get(srv, "updates.example.com", "/darwin/aarch64/1.0.0")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":{"type":"unavailable_error","message":"unable to fetch release"}}`, rec.Body.String())

	rec = get(srv, "cli.example.com", "/check/1.0.0")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheck_ServesStaleWhenUpstreamFails(t *testing.T) {
	srv, u, r := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, get(srv, "updates.example.com", "/darwin/aarch64/1.0.0").Code)

	u.down.Store(true)
	desktop, ok := r.Lookup("desktop")
	require.True(t, ok)
	desktop.Invalidate()

	rec := get(srv, "updates.example.com", "/darwin/aarch64/1.0.0")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheck_RecordsMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	update := observability.UpdateChecks.WithLabelValues("desktop", kindPlatform, observability.OutcomeUpdate)
	invalid := observability.UpdateChecks.WithLabelValues("desktop", kindPlatform, observability.OutcomeInvalid)
	unknown := observability.UpdateChecks.WithLabelValues(unknownProduct, kindSimple, observability.OutcomeUnknownProduct)
	beforeUpdate, beforeInvalid, beforeUnknown := testutil.ToFloat64(update), testutil.ToFloat64(invalid), testutil.ToFloat64(unknown)

	get(srv, "updates.example.com", "/darwin/aarch64/1.0.0")
	get(srv, "updates.example.com", "/darwin/aarch64/x.y")
	get(srv, "nowhere.example.com", "/check/1.0.0")

	assert.Equal(t, beforeUpdate+1, testutil.ToFloat64(update))
	assert.Equal(t, beforeInvalid+1, testutil.ToFloat64(invalid))
	assert.Equal(t, beforeUnknown+1, testutil.ToFloat64(unknown))
}

func TestEtagMatches(t *testing.T) {
	const etag = `"abc123"`
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc123"`, true},
		{`W/"abc123"`, true},
		{`"zzz", "abc123"`, true},
		{`"zzz"`, false},
		{"*", true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, etagMatches(tt.header, etag))
		})
	}
}
