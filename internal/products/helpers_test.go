package products

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const tauriReleases = `[
  {
    "tag_name": "v1.2.0",
    "body": "Faster sync",
    "draft": false,
    "prerelease": false,
    "published_at": "2026-03-02T09:00:00Z",
    "assets": [
      {"name": "latest.json", "browser_download_url": "%[1]s/download/desktop/latest.json", "url": "%[1]s/api/assets/1"}
    ]
  },
  {
    "tag_name": "v1.1.0",
    "body": "Dark mode",
    "draft": false,
    "prerelease": false,
    "published_at": "2026-02-01T09:00:00Z",
    "assets": []
  }
]`

const tauriManifest = `{
  "version": "1.2.0",
  "notes": "Faster sync",
  "pub_date": "2026-03-02T09:05:00Z",
  "platforms": {
    "darwin-aarch64": {"signature": "sig-arm", "url": "https://cdn.example.com/desktop-1.2.0-aarch64.app.tar.gz"},
    "windows-x86_64": {"signature": "sig-x64", "url": "https://cdn.example.com/desktop-1.2.0-x64.msi.zip"}
  }
}`

const simpleReleases = `[
  {
    "tag_name": "cli-v2.0.1",
    "body": "Fix crash on start",
    "draft": false,
    "prerelease": false,
    "published_at": "2026-03-05T12:00:00Z",
    "assets": []
  },
  {
    "tag_name": "cli-v2.0.0",
    "body": "New config format",
    "draft": false,
    "prerelease": false,
    "published_at": "2026-03-01T12:00:00Z",
    "assets": []
  }
]`

// releaseServer fakes the release API for the "acme/desktop" (Tauri) and
// "acme/cli" (simple) repositories.
type releaseServer struct {
	*httptest.Server
	listCalls atomic.Int32
	fail      atomic.Bool
}

func newReleaseServer(t *testing.T) *releaseServer {
	t.Helper()
	s := &releaseServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/desktop/releases", func(w http.ResponseWriter, r *http.Request) {
		s.listCalls.Add(1)
		if s.fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = fmt.Fprintf(w, tauriReleases, s.URL)
	})
	mux.HandleFunc("/repos/acme/cli/releases", func(w http.ResponseWriter, r *http.Request) {
		s.listCalls.Add(1)
		if s.fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(simpleReleases))
	})
	mux.HandleFunc("/download/desktop/latest.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tauriManifest))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}
