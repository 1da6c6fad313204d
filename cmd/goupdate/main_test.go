package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReleases = `[
  {"tag_name": "v0.9.0", "body": "Plugin API", "published_at": "2026-06-01T08:00:00Z",
   "assets": [{"name": "latest.json", "browser_download_url": "%s/download/latest.json"}]},
  {"tag_name": "v0.8.0", "body": "Tray icon", "published_at": "2026-05-01T08:00:00Z", "assets": []}
]`

const testManifest = `{
  "version": "0.9.0",
  "pub_date": "2026-06-01T08:05:00Z",
  "platforms": {"linux-x86_64": {"url": "https://cdn.example.com/app-0.9.0.AppImage.tar.gz", "signature": "sig-linux"}}
}`

// setup serves two products from a fake release API and writes a config
// file pointing at it.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", "")

	var srv *httptest.Server
	mux := http.NewServeMux()
	for _, repo := range []string{"app", "tool"} {
		mux.HandleFunc("/repos/acme/"+repo+"/releases", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.ReplaceAll(testReleases, "%s", srv.URL)))
		})
	}
	mux.HandleFunc("/download/latest.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testManifest))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	path := filepath.Join(dir, "goupdate.yaml")
	content := `
cache:
  type: none
notes:
  store: memory
github:
  api_url: ` + srv.URL + `
products:
  - name: app
    kind: tauri
    hosts: [app.example.com]
    owner: acme
    repo: app
  - name: tool
    kind: simple
    hosts: [tool.example.com]
    owner: acme
    repo: tool
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCommand_Platform(t *testing.T) {
	cfgPath := setup(t)

	out, err := execute(t, "check", "--config", cfgPath,
		"--product", "app", "--target", "linux", "--arch", "x86_64", "--current", "0.7.0")
	require.NoError(t, err)

	var got struct {
		Product   string `json:"product"`
		Available bool   `json:"available"`
		Update    struct {
			Version   string `json:"version"`
			Notes     string `json:"notes"`
			URL       string `json:"url"`
			Signature string `json:"signature"`
		} `json:"update"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "app", got.Product)
	assert.True(t, got.Available)
	assert.Equal(t, "0.9.0", got.Update.Version)
	assert.Equal(t, "## 0.8.0\nTray icon\n\n## 0.9.0\nPlugin API", got.Update.Notes)
	assert.Equal(t, "sig-linux", got.Update.Signature)
}

func TestCheckCommand_SimpleByHost(t *testing.T) {
	cfgPath := setup(t)

	out, err := execute(t, "check", "--config", cfgPath, "--host", "TOOL.example.com:8443", "--current", "0.9.0")
	require.NoError(t, err)
	assert.JSONEq(t, `{"product":"tool","current_version":"0.9.0","available":false}`, out)
}

func TestCheckCommand_Errors(t *testing.T) {
	cfgPath := setup(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown product", []string{"--product", "nope", "--current", "1.0.0"}, "unknown product"},
		{"unknown host", []string{"--host", "nowhere.example.com", "--current", "1.0.0"}, "no product is served"},
		{"invalid version", []string{"--product", "app", "--current", "1.0-beta"}, "invalid current version"},
		{"missing current", []string{"--product", "app"}, "current"},
		{"product and host", []string{"--product", "app", "--host", "app.example.com", "--current", "1.0.0"}, "product"},
		{"target without arch", []string{"--product", "app", "--target", "linux", "--current", "1.0.0"}, "arch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"check", "--config", cfgPath}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "goupdate "), out)
}
