package releases

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"goupdate/internal/core"
)

// FetchManifest downloads and parses a Tauri updater manifest ("latest.json").
func (s *Source) FetchManifest(ctx context.Context, url string) (*core.LatestRelease, error) {
	raw, err := s.get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	return ParseManifest(raw)
}

// fetchManifestAsset downloads the manifest attached to a release. With a
// token the asset is read through the API, which also works for private
// repositories.
func (s *Source) fetchManifestAsset(ctx context.Context, asset Asset) (*core.LatestRelease, error) {
	if s.Token != "" && asset.APIURL != "" {
		raw, err := s.get(ctx, asset.APIURL, "application/octet-stream")
		if err != nil {
			return nil, err
		}
		return ParseManifest(raw)
	}
	return s.FetchManifest(ctx, asset.DownloadURL)
}

// ParseManifest parses a Tauri updater manifest. The platforms object maps
// "<target>-<arch>" to {url, signature}; entries without a URL are dropped.
func ParseManifest(raw []byte) (*core.LatestRelease, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("parsing manifest JSON: invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("parsing manifest JSON: expected an object")
	}

	latest := &core.LatestRelease{
		Version:   doc.Get("version").String(),
		Notes:     doc.Get("notes").String(),
		Platforms: make(map[string]core.PlatformArtifact),
	}
	if pub := doc.Get("pub_date").String(); pub != "" {
		t, err := time.Parse(time.RFC3339, pub)
		if err != nil {
			return nil, fmt.Errorf("parsing manifest pub_date %q: %w", pub, err)
		}
		latest.PubDate = t
	}

	doc.Get("platforms").ForEach(func(key, p gjson.Result) bool {
		url := p.Get("url").String()
		if url == "" {
			return true
		}
		latest.Platforms[key.String()] = core.PlatformArtifact{
			URL:       url,
			Signature: p.Get("signature").String(),
		}
		return true
	})

	return latest, nil
}
