package releases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"goupdate/internal/cache"
	"goupdate/internal/core"
	"goupdate/internal/notes"
	"goupdate/internal/vercmp"
)

// Notes returns the release notes carried by releases, one per version.
func Notes(releases []Release) []core.ReleaseNote {
	out := make([]core.ReleaseNote, 0, len(releases))
	for _, r := range releases {
		out = append(out, core.ReleaseNote{Version: r.Version, Notes: strings.TrimSpace(r.Body)})
	}
	return out
}

// Latest returns the newest release. releases must be ordered as returned by
// FetchReleases.
func Latest(releases []Release) (Release, error) {
	if len(releases) == 0 {
		return Release{}, ErrNoRelease
	}
	return releases[0], nil
}

// TauriProducer returns a cache producer that reads the newest release's
// manifest. Every fetched release's notes are merged into merger first, so the
// history grows even when the manifest fetch fails.
func TauriProducer(src *Source, merger *notes.Merger) cache.Producer[*core.LatestRelease] {
	return func(ctx context.Context) (*core.LatestRelease, error) {
		list, err := src.FetchReleases(ctx)
		if err != nil {
			return nil, err
		}
		if merger != nil {
			merger.Merge(ctx, Notes(list))
		}

		rel, err := Latest(list)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		asset, ok := rel.Asset(src.manifestAsset())
		if !ok {
			return nil, fmt.Errorf("%s %s: %w: %s", src, rel.Tag, ErrManifestMissing, src.manifestAsset())
		}

		manifest, err := src.fetchManifestAsset(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", src, rel.Tag, err)
		}

		if manifest.Version == "" {
			manifest.Version = rel.Version
		} else if manifest.Version != rel.Version {
			slog.Warn("manifest version differs from release tag",
				"repo", src.String(),
				"tag", rel.Tag,
				"manifest_version", manifest.Version,
			)
		}
		if manifest.Notes == "" {
			manifest.Notes = strings.TrimSpace(rel.Body)
		} else if merger != nil && strings.TrimSpace(rel.Body) == "" {
			merger.Merge(ctx, []core.ReleaseNote{{Version: manifest.Version, Notes: manifest.Notes}})
		}
		if manifest.PubDate.IsZero() {
			manifest.PubDate = rel.PublishedAt
		}
		return manifest, nil
	}
}

// SimpleProducer returns a cache producer that reports the newest release's
// version, notes and publish date.
func SimpleProducer(src *Source, merger *notes.Merger) cache.Producer[*core.SimpleRelease] {
	return func(ctx context.Context) (*core.SimpleRelease, error) {
		list, err := src.FetchReleases(ctx)
		if err != nil {
			return nil, err
		}
		if merger != nil {
			merger.Merge(ctx, Notes(list))
		}

		rel, err := Latest(list)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		return &core.SimpleRelease{
			Version: rel.Version,
			Notes:   strings.TrimSpace(rel.Body),
			PubDate: rel.PublishedAt,
		}, nil
	}
}

// ValidateLatest rejects a manifest that clients could not be compared against.
func ValidateLatest(latest *core.LatestRelease) error {
	if latest == nil {
		return ErrNoRelease
	}
	if !vercmp.IsValid(latest.Version) {
		return fmt.Errorf("invalid manifest version %q", latest.Version)
	}
	if len(latest.Platforms) == 0 {
		return fmt.Errorf("manifest %s lists no platforms", latest.Version)
	}
	return nil
}

// ValidateSimple rejects a release without a comparable version.
func ValidateSimple(latest *core.SimpleRelease) error {
	if latest == nil {
		return ErrNoRelease
	}
	if !vercmp.IsValid(latest.Version) {
		return fmt.Errorf("invalid release version %q", latest.Version)
	}
	return nil
}
