// Package releases reads published releases from the GitHub Releases API and
// turns them into the values cached per product.
package releases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	"goupdate/internal/httpclient"
	"goupdate/internal/pkg/apiclient"
	"goupdate/internal/vercmp"
)

// Defaults applied by Source when a field is left empty.
const (
	DefaultAPIURL        = "https://api.github.com"
	DefaultManifestAsset = "latest.json"
	DefaultPerPage       = 30
	maxPerPage           = 100
)

// Sentinel errors returned by Source and the producers.
var (
	ErrNoRelease       = errors.New("no usable release published")
	ErrManifestMissing = errors.New("release has no manifest asset")
	ErrRateLimited     = errors.New("rate limited by release API")
	ErrNotFound        = errors.New("repository or asset not found")
)

// Asset is a file attached to a release.
type Asset struct {
	Name        string
	DownloadURL string
	APIURL      string
	Size        int64
}

// Release is one published release with a version clients can compare.
type Release struct {
	Tag         string
	Version     string
	Name        string
	Body        string
	PublishedAt time.Time
	Prerelease  bool
	Assets      []Asset
}

// Asset returns the attached file with the given name.
func (r *Release) Asset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// Source reads the releases of one GitHub repository.
type Source struct {
	APIURL             string
	Owner              string
	Repo               string
	Token              string
	TagPrefix          string
	IncludePrereleases bool
	ManifestAsset      string
	PerPage            int

	// API sends the requests. When nil, Client (or a shared default) is used
	// without retries or circuit breaking.
	API    *apiclient.Client
	Client *http.Client
}

func (s *Source) apiURL() string {
	if s.APIURL == "" {
		return DefaultAPIURL
	}
	return strings.TrimRight(s.APIURL, "/")
}

func (s *Source) manifestAsset() string {
	if s.ManifestAsset == "" {
		return DefaultManifestAsset
	}
	return s.ManifestAsset
}

func (s *Source) perPage() int {
	switch {
	case s.PerPage <= 0:
		return DefaultPerPage
	case s.PerPage > maxPerPage:
		return maxPerPage
	default:
		return s.PerPage
	}
}

var defaultClient = httpclient.NewDefaultHTTPClient()

func (s *Source) api() *apiclient.Client {
	if s.API != nil {
		return s.API
	}
	client := s.Client
	if client == nil {
		client = defaultClient
	}
	return apiclient.New(client, apiclient.Config{Name: "github"})
}

// String identifies the repository in logs.
func (s *Source) String() string {
	return s.Owner + "/" + s.Repo
}

// FetchReleases lists the repository's releases, newest version first.
// Drafts are skipped, as are tags that do not normalise to a numeric version.
// Releases flagged as prereleases are kept only when IncludePrereleases is set.
func (s *Source) FetchReleases(ctx context.Context) ([]Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", s.apiURL(), s.Owner, s.Repo, s.perPage())

	raw, err := s.get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	return s.parseReleases(raw)
}

func (s *Source) parseReleases(raw []byte) ([]Release, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("parsing releases JSON: invalid JSON")
	}
	list := gjson.ParseBytes(raw)
	if !list.IsArray() {
		return nil, fmt.Errorf("parsing releases JSON: expected an array")
	}

	type parsed struct {
		release Release
		sem     *semver.Version
	}
	var out []parsed

	list.ForEach(func(_, r gjson.Result) bool {
		if r.Get("draft").Bool() {
			return true
		}
		prerelease := r.Get("prerelease").Bool()
		if prerelease && !s.IncludePrereleases {
			return true
		}

		tag := r.Get("tag_name").String()
		version, sem, ok := s.normaliseTag(tag)
		if !ok {
			slog.Debug("skipping release with unusable tag", "repo", s.String(), "tag", tag)
			return true
		}

		rel := Release{
			Tag:         tag,
			Version:     version,
			Name:        r.Get("name").String(),
			Body:        r.Get("body").String(),
			PublishedAt: r.Get("published_at").Time(),
			Prerelease:  prerelease,
		}
		r.Get("assets").ForEach(func(_, a gjson.Result) bool {
			rel.Assets = append(rel.Assets, Asset{
				Name:        a.Get("name").String(),
				DownloadURL: a.Get("browser_download_url").String(),
				APIURL:      a.Get("url").String(),
				Size:        a.Get("size").Int(),
			})
			return true
		})
		out = append(out, parsed{release: rel, sem: sem})
		return true
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].sem.GreaterThan(out[j].sem)
	})

	releases := make([]Release, len(out))
	for i, p := range out {
		releases[i] = p.release
	}
	return releases, nil
}

// normaliseTag strips the configured prefix (and a leading "v") from tag and
// returns the version clients compare against. Tags carrying a semver
// prerelease or build suffix are rejected: clients report plain numeric
// versions and could never be ordered against them.
func (s *Source) normaliseTag(tag string) (string, *semver.Version, bool) {
	v := strings.TrimPrefix(tag, s.TagPrefix)
	v = strings.TrimPrefix(v, "v")
	if !vercmp.IsValid(v) {
		return "", nil, false
	}
	sem, err := semver.NewVersion(v)
	if err != nil || sem.Prerelease() != "" || sem.Metadata() != "" {
		return "", nil, false
	}
	return v, sem, true
}

func (s *Source) get(ctx context.Context, url, accept string) ([]byte, error) {
	header := http.Header{}
	header.Set("Accept", accept)
	if s.Token != "" && strings.HasPrefix(url, s.apiURL()) {
		header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.api().Get(ctx, url, header)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return nil, fmt.Errorf("%w: reset at %s", ErrRateLimited, resp.Header.Get("X-RateLimit-Reset"))
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}
