// Package resolver decides whether a client has an update available and builds
// the payload it receives.
package resolver

import (
	"sort"
	"strings"

	"goupdate/internal/core"
	"goupdate/internal/vercmp"
)

// PlatformDecision is the outcome of a platform update check.
// Update is set only when Available is true.
type PlatformDecision struct {
	Available bool
	Update    *core.ResolvedUpdate
}

// SimpleDecision is the outcome of a simple update check.
// Release is set only when Available is true.
type SimpleDecision struct {
	Available bool
	Release   *core.SimpleRelease
}

// AggregateNotes builds the changelog a client on current has not seen yet:
// the notes of every valid version strictly newer than current. No such
// version yields "". A single version yields its notes unchanged. Several are
// rendered oldest first as "## <version>\n<notes>" sections separated by a
// blank line.
func AggregateNotes(all []core.ReleaseNote, current string) string {
	newer := make([]core.ReleaseNote, 0, len(all))
	for _, n := range all {
		if !vercmp.IsValid(n.Version) {
			continue
		}
		if vercmp.Compare(n.Version, current) > 0 {
			newer = append(newer, n)
		}
	}

	switch len(newer) {
	case 0:
		return ""
	case 1:
		return newer[0].Notes
	}

	sort.SliceStable(newer, func(i, j int) bool {
		return vercmp.Compare(newer[i].Version, newer[j].Version) < 0
	})

	sections := make([]string, len(newer))
	for i, n := range newer {
		sections[i] = "## " + n.Version + "\n" + n.Notes
	}
	return strings.Join(sections, "\n\n")
}

// FindPlatformUpdate returns the update payload for target/arch, or nil when
// the release has no artifact for that platform.
func FindPlatformUpdate(latest *core.LatestRelease, target, arch, notes string) *core.ResolvedUpdate {
	if latest == nil {
		return nil
	}
	artifact, ok := latest.Platforms[core.PlatformKey(target, arch)]
	if !ok {
		return nil
	}
	return &core.ResolvedUpdate{
		Version:   latest.Version,
		Notes:     notes,
		PubDate:   latest.PubDate,
		URL:       artifact.URL,
		Signature: artifact.Signature,
	}
}

// ResolvePlatform decides whether a client on current running target/arch
// should update to latest. The notes cover every version the client skipped;
// when the history has nothing newer, the release's own notes are used.
func ResolvePlatform(latest *core.LatestRelease, all []core.ReleaseNote, current, target, arch string) PlatformDecision {
	if latest == nil {
		return PlatformDecision{}
	}
	notes := AggregateNotes(all, current)
	if notes == "" {
		notes = latest.Notes
	}
	return decidePlatform(latest, notes, current, target, arch)
}

func decidePlatform(latest *core.LatestRelease, notes, current, target, arch string) PlatformDecision {
	update := FindPlatformUpdate(latest, target, arch, notes)
	if update == nil || vercmp.Compare(latest.Version, current) <= 0 {
		return PlatformDecision{}
	}
	return PlatformDecision{Available: true, Update: update}
}

// ResolveSimple decides whether a client on current should update to latest.
// The returned release carries the aggregated notes of the skipped versions,
// or the release's own notes when the history has nothing newer.
func ResolveSimple(latest *core.SimpleRelease, all []core.ReleaseNote, current string) SimpleDecision {
	if latest == nil {
		return SimpleDecision{}
	}
	return decideSimple(latest, AggregateNotes(all, current), current)
}

func decideSimple(latest *core.SimpleRelease, notes, current string) SimpleDecision {
	if vercmp.Compare(latest.Version, current) <= 0 {
		return SimpleDecision{}
	}
	release := *latest
	if notes != "" {
		release.Notes = notes
	}
	return SimpleDecision{Available: true, Release: &release}
}
