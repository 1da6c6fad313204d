// Package core provides the domain types and errors shared by the update service.
package core

import "time"

// ReleaseNote is the changelog text published for one version.
// Notes are keyed by Version; a later note for the same version replaces the earlier one.
type ReleaseNote struct {
	Version string `json:"version"`
	Notes   string `json:"notes"`
}

// PlatformArtifact is one downloadable bundle of a release.
type PlatformArtifact struct {
	URL       string `json:"url"`
	Signature string `json:"signature"`
}

// LatestRelease is a release manifest with per-platform artifacts, in the
// shape of a Tauri updater "latest.json" file. Platforms are keyed by
// "<target>-<arch>", e.g. "darwin-aarch64".
type LatestRelease struct {
	Version   string                      `json:"version"`
	Notes     string                      `json:"notes"`
	PubDate   time.Time                   `json:"pub_date"`
	Platforms map[string]PlatformArtifact `json:"platforms"`
}

// SimpleRelease is a release without platform artifacts.
type SimpleRelease struct {
	Version string    `json:"version"`
	Notes   string    `json:"notes"`
	PubDate time.Time `json:"pub_date"`
}

// ResolvedUpdate is the payload returned to a client that has an update
// available for its platform.
type ResolvedUpdate struct {
	Version   string    `json:"version"`
	Notes     string    `json:"notes"`
	PubDate   time.Time `json:"pub_date"`
	URL       string    `json:"url"`
	Signature string    `json:"signature"`
}

// PlatformKey builds the key used in LatestRelease.Platforms.
func PlatformKey(target, arch string) string {
	return target + "-" + arch
}

// Kind selects how a product's releases are published.
type Kind string

const (
	// KindTauri products publish a manifest with per-platform artifacts.
	KindTauri Kind = "tauri"
	// KindSimple products publish only a version, notes and a date.
	KindSimple Kind = "simple"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTauri || k == KindSimple
}
