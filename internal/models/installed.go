package models

import (
	"slices"
	"time"
)

// InstalledInfo is the registry record for one installed game.
type InstalledInfo struct {
	AppName       string   `json:"app_name"`
	Platform      string   `json:"platform"`
	Executable    string   `json:"executable"`
	InstallPath   string   `json:"install_path"`
	InstallSize   int64    `json:"install_size"`
	Version       string   `json:"version"`
	BuildID       string   `json:"build_id"`
	Branch        string   `json:"branch,omitempty"`
	Language      string   `json:"language,omitempty"`
	InstalledDLCs []string `json:"installed_dlcs,omitempty"`
	PinnedVersion bool     `json:"pinned_version"`
}

// HasDLC reports whether the DLC is recorded as installed.
func (i InstalledInfo) HasDLC(id string) bool {
	return slices.Contains(i.InstalledDLCs, id)
}

// RemovedDLCs returns the installed DLCs absent from requested.
func (i InstalledInfo) RemovedDLCs(requested []string) []string {
	var removed []string
	for _, id := range i.InstalledDLCs {
		if !slices.Contains(requested, id) {
			removed = append(removed, id)
		}
	}
	return removed
}

// GameInfo is remote metadata about a title, as reported by its downloader.
type GameInfo struct {
	AppName       string   `json:"app_name"`
	Title         string   `json:"title"`
	LatestVersion string   `json:"latest_version"`
	LatestBuildID string   `json:"latest_build_id"`
	DownloadSize  int64    `json:"download_size"`
	InstallSize   int64    `json:"install_size"`
	Platforms     []string `json:"platforms,omitempty"`
	DLCs          []string `json:"dlcs,omitempty"`
}

// UpdateAvailable reports whether the remote build differs from the installed one.
func (g GameInfo) UpdateAvailable(installed InstalledInfo) bool {
	if g.LatestBuildID != "" && installed.BuildID != "" {
		return g.LatestBuildID != installed.BuildID
	}
	return g.LatestVersion != "" && g.LatestVersion != installed.Version
}

// GameSettings are per-game user preferences.
type GameSettings struct {
	AutoUpdate bool   `json:"auto_update"`
	Language   string `json:"language,omitempty"`
	LaunchArgs string `json:"launch_args,omitempty"`
}

// DefaultGameSettings opts a game into auto-update.
func DefaultGameSettings() GameSettings {
	return GameSettings{AutoUpdate: true}
}

// PlaySession is one telemetry report for time spent in a game.
type PlaySession struct {
	Identity  GameIdentity `json:"identity"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
}

// Duration of the session, never negative.
func (p PlaySession) Duration() time.Duration {
	if p.EndedAt.Before(p.StartedAt) {
		return 0
	}
	return p.EndedAt.Sub(p.StartedAt)
}
