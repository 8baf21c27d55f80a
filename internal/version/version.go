// Package version exposes build metadata for hls2vod.
//
// Release builds set the variables with ldflags:
//
//	-X github.com/basshelal/hls2vod/internal/version.Version=x.y.z
//	-X github.com/basshelal/hls2vod/internal/version.Commit=$(git rev-parse HEAD)
//	-X github.com/basshelal/hls2vod/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)
//
// Builds without ldflags, such as go install, fall back to the VCS stamp
// the toolchain embeds.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "hls2vod"

// Info is the structured form printed by `hls2vod version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var (
	buildInfoOnce sync.Once
	vcs           map[string]string
)

func vcsSetting(key string) string {
	buildInfoOnce.Do(func() {
		vcs = make(map[string]string)
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range bi.Settings {
			vcs[s.Key] = s.Value
		}
	})
	return vcs[key]
}

// GetInfo returns the build metadata, preferring ldflags values.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Commit == "unknown" {
		if rev := vcsSetting("vcs.revision"); rev != "" {
			info.Commit = rev
			info.Modified = vcsSetting("vcs.modified") == "true"
		}
	}
	if info.Date == "unknown" {
		if at := vcsSetting("vcs.time"); at != "" {
			info.Date = at
		}
	}
	return info
}

func shortCommit(commit string) string {
	if commit == "unknown" || len(commit) < 8 {
		return ""
	}
	return commit[:8]
}

// String returns the line printed by `hls2vod version`.
func String() string {
	info := GetInfo()
	s := ApplicationName + " version " + info.Version
	if c := shortCommit(info.Commit); c != "" {
		s += " (commit: " + c
		if info.Modified {
			s += "-dirty"
		}
		s += ", built: " + info.Date + ")"
	}
	return s + " " + info.GoVersion + " " + info.Platform
}

// Short returns the version with an abbreviated commit, for cobra's --version.
func Short() string {
	if c := shortCommit(Commit); c != "" {
		return Version + " (" + c + ")"
	}
	return Version
}

// UserAgent returns the User-Agent sent on playlist and segment requests.
func UserAgent() string {
	return ApplicationName + "/" + Version
}
