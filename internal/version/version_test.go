package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, runtime.GOOS)
	assert.Contains(t, info.Platform, runtime.GOARCH)
}

func TestString(t *testing.T) {
	s := String()
	assert.Contains(t, s, ApplicationName)
	assert.Contains(t, s, "version")
}

func TestString_WithCommit(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	Version, Commit, Date = "1.2.0", "0123456789abcdef", "2026-10-19T00:00:00Z"
	s := String()
	assert.Contains(t, s, "hls2vod version 1.2.0 (commit: 01234567")
	assert.Contains(t, s, "built: 2026-10-19T00:00:00Z")
	assert.Equal(t, "0123456789abcdef", GetInfo().Commit)
}

func TestShort(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() { Version, Commit = origVersion, origCommit }()

	Version, Commit = "1.2.0", "unknown"
	assert.Equal(t, "1.2.0", Short())

	Commit = "0123456789abcdef"
	assert.Equal(t, "1.2.0 (01234567)", Short())
}

func TestUserAgent(t *testing.T) {
	origVersion := Version
	defer func() { Version = origVersion }()

	Version = "0.3.1"
	assert.Equal(t, "hls2vod/0.3.1", UserAgent())
}
