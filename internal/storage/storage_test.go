package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Morning News", "Morning News"},
		{"Café del Mar", "Cafe del Mar"},
		{"a/b\\c", "a_b_c"},
		{"what? <now>", "what_ _now_"},
		{"../../etc", "_.._etc"},
		{"  .hidden. ", "hidden"},
		{"", "unnamed"},
		{"...", "unnamed"},
		{"tab\there", "tab_here"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestSanitizeName_Truncates(t *testing.T) {
	long := strings.Repeat("é", 200)
	got := SanitizeName(long)
	assert.LessOrEqual(t, len(got), maxNameLength)
	assert.NotEmpty(t, got)

	multi := strings.Repeat("日本", 50)
	got = SanitizeName(multi)
	assert.LessOrEqual(t, len(got), maxNameLength)
	assert.True(t, strings.HasPrefix(multi, got))
}

func TestLayout(t *testing.T) {
	base := t.TempDir()
	layout, err := NewLayout(filepath.Join(base, "out"))
	require.NoError(t, err)

	assert.DirExists(t, layout.BaseDir())
	assert.Equal(t, filepath.Join(layout.BaseDir(), "Radio One"), layout.StreamDir("Radio One"))
	assert.Equal(t, filepath.Join(layout.BaseDir(), "_.._evil"), layout.StreamDir("../../evil"))

	assert.True(t, layout.Contains(layout.StreamDir("x")))
	assert.True(t, layout.Contains(layout.BaseDir()))
	assert.False(t, layout.Contains(base))
	assert.False(t, layout.Contains(layout.BaseDir()+"-sibling"))
}

func TestRecordingPaths(t *testing.T) {
	start := time.Date(2026, 10, 19, 20, 5, 9, 0, time.UTC)

	ts, mp4 := RecordingPaths("/rec/radio", "Late Show", start, "mp4", 0)
	assert.Equal(t, "/rec/radio/Late Show/Late Show 2026-10-19 20-05-09.ts", ts)
	assert.Equal(t, "/rec/radio/Late Show/Late Show 2026-10-19 20-05-09.mp4", mp4)

	_, mkv := RecordingPaths("/rec/radio", "x", start, ".MKV", 0)
	assert.Equal(t, "/rec/radio/x/x 2026-10-19 20-05-09.mkv", mkv)

	_, def := RecordingPaths("/rec/radio", "x", start, "", 0)
	assert.True(t, strings.HasSuffix(def, ".mp4"))

	ts2, sameContainer := RecordingPaths("/rec/radio", "x", start, "ts", 0)
	assert.NotEqual(t, ts2, sameContainer)
	assert.True(t, strings.HasSuffix(sameContainer, ".remux.ts"))

	ts3, mp43 := RecordingPaths("/rec/radio", "Late Show", start, "mp4", 2)
	assert.Equal(t, "/rec/radio/Late Show/Late Show 2026-10-19 20-05-09 (3).ts", ts3)
	assert.Equal(t, "/rec/radio/Late Show/Late Show 2026-10-19 20-05-09 (3).mp4", mp43)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stream.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o640))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o640))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]any{"name": "radio", "forced": true}))

	var got map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "radio", got["name"])
	assert.Equal(t, true, got["forced"])

	assert.Error(t, WriteJSONAtomic(path, make(chan int)))
}

func TestUsage(t *testing.T) {
	usage, err := Usage(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, usage.TotalBytes)
	assert.LessOrEqual(t, usage.UsedPercent, 100.0)

	_, err = Usage(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
