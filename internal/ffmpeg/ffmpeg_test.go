package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestCommandBuilder_RemuxArgs(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		Overwrite().
		Input("in.ts").
		StreamCopy().
		Output("out.mp4").
		Build()

	assert.Equal(t, []string{"-y", "-loglevel", "warning", "-i", "in.ts", "-c", "copy", "out.mp4"}, cmd.Args)
	assert.Equal(t, "/usr/bin/ffmpeg -y -loglevel warning -i in.ts -c copy out.mp4", cmd.String())
}

func TestCommandBuilder_Options(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		LogLevel("error").
		InputArgs("-fflags", "+genpts").
		Input("a.ts").
		OutputArgs("-movflags", "+faststart").
		Output("a.mp4").
		Build()

	assert.Equal(t, []string{"-loglevel", "error", "-fflags", "+genpts", "-i", "a.ts", "-movflags", "+faststart", "a.mp4"}, cmd.Args)
}

func TestCommand_RunCapturesOutput(t *testing.T) {
	bin := writeScript(t, `echo "line one"; echo "line two" >&2; exit 0`)

	cmd := NewCommandBuilder(bin).Input("x").Output("y").Build()
	require.NoError(t, cmd.Run(context.Background()))
	assert.Equal(t, []string{"line one", "line two"}, cmd.OutputLines())
	assert.Positive(t, cmd.Duration())
}

func TestCommand_RunExitCode(t *testing.T) {
	bin := writeScript(t, `echo "Invalid data found when processing input" >&2; exit 3`)

	cmd := NewCommandBuilder(bin).Input("x").Output("y").Build()
	err := cmd.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
	assert.Contains(t, cmd.OutputLines(), "Invalid data found when processing input")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, -1, ExitCode(os.ErrNotExist))
}

func TestFindBinary(t *testing.T) {
	t.Run("configured path wins", func(t *testing.T) {
		bin := writeScript(t, "exit 0")
		t.Setenv(BinaryEnvVar, "")

		path, err := FindBinary(bin)
		require.NoError(t, err)
		assert.Equal(t, bin, path)
	})

	t.Run("configured path missing", func(t *testing.T) {
		_, err := FindBinary("/nonexistent/ffmpeg")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("environment variable", func(t *testing.T) {
		bin := writeScript(t, "exit 0")
		t.Setenv(BinaryEnvVar, bin)

		path, err := FindBinary("")
		require.NoError(t, err)
		assert.Equal(t, bin, path)
	})

	t.Run("not executable is ignored", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ffmpeg")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		assert.False(t, isExecutable(path))
		assert.False(t, isExecutable(t.TempDir()))
	})
}

func TestParseVersion(t *testing.T) {
	info, err := parseVersion("/bin/ffmpeg", "ffmpeg version n6.1.1-3 Copyright (c) 2000-2023\nbuilt with gcc 13\n")
	require.NoError(t, err)
	assert.Equal(t, "n6.1.1-3", info.Version)
	assert.Equal(t, 6, info.MajorVersion)
	assert.Equal(t, 1, info.MinorVersion)

	_, err = parseVersion("/bin/ffmpeg", "garbage")
	assert.Error(t, err)
}

func TestDetector(t *testing.T) {
	bin := writeScript(t, `echo "ffmpeg version 7.0.2 Copyright"`)

	d := NewDetector(bin)
	info, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, info.MajorVersion)
	assert.Equal(t, bin, info.Path)

	again, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Same(t, info, again)
}
