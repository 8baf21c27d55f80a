package recording

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/basshelal/hls2vod/internal/models"
	"github.com/basshelal/hls2vod/internal/repository"
)

// fakeFFmpeg writes a shell script that stands in for ffmpeg. The last
// argument is the output path.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const copyingFFmpeg = `cat "$5" > "$last"`

func TestConcatter_AppendsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.ts")
	c, err := NewConcatter(path)
	require.NoError(t, err)

	require.NoError(t, c.ConcatData([]byte("one,")))
	require.NoError(t, c.ConcatData([]byte("two,")))
	require.NoError(t, c.ConcatData([]byte("three")))
	require.NoError(t, c.End())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one,two,three", string(data))
	assert.Equal(t, 3, c.Segments())
	assert.Equal(t, int64(13), c.Bytes())
	assert.Equal(t, path, c.Path())
}

func TestConcatter_EndIsIdempotent(t *testing.T) {
	c, err := NewConcatter(filepath.Join(t.TempDir(), "out.ts"))
	require.NoError(t, err)

	require.NoError(t, c.End())
	require.NoError(t, c.End())
	assert.True(t, c.Ended())
	assert.ErrorIs(t, c.ConcatData([]byte("late")), ErrConcatterClosed)
	assert.Zero(t, c.Segments())
}

func TestConcatter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	require.NoError(t, os.WriteFile(path, []byte("head,"), 0o644))

	c, err := NewConcatter(path)
	require.NoError(t, err)
	require.NoError(t, c.ConcatData([]byte("tail")))
	require.NoError(t, c.End())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "head,tail", string(data))
}

func TestCreateConcatter_RefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	require.NoError(t, os.WriteFile(path, []byte("head,"), 0o644))

	_, err := CreateConcatter(path)
	assert.ErrorIs(t, err, fs.ErrExist)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "head,", string(data))
}

func TestConcatter_ConcatFromFiles(t *testing.T) {
	dir := t.TempDir()
	var parts []string
	for i, body := range []string{"a", "bb", "ccc"} {
		p := filepath.Join(dir, string(rune('0'+i))+".ts")
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		parts = append(parts, p)
	}

	out := filepath.Join(dir, "joined.ts")
	c, err := NewConcatter(out)
	require.NoError(t, err)
	require.NoError(t, c.ConcatFromFiles(context.Background(), parts...))
	require.NoError(t, c.End())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "abbccc", string(data))
	assert.Equal(t, 3, c.Segments())

	c2, err := NewConcatter(filepath.Join(dir, "missing.ts"))
	require.NoError(t, err)
	defer c2.End()
	assert.Error(t, c2.ConcatFromFiles(context.Background(), filepath.Join(dir, "nope.ts")))
}

func TestConcatter_ConcurrentWritesAreWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	c, err := NewConcatter(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.ConcatData([]byte("0123456789")))
		}()
	}
	wg.Wait()
	require.NoError(t, c.End())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 200)
	for i := 0; i < len(data); i += 10 {
		assert.Equal(t, "0123456789", string(data[i:i+10]))
	}
}

func TestSession_Paths(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 10, 19, 14, 30, 5, 0, time.UTC)

	s, err := NewSession(SessionOptions{
		Stream:    "radio",
		Show:      "Morning Show",
		StreamDir: dir,
		StartedAt: started,
	})
	require.NoError(t, err)
	defer s.Close(started)

	assert.Equal(t, filepath.Join(dir, "Morning Show", "Morning Show 2026-10-19 14-30-05.ts"), s.IntermediatePath)
	assert.Equal(t, filepath.Join(dir, "Morning Show", "Morning Show 2026-10-19 14-30-05.mp4"), s.FinalPath)
	assert.NotEmpty(t, s.ID)
	assert.FileExists(t, s.IntermediatePath)
}

func TestSession_ForcedName(t *testing.T) {
	s, err := NewSession(SessionOptions{Stream: "radio", Forced: true, StreamDir: t.TempDir(), Container: "mkv"})
	require.NoError(t, err)
	defer s.Close(time.Now())

	assert.Equal(t, ForcedShowName, s.Show)
	assert.True(t, s.Forced)
	assert.Equal(t, ".mkv", filepath.Ext(s.FinalPath))
}

func TestSession_WriteAndClose(t *testing.T) {
	s, err := NewSession(SessionOptions{Stream: "radio", Show: "news", StreamDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, s.Write([]byte("seg1")))
	require.NoError(t, s.Write([]byte("seg2")))

	first := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.Close(first))
	require.NoError(t, s.Close(first.Add(time.Minute)))

	assert.True(t, s.Closed())
	assert.Equal(t, first, s.EndedAt())
	assert.Equal(t, 2, s.Segments())
	assert.Equal(t, int64(8), s.Bytes())

	assert.ErrorIs(t, s.Write([]byte("late")), ErrConcatterClosed)
	assert.Zero(t, s.WriteErrors())
}

func TestSession_SameSecondGetsOwnFiles(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 10, 19, 14, 30, 5, 0, time.UTC)
	opts := SessionOptions{Stream: "radio", Show: "news", StreamDir: dir, StartedAt: started}

	first, err := NewSession(opts)
	require.NoError(t, err)
	second, err := NewSession(opts)
	require.NoError(t, err)

	assert.NotEqual(t, first.IntermediatePath, second.IntermediatePath)
	assert.NotEqual(t, first.FinalPath, second.FinalPath)
	assert.Equal(t, filepath.Join(dir, "news", "news 2026-10-19 14-30-05 (2).ts"), second.IntermediatePath)

	require.NoError(t, first.Write([]byte("first")))
	require.NoError(t, second.Write([]byte("second")))
	require.NoError(t, first.Close(started))
	require.NoError(t, second.Close(started))

	data, err := os.ReadFile(first.IntermediatePath)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	data, err = os.ReadFile(second.IntermediatePath)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestSession_SkipsExistingFinalFile(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 10, 19, 14, 30, 5, 0, time.UTC)
	done := filepath.Join(dir, "news", "news 2026-10-19 14-30-05.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(done), 0o750))
	require.NoError(t, os.WriteFile(done, []byte("finished"), 0o644))

	s, err := NewSession(SessionOptions{Stream: "radio", Show: "news", StreamDir: dir, StartedAt: started})
	require.NoError(t, err)
	defer s.Close(started)

	assert.Equal(t, filepath.Join(dir, "news", "news 2026-10-19 14-30-05 (2).mp4"), s.FinalPath)
	assert.NoFileExists(t, filepath.Join(dir, "news", "news 2026-10-19 14-30-05.ts"))
}

func TestRemuxer_Success(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ts")
	out := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(in, []byte("payload"), 0o644))

	// argv: -y -loglevel warning -i <in> -c copy -movflags +faststart <out>
	r := NewRemuxer(fakeFFmpeg(t, copyingFFmpeg), nil)
	require.NoError(t, r.Remux(context.Background(), in, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.NoFileExists(t, in)
}

func TestRemuxer_FaststartOnlyForMP4(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	r := NewRemuxer(fakeFFmpeg(t, `echo "$@" > "`+argsFile+`"; cat "$5" > "$last"`), nil)

	for _, tt := range []struct {
		output    string
		faststart bool
	}{
		{"show.mp4", true},
		{"show.mkv", false},
	} {
		in := filepath.Join(dir, "in.ts")
		require.NoError(t, os.WriteFile(in, []byte("payload"), 0o644))
		require.NoError(t, r.Remux(context.Background(), in, filepath.Join(dir, tt.output)))

		args, err := os.ReadFile(argsFile)
		require.NoError(t, err)
		assert.Equal(t, tt.faststart, strings.Contains(string(args), "-movflags +faststart"), tt.output)
		assert.Contains(t, string(args), "-c copy")
	}
}

func TestRemuxer_FailureKeepsIntermediate(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ts")
	require.NoError(t, os.WriteFile(in, []byte("payload"), 0o644))

	r := NewRemuxer(fakeFFmpeg(t, `echo "moov atom not found" >&2; exit 1`), nil)
	err := r.Remux(context.Background(), in, filepath.Join(dir, "out.mp4"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrRemuxFailed)
	var remuxErr *RemuxError
	require.ErrorAs(t, err, &remuxErr)
	assert.Equal(t, 1, remuxErr.ExitCode)
	assert.Contains(t, remuxErr.Output, "moov atom not found")
	assert.Contains(t, err.Error(), "moov atom not found")
	assert.FileExists(t, in)
}

func TestRemuxer_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ts")
	require.NoError(t, os.WriteFile(in, []byte("payload"), 0o644))

	r := NewRemuxer(filepath.Join(dir, "no-ffmpeg"), nil)
	err := r.Remux(context.Background(), in, filepath.Join(dir, "out.mp4"))
	assert.ErrorIs(t, err, ErrRemuxFailed)
	assert.FileExists(t, in)
}

func setupHistory(t *testing.T) repository.RecordingRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Recording{}))
	return repository.NewRecordingRepository(db)
}

func TestFinisher_Completed(t *testing.T) {
	history := setupHistory(t)
	f := NewFinisher(NewRemuxer(fakeFFmpeg(t, copyingFFmpeg), nil), history, nil)

	s, err := NewSession(SessionOptions{Stream: "radio", Show: "news", StreamDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte("a")))
	require.NoError(t, s.Write([]byte("b")))

	require.NoError(t, f.Process(context.Background(), s))
	assert.True(t, s.Closed())
	assert.NoFileExists(t, s.IntermediatePath)

	data, err := os.ReadFile(s.FinalPath)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))

	rec, err := history.GetBySessionID(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.RecordingStatusCompleted, rec.Status)
	assert.Equal(t, "radio", rec.StreamName)
	assert.Equal(t, "news", rec.ShowName)
	assert.Equal(t, 2, rec.SegmentCount)
	assert.Equal(t, int64(2), rec.Bytes)
	assert.Equal(t, s.FinalPath, rec.OutputPath)
}

func TestFinisher_Empty(t *testing.T) {
	history := setupHistory(t)
	f := NewFinisher(NewRemuxer(fakeFFmpeg(t, `touch "$last"`), nil), history, nil)

	s, err := NewSession(SessionOptions{Stream: "radio", Show: "news", StreamDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, f.Process(context.Background(), s))
	assert.NoFileExists(t, s.IntermediatePath)
	assert.NoFileExists(t, s.FinalPath)

	rec, err := history.GetBySessionID(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.RecordingStatusEmpty, rec.Status)
	assert.Empty(t, rec.OutputPath)
}

func TestFinisher_Failed(t *testing.T) {
	history := setupHistory(t)
	f := NewFinisher(NewRemuxer(fakeFFmpeg(t, `echo broken >&2; exit 2`), nil), history, nil)

	s, err := NewSession(SessionOptions{Stream: "radio", Show: "news", StreamDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte("a")))

	err = f.Process(context.Background(), s)
	assert.ErrorIs(t, err, ErrRemuxFailed)
	assert.FileExists(t, s.IntermediatePath)

	rec, err := history.GetBySessionID(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.RecordingStatusFailed, rec.Status)
	assert.Equal(t, 2, rec.ExitCode)
	assert.Contains(t, rec.Error, "broken")
}

func TestFinisher_NilHistory(t *testing.T) {
	f := NewFinisher(NewRemuxer(fakeFFmpeg(t, copyingFFmpeg), nil), nil, nil)

	s, err := NewSession(SessionOptions{Stream: "radio", Forced: true, StreamDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte("x")))
	assert.NoError(t, f.Process(context.Background(), s))
	assert.FileExists(t, s.FinalPath)
}
