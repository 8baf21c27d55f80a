package schedule

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 19 October 2026, 14:30:00 UTC.
var monday = time.Date(2026, time.October, 19, 14, 30, 0, 0, time.UTC)

func entryAt(ref time.Time, duration int) Entry {
	return Entry{Name: "show", Day: ref.Weekday(), Hour: ref.Hour(), Minute: ref.Minute(), DurationMinutes: duration}
}

func TestShow_ActiveWindow(t *testing.T) {
	now := monday
	show, err := NewShow(entryAt(now.Add(-time.Minute), 2), 0, time.UTC, now)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-time.Minute), show.StartTime())
	assert.Equal(t, now.Add(time.Minute), show.EndTime())
	assert.True(t, show.HasStarted(now, false))
	assert.False(t, show.HasEnded(now, false))
	assert.True(t, show.IsActive(now, false))
}

func TestShow_EndedWindow(t *testing.T) {
	now := monday
	show, err := NewShow(entryAt(now.Add(-2*time.Minute), 2), 0, time.UTC, now.Add(-90*time.Second))
	require.NoError(t, err)

	assert.Equal(t, now, show.EndTime())
	assert.True(t, show.IsActive(now.Add(-time.Second), false))
	assert.False(t, show.IsActive(now, false), "upper bound is exclusive")
	assert.True(t, show.HasEnded(now, false))
}

func TestShow_LowerBoundInclusive(t *testing.T) {
	start := monday.Add(time.Hour)
	show, err := NewShow(entryAt(start, 30), 0, time.UTC, monday)
	require.NoError(t, err)

	assert.False(t, show.IsActive(start.Add(-time.Nanosecond), false))
	assert.True(t, show.IsActive(start, false))
}

func TestShow_OffsetWidensWindow(t *testing.T) {
	start := monday.Add(time.Hour)
	show, err := NewShow(entryAt(start, 30), 2*time.Minute, time.UTC, monday)
	require.NoError(t, err)

	assert.Equal(t, start.Add(-2*time.Minute), show.OffsetStartTime())
	assert.Equal(t, start.Add(32*time.Minute), show.OffsetEndTime())

	early := start.Add(-time.Minute)
	assert.True(t, show.IsActive(early, true))
	assert.False(t, show.IsActive(early, false))

	late := start.Add(31 * time.Minute)
	assert.True(t, show.IsActive(late, true))
	assert.False(t, show.IsActive(late, false))
}

func TestShow_SetOffsetKeepsNominalWindow(t *testing.T) {
	start := monday.Add(time.Hour)
	show, err := NewShow(entryAt(start, 30), 0, time.UTC, monday)
	require.NoError(t, err)

	show.SetOffset(5 * time.Minute)
	assert.Equal(t, start, show.StartTime())
	assert.Equal(t, start.Add(30*time.Minute), show.EndTime())
	assert.Equal(t, start.Add(-5*time.Minute), show.OffsetStartTime())
	assert.Equal(t, 5*time.Minute, show.Offset())

	show.SetOffset(-time.Second)
	assert.Zero(t, show.Offset())
}

func TestShow_RecomputeAdvancesAWeek(t *testing.T) {
	start := monday.Add(time.Hour)
	show, err := NewShow(entryAt(start, 30), time.Minute, time.UTC, monday)
	require.NoError(t, err)

	// still inside the post-roll: same occurrence
	require.NoError(t, show.Recompute(start.Add(30*time.Minute+30*time.Second)))
	assert.Equal(t, start, show.StartTime())

	// post-roll over: next week
	after := start.Add(31 * time.Minute)
	assert.True(t, show.HasEnded(after, true))
	require.NoError(t, show.Recompute(after))
	assert.Equal(t, start.AddDate(0, 0, 7), show.StartTime())
	assert.False(t, show.HasStarted(after, true))
}

func TestShow_WindowLaterInWeek(t *testing.T) {
	entry := Entry{Name: "weekend", Day: time.Saturday, Hour: 20, Minute: 0, DurationMinutes: 120}
	show, err := NewShow(entry, 0, time.UTC, monday)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, time.October, 24, 20, 0, 0, 0, time.UTC), show.StartTime())
	assert.Equal(t, time.Date(2026, time.October, 24, 22, 0, 0, 0, time.UTC), show.EndTime())
}

func TestShow_WindowAcrossMidnight(t *testing.T) {
	entry := Entry{Name: "overnight", Day: time.Sunday, Hour: 23, Minute: 0, DurationMinutes: 120}
	// Monday 00:30 is inside Sunday's 23:00-01:00 slot.
	now := time.Date(2026, time.October, 19, 0, 30, 0, 0, time.UTC)
	show, err := NewShow(entry, 0, time.UTC, now)
	require.NoError(t, err)

	assert.True(t, show.IsActive(now, false))
	assert.Equal(t, time.Date(2026, time.October, 18, 23, 0, 0, 0, time.UTC), show.StartTime())
}

func TestShow_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	entry := Entry{Name: "local", Day: time.Monday, Hour: 16, Minute: 0, DurationMinutes: 60}
	show, err := NewShow(entry, 0, loc, monday)
	require.NoError(t, err)

	// 16:00 at UTC+2 is 14:00 UTC, so the show is running at 14:30 UTC.
	assert.True(t, show.IsActive(monday, false))
	assert.Equal(t, 14, show.StartTime().UTC().Hour())
}

func TestNewShow_Rejects(t *testing.T) {
	_, err := NewShow(Entry{Name: "x", Day: time.Monday, DurationMinutes: 0}, 0, time.UTC, monday)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = NewShow(Entry{Name: "x", Day: time.Monday, DurationMinutes: 10}, -time.Second, time.UTC, monday)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestShow_WindowInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		entry := Entry{
			Name:            "p",
			Day:             time.Weekday(rng.IntN(7)),
			Hour:            rng.IntN(24),
			Minute:          rng.IntN(60),
			DurationMinutes: 1 + rng.IntN(600),
		}
		offset := time.Duration(rng.IntN(3600)) * time.Second
		now := monday.Add(time.Duration(rng.Int64N(int64(14 * 24 * time.Hour))))

		show, err := NewShow(entry, offset, time.UTC, now)
		require.NoError(t, err)

		assert.False(t, show.OffsetStartTime().After(show.StartTime()))
		assert.True(t, show.StartTime().Before(show.EndTime()))
		assert.False(t, show.EndTime().After(show.OffsetEndTime()))
		assert.False(t, show.HasEnded(now, true), "a fresh window is never already over")
		assert.Equal(t, entry.Day, show.StartTime().Weekday())
		assert.True(t, show.OffsetEndTime().Sub(now) <= 7*24*time.Hour+entry.Duration()+2*offset)
	}
}

func TestShow_Snapshot(t *testing.T) {
	start := monday.Add(time.Hour)
	show, err := NewShow(entryAt(start, 30), 90*time.Second, time.UTC, monday)
	require.NoError(t, err)

	snap := show.Snapshot()
	assert.Equal(t, "show", snap.Name)
	assert.Equal(t, 90, snap.OffsetSeconds)
	assert.Equal(t, start, snap.StartTime)
	assert.Equal(t, start.Add(30*time.Minute), snap.EndTime)
}
