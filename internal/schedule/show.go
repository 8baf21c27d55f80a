package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Window returns the occurrence of e that is current or next at ref: the
// first weekly start whose offset-widened end lies after ref. Times are in loc.
func Window(e Entry, ref time.Time, offset time.Duration, loc *time.Location) (start, end time.Time, err error) {
	sched, err := parser.Parse(e.cronSpec())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: show %q: %w", ErrInvalidSchedule, e.Name, err)
	}
	if loc == nil {
		loc = time.Local
	}
	// Next is strictly after its argument, so an occurrence whose widened
	// end equals ref is already over.
	start = sched.Next(ref.In(loc).Add(-e.Duration() - offset))
	return start, start.Add(e.Duration()), nil
}

// Show tracks the concrete window of one schedule entry. The window only
// moves when Recompute is called.
type Show struct {
	entry Entry
	loc   *time.Location

	mu     sync.RWMutex
	offset time.Duration
	start  time.Time
	end    time.Time
}

// NewShow creates a Show with its window computed relative to now.
func NewShow(entry Entry, offset time.Duration, loc *time.Location, now time.Time) (*Show, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: show %q: negative offset", ErrInvalidSchedule, entry.Name)
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Show{entry: entry, loc: loc, offset: offset}
	if err := s.Recompute(now); err != nil {
		return nil, err
	}
	return s, nil
}

// NewShows builds one Show per entry.
func NewShows(entries []Entry, offset time.Duration, loc *time.Location, now time.Time) ([]*Show, error) {
	shows := make([]*Show, 0, len(entries))
	for _, e := range entries {
		s, err := NewShow(e, offset, loc, now)
		if err != nil {
			return nil, err
		}
		shows = append(shows, s)
	}
	return shows, nil
}

// Recompute projects the window onto the occurrence current or next at now.
// Once the previous occurrence has fully passed this advances a week.
func (s *Show) Recompute(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, end, err := Window(s.entry, now, s.offset, s.loc)
	if err != nil {
		return err
	}
	s.start, s.end = start, end
	return nil
}

// SetOffset changes the pre-roll and post-roll tolerance. The nominal
// start and end are not touched.
func (s *Show) SetOffset(offset time.Duration) {
	if offset < 0 {
		offset = 0
	}
	s.mu.Lock()
	s.offset = offset
	s.mu.Unlock()
}

// Name returns the show name, unique within a stream.
func (s *Show) Name() string { return s.entry.Name }

func (s *Show) Entry() Entry { return s.entry }

func (s *Show) Location() *time.Location { return s.loc }

func (s *Show) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

func (s *Show) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.start
}

func (s *Show) EndTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.end
}

func (s *Show) OffsetStartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.start.Add(-s.offset)
}

func (s *Show) OffsetEndTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.end.Add(s.offset)
}

// bounds returns the window, widened by the offset when withOffset is set.
func (s *Show) bounds(withOffset bool) (time.Time, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if withOffset {
		return s.start.Add(-s.offset), s.end.Add(s.offset)
	}
	return s.start, s.end
}

// HasStarted reports whether now is at or after the window start.
func (s *Show) HasStarted(now time.Time, withOffset bool) bool {
	start, _ := s.bounds(withOffset)
	return !now.Before(start)
}

// HasEnded reports whether now is at or after the window end.
func (s *Show) HasEnded(now time.Time, withOffset bool) bool {
	_, end := s.bounds(withOffset)
	return !now.Before(end)
}

// IsActive reports whether now falls in [start, end).
func (s *Show) IsActive(now time.Time, withOffset bool) bool {
	return s.HasStarted(now, withOffset) && !s.HasEnded(now, withOffset)
}

// ShowSnapshot is the serialisable view of a Show.
type ShowSnapshot struct {
	Entry         `yaml:",inline"`
	OffsetSeconds int       `json:"offset_seconds" yaml:"offset_seconds"`
	StartTime     time.Time `json:"start_time" yaml:"start_time"`
	EndTime       time.Time `json:"end_time" yaml:"end_time"`
}

// Snapshot returns the current window of s.
func (s *Show) Snapshot() ShowSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ShowSnapshot{
		Entry:         s.entry,
		OffsetSeconds: int(s.offset / time.Second),
		StartTime:     s.start,
		EndTime:       s.end,
	}
}

func (s *Show) String() string {
	start, end := s.bounds(false)
	return fmt.Sprintf("%s [%s, %s)", s.entry.Name, start.Format(time.RFC3339), end.Format(time.RFC3339))
}
