// Package schedule loads weekly show schedules and computes the concrete
// recording window of each show relative to a reference instant.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSchedule is returned for unreadable or inconsistent schedule files.
var ErrInvalidSchedule = errors.New("invalid schedule")

// MaxDurationMinutes keeps a show shorter than the week it repeats in.
const MaxDurationMinutes = 7*24*60 - 1

// Entry is one recurring weekly show slot.
type Entry struct {
	Name            string       `json:"name" yaml:"name"`
	Day             time.Weekday `json:"day" yaml:"day"`
	Hour            int          `json:"hour" yaml:"hour"`
	Minute          int          `json:"minute" yaml:"minute"`
	DurationMinutes int          `json:"duration_minutes" yaml:"duration_minutes"`
}

// Duration returns the nominal length of the show.
func (e Entry) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Validate checks field ranges.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: show name is required", ErrInvalidSchedule)
	}
	if e.Day < time.Sunday || e.Day > time.Saturday {
		return fmt.Errorf("%w: show %q: day %d out of range", ErrInvalidSchedule, e.Name, e.Day)
	}
	if e.Hour < 0 || e.Hour > 23 {
		return fmt.Errorf("%w: show %q: hour %d out of range", ErrInvalidSchedule, e.Name, e.Hour)
	}
	if e.Minute < 0 || e.Minute > 59 {
		return fmt.Errorf("%w: show %q: minute %d out of range", ErrInvalidSchedule, e.Name, e.Minute)
	}
	if e.DurationMinutes <= 0 || e.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("%w: show %q: duration %d minutes out of range", ErrInvalidSchedule, e.Name, e.DurationMinutes)
	}
	return nil
}

// cronSpec renders the slot as a standard five-field cron expression.
func (e Entry) cronSpec() string {
	return fmt.Sprintf("%d %d * * %d", e.Minute, e.Hour, int(e.Day))
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %02d:%02d (%dm)", e.Name, e.Day, e.Hour, e.Minute, e.DurationMinutes)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts full or abbreviated English day names in any case,
// or a number where 0 is Sunday.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("%w: unknown day %q", ErrInvalidSchedule, s)
}
