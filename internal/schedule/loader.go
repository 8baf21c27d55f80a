package schedule

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// column aliases accepted in the header row, compared case-insensitively.
var columns = map[string][]string{
	"name":     {"name", "show"},
	"day":      {"day", "weekday"},
	"hour":     {"hour"},
	"minute":   {"minute", "min"},
	"duration": {"durationminutes", "duration_minutes", "duration"},
}

// Load reads a schedule file from disk.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schedule: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("loading schedule %s: %w", path, err)
	}
	return entries, nil
}

// Parse reads CSV schedule rows. The first row is a header naming at least
// the name, day, hour, minute and durationMinutes columns in any order.
// Lines starting with # are ignored. Show names must be unique.
func Parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidSchedule)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	index, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	seen := make(map[string]int)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
		line, _ := cr.FieldPos(0)

		entry, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if prev, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("%w: line %d: show %q already defined on line %d", ErrInvalidSchedule, line, entry.Name, prev)
		}
		seen[entry.Name] = line
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no shows defined", ErrInvalidSchedule)
	}
	return entries, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(columns))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for key, aliases := range columns {
			for _, alias := range aliases {
				if h == alias {
					index[key] = i
				}
			}
		}
	}
	for _, key := range []string{"name", "day", "hour", "minute", "duration"} {
		if _, ok := index[key]; !ok {
			return nil, fmt.Errorf("%w: header is missing the %q column", ErrInvalidSchedule, key)
		}
	}
	return index, nil
}

func parseRecord(record []string, index map[string]int) (Entry, error) {
	field := func(key string) string {
		i := index[key]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	day, err := ParseWeekday(field("day"))
	if err != nil {
		return Entry{}, err
	}

	ints := make(map[string]int, 3)
	for _, key := range []string{"hour", "minute", "duration"} {
		n, err := strconv.Atoi(field(key))
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %s %q is not a number", ErrInvalidSchedule, key, field(key))
		}
		ints[key] = n
	}

	entry := Entry{
		Name:            field("name"),
		Day:             day,
		Hour:            ints["hour"],
		Minute:          ints["minute"],
		DurationMinutes: ints["duration"],
	}
	return entry, entry.Validate()
}
