package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/basshelal/hls2vod/internal/models"
	"github.com/basshelal/hls2vod/internal/schedule"
)

// persistTimeout bounds one snapshot save.
const persistTimeout = 10 * time.Second

// Snapshot is the serialised view of a stream, written to the database and
// to stream.json in the stream directory.
type Snapshot struct {
	Name            string                  `json:"name"`
	URL             string                  `json:"url"`
	PlaylistURL     string                  `json:"playlistUrl"`
	SchedulePath    string                  `json:"schedulePath,omitempty"`
	Bandwidth       string                  `json:"bandwidth,omitempty"`
	State           models.StreamState      `json:"state"`
	ScheduledShows  []schedule.ShowSnapshot `json:"scheduledShows"`
	IsForced        bool                    `json:"isForced"`
	StreamDirectory string                  `json:"streamDirectory"`
	OpenSessions    []string                `json:"openSessions"`
}

// Snapshot returns the current view of the stream.
func (s *Stream) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Stream) snapshotLocked() Snapshot {
	shows := make([]schedule.ShowSnapshot, 0, len(s.shows))
	for _, show := range s.shows {
		shows = append(shows, show.Snapshot())
	}

	open := make([]string, 0, len(s.sessions)+1)
	for _, show := range s.shows {
		if _, ok := s.sessions[show.Name()]; ok {
			open = append(open, show.Name())
		}
	}
	if s.forcedSession != nil {
		open = append(open, s.forcedSession.Show)
	}

	return Snapshot{
		Name:            s.name,
		URL:             s.sourceURL,
		PlaylistURL:     s.playlistURL,
		SchedulePath:    s.schedulePath,
		Bandwidth:       s.bandwidth,
		State:           s.state,
		ScheduledShows:  shows,
		IsForced:        s.forced,
		StreamDirectory: s.directory,
		OpenSessions:    open,
	}
}

// persist saves snap. Failures are logged; the stream keeps running.
func (s *Stream) persist(snap Snapshot) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.Save(ctx, snap); err != nil {
		s.logger.Warn("saving stream snapshot", slog.String("error", err.Error()))
	}
}

// Model converts the snapshot into its database row.
func (snap Snapshot) Model() *models.Stream {
	m := &models.Stream{
		Name:            snap.Name,
		SourceURL:       snap.URL,
		PlaylistURL:     snap.PlaylistURL,
		SchedulePath:    snap.SchedulePath,
		BandwidthPolicy: snap.Bandwidth,
		State:           snap.State,
		IsForced:        snap.IsForced,
		Directory:       snap.StreamDirectory,
	}
	for _, show := range snap.ScheduledShows {
		m.Shows = append(m.Shows, models.StreamShow{
			Name:            show.Name,
			Day:             int(show.Day),
			Hour:            show.Hour,
			Minute:          show.Minute,
			DurationMinutes: show.DurationMinutes,
			OffsetSeconds:   show.OffsetSeconds,
			StartTime:       show.StartTime,
			EndTime:         show.EndTime,
		})
	}
	return m
}

// entriesFromModel rebuilds schedule entries from persisted shows.
func entriesFromModel(m *models.Stream) []schedule.Entry {
	entries := make([]schedule.Entry, 0, len(m.Shows))
	for _, show := range m.Shows {
		entries = append(entries, schedule.Entry{
			Name:            show.Name,
			Day:             time.Weekday(show.Day),
			Hour:            show.Hour,
			Minute:          show.Minute,
			DurationMinutes: show.DurationMinutes,
		})
	}
	return entries
}
