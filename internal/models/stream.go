package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StreamState is the recording state of a stream.
type StreamState string

const (
	// StreamStateDownloading means at least one session is open and receiving segments.
	StreamStateDownloading StreamState = "downloading"
	// StreamStateWaiting means no show is active and nothing is forced.
	StreamStateWaiting StreamState = "waiting"
	// StreamStatePaused is an explicit user override that suppresses all recording.
	StreamStatePaused StreamState = "paused"
)

// Valid reports whether s is a known state.
func (s StreamState) Valid() bool {
	switch s {
	case StreamStateDownloading, StreamStateWaiting, StreamStatePaused:
		return true
	}
	return false
}

// Stream is the persisted snapshot of a recorded stream.
type Stream struct {
	BaseModel

	// Name identifies the stream in the API and on disk.
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// SourceURL is the URL the user supplied, possibly a master manifest.
	SourceURL string `gorm:"not null;size:2048" json:"url"`

	// PlaylistURL is the media playlist the source resolved to.
	PlaylistURL string `gorm:"size:2048" json:"playlist_url"`

	SchedulePath    string      `gorm:"size:1024" json:"schedule_path"`
	BandwidthPolicy string      `gorm:"size:32" json:"bandwidth"`
	State           StreamState `gorm:"not null;default:'waiting';size:20" json:"state"`
	IsForced        bool        `gorm:"not null;default:false" json:"is_forced"`
	Directory       string      `gorm:"size:1024" json:"stream_directory"`

	Shows []StreamShow `gorm:"foreignKey:StreamID;constraint:OnDelete:CASCADE" json:"scheduled_shows"`
}

// TableName returns the table name for Stream.
func (Stream) TableName() string {
	return "streams"
}

// Validate checks required fields.
func (s *Stream) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &FieldError{Field: "name", Err: ErrNameRequired}
	}
	if s.SourceURL == "" {
		return &FieldError{Field: "source_url", Err: ErrURLRequired}
	}
	if u, err := url.Parse(s.SourceURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &FieldError{Field: "source_url", Err: ErrInvalidURL}
	}
	if s.State != "" && !s.State.Valid() {
		return &FieldError{Field: "state", Err: fmt.Errorf("%w: %s", ErrInvalidState, s.State)}
	}
	return nil
}

// StreamShow is one scheduled show of a stream with its current window.
type StreamShow struct {
	BaseModel

	StreamID        ULID      `gorm:"type:varchar(26);not null;index" json:"-"`
	Name            string    `gorm:"not null;size:255" json:"name"`
	Day             int       `gorm:"not null" json:"day"`
	Hour            int       `gorm:"not null" json:"hour"`
	Minute          int       `gorm:"not null" json:"minute"`
	DurationMinutes int       `gorm:"not null" json:"duration_minutes"`
	OffsetSeconds   int       `gorm:"not null;default:0" json:"offset_seconds"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

// TableName returns the table name for StreamShow.
func (StreamShow) TableName() string {
	return "stream_shows"
}
