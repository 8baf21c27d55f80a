package models

import "time"

// RecordingStatus is the outcome of a finished recording session.
type RecordingStatus string

const (
	// RecordingStatusCompleted means the remux succeeded and the final file exists.
	RecordingStatusCompleted RecordingStatus = "completed"
	// RecordingStatusFailed means the remux failed; the intermediate file was kept.
	RecordingStatusFailed RecordingStatus = "failed"
	// RecordingStatusEmpty means the session received no segments.
	RecordingStatusEmpty RecordingStatus = "empty"
)

// Recording is the history row written when a session is finished.
type Recording struct {
	BaseModel

	StreamName string `gorm:"not null;size:255;index:idx_recordings_stream_started,priority:1" json:"stream"`
	ShowName   string `gorm:"not null;size:255" json:"show"`
	SessionID  string `gorm:"uniqueIndex;not null;size:36" json:"session_id"`
	Forced     bool   `gorm:"not null;default:false" json:"forced"`

	StartedAt time.Time `gorm:"index:idx_recordings_stream_started,priority:2" json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	SegmentCount int   `json:"segment_count"`
	Bytes        int64 `json:"bytes"`

	IntermediatePath string `gorm:"size:2048" json:"intermediate_path,omitempty"`
	OutputPath       string `gorm:"size:2048" json:"output_path,omitempty"`

	Status     RecordingStatus `gorm:"not null;size:20;index" json:"status"`
	ExitCode   int             `json:"exit_code,omitempty"`
	Error      string          `gorm:"size:4096" json:"error,omitempty"`
	DurationMs int64           `json:"remux_duration_ms,omitempty"`
}

// TableName returns the table name for Recording.
func (Recording) TableName() string {
	return "recordings"
}

// Duration returns how long the session was open.
func (r *Recording) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
