package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/basshelal/hls2vod/internal/models"
	"github.com/basshelal/hls2vod/internal/repository"
)

// RecordingHandler serves the recording history.
type RecordingHandler struct {
	repo repository.RecordingRepository
}

// NewRecordingHandler creates a RecordingHandler.
func NewRecordingHandler(repo repository.RecordingRepository) *RecordingHandler {
	return &RecordingHandler{repo: repo}
}

// Register registers the recording routes with the API.
func (h *RecordingHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      http.MethodGet,
		Path:        "/api/v1/recordings",
		Summary:     "List recordings",
		Description: "Returns finished recording sessions, newest first",
		Tags:        []string{"Recordings"},
	}, h.List)
}

// ListRecordingsInput filters the history.
type ListRecordingsInput struct {
	Stream string `query:"stream" doc:"Only recordings of this stream"`
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" doc:"Maximum rows, 100 when omitted"`
}

// RecordingResponse is one history row.
type RecordingResponse struct {
	ID           string                 `json:"id"`
	Stream       string                 `json:"stream"`
	Show         string                 `json:"show"`
	SessionID    string                 `json:"session_id"`
	Forced       bool                   `json:"forced"`
	Status       models.RecordingStatus `json:"status"`
	StartedAt    time.Time              `json:"started_at"`
	EndedAt      time.Time              `json:"ended_at"`
	Seconds      float64                `json:"duration_seconds"`
	SegmentCount int                    `json:"segment_count"`
	Bytes        int64                  `json:"bytes"`
	OutputPath   string                 `json:"output_path,omitempty"`
	Intermediate string                 `json:"intermediate_path,omitempty"`
	ExitCode     int                    `json:"exit_code,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// RecordingFromModel converts a history row for the API.
func RecordingFromModel(r *models.Recording) RecordingResponse {
	resp := RecordingResponse{
		ID:           r.ID.String(),
		Stream:       r.StreamName,
		Show:         r.ShowName,
		SessionID:    r.SessionID,
		Forced:       r.Forced,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		Seconds:      r.Duration().Seconds(),
		SegmentCount: r.SegmentCount,
		Bytes:        r.Bytes,
		OutputPath:   r.OutputPath,
		ExitCode:     r.ExitCode,
		Error:        r.Error,
	}
	// the intermediate only survives a failed remux
	if r.Status == models.RecordingStatusFailed {
		resp.Intermediate = r.IntermediatePath
	}
	return resp
}

// ListRecordingsOutput returns history rows.
type ListRecordingsOutput struct {
	Body struct {
		Recordings []RecordingResponse `json:"recordings"`
	}
}

// List returns the recording history.
func (h *RecordingHandler) List(ctx context.Context, input *ListRecordingsInput) (*ListRecordingsOutput, error) {
	rows, err := h.repo.List(ctx, repository.RecordingFilter{Stream: input.Stream, Limit: input.Limit})
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list recordings", err)
	}

	resp := &ListRecordingsOutput{}
	resp.Body.Recordings = make([]RecordingResponse, 0, len(rows))
	for _, r := range rows {
		resp.Body.Recordings = append(resp.Body.Recordings, RecordingFromModel(r))
	}
	return resp, nil
}
