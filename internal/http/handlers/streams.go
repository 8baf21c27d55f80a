// Package handlers provides the huma operations of the control API.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/basshelal/hls2vod/internal/hls"
	"github.com/basshelal/hls2vod/internal/models"
	"github.com/basshelal/hls2vod/internal/observability"
	"github.com/basshelal/hls2vod/internal/schedule"
	"github.com/basshelal/hls2vod/internal/stream"
)

// StreamBuilder creates and forgets persisted streams. *stream.Factory
// implements it.
type StreamBuilder interface {
	Create(ctx context.Context, req stream.CreateRequest) (*stream.Stream, error)
	Delete(ctx context.Context, name string) error
}

// StreamHandler exposes the lifecycle of registered streams.
type StreamHandler struct {
	registry *stream.Registry
	builder  StreamBuilder
	logger   *slog.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(registry *stream.Registry, builder StreamBuilder, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = observability.Discard()
	}
	return &StreamHandler{
		registry: registry,
		builder:  builder,
		logger:   observability.WithComponent(logger, "api"),
	}
}

// Register registers the stream routes with the API.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listStreams",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams",
		Summary:     "List streams",
		Tags:        []string{"Streams"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getStream",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams/{name}",
		Summary:     "Get stream",
		Tags:        []string{"Streams"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID:   "createStream",
		Method:        http.MethodPost,
		Path:          "/api/v1/streams",
		Summary:       "Create stream",
		Description:   "Resolves the source, loads the schedule and starts watching it",
		Tags:          []string{"Streams"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteStream",
		Method:        http.MethodDelete,
		Path:          "/api/v1/streams/{name}",
		Summary:       "Delete stream",
		Description:   "Stops the stream, finishing open recordings, and forgets it. Files on disk are kept.",
		Tags:          []string{"Streams"},
		DefaultStatus: http.StatusNoContent,
	}, h.Delete)

	actions := []struct {
		id, path, summary string
		apply             func(*stream.Stream)
	}{
		{"startStream", "start", "Lift a pause", (*stream.Stream).Start},
		{"pauseStream", "pause", "Pause all recording", (*stream.Stream).Pause},
		{"forceRecordStream", "force", "Start a forced recording", (*stream.Stream).ForceRecord},
		{"unforceRecordStream", "unforce", "Stop the forced recording", (*stream.Stream).UnForceRecord},
	}
	for _, a := range actions {
		apply := a.apply
		huma.Register(api, huma.Operation{
			OperationID: a.id,
			Method:      http.MethodPost,
			Path:        "/api/v1/streams/{name}/" + a.path,
			Summary:     a.summary,
			Tags:        []string{"Streams"},
		}, func(ctx context.Context, input *StreamNameInput) (*StreamOutput, error) {
			return h.apply(input.Name, apply)
		})
	}
}

// StreamNameInput addresses one stream.
type StreamNameInput struct {
	Name string `path:"name" maxLength:"255" doc:"Stream name"`
}

// StreamOutput returns one stream.
type StreamOutput struct {
	Body stream.Snapshot
}

// ListStreamsInput is the input for listing streams.
type ListStreamsInput struct{}

// ListStreamsOutput returns every stream ordered by name.
type ListStreamsOutput struct {
	Body struct {
		Streams []stream.Snapshot `json:"streams"`
	}
}

// CreateStreamInput is the body of a create request.
type CreateStreamInput struct {
	Body struct {
		Name         string `json:"name" minLength:"1" maxLength:"255" doc:"Unique stream name"`
		URL          string `json:"url" minLength:"1" doc:"Source URL, a master or media playlist"`
		SchedulePath string `json:"schedule_path,omitempty" doc:"Path of the CSV show schedule on the server"`
		Bandwidth    string `json:"bandwidth,omitempty" doc:"best, worst or a bits per second ceiling"`
		Forced       bool   `json:"forced,omitempty" doc:"Start a forced recording immediately"`
	}
}

// DeleteStreamOutput is empty.
type DeleteStreamOutput struct{}

// List returns every registered stream.
func (h *StreamHandler) List(ctx context.Context, input *ListStreamsInput) (*ListStreamsOutput, error) {
	resp := &ListStreamsOutput{}
	resp.Body.Streams = make([]stream.Snapshot, 0, h.registry.Len())
	for _, s := range h.registry.List() {
		resp.Body.Streams = append(resp.Body.Streams, s.Snapshot())
	}
	return resp, nil
}

// Get returns one stream.
func (h *StreamHandler) Get(ctx context.Context, input *StreamNameInput) (*StreamOutput, error) {
	s, err := h.registry.Get(input.Name)
	if err != nil {
		return nil, streamError(err)
	}
	return &StreamOutput{Body: s.Snapshot()}, nil
}

// Create builds, registers and starts a stream.
func (h *StreamHandler) Create(ctx context.Context, input *CreateStreamInput) (*StreamOutput, error) {
	if _, err := h.registry.Get(input.Body.Name); err == nil {
		return nil, huma.Error409Conflict(fmt.Sprintf("stream %s already exists", input.Body.Name))
	}

	s, err := h.builder.Create(ctx, stream.CreateRequest{
		Name:         input.Body.Name,
		URL:          input.Body.URL,
		SchedulePath: input.Body.SchedulePath,
		Bandwidth:    input.Body.Bandwidth,
		Forced:       input.Body.Forced,
	})
	if err != nil {
		return nil, streamError(err)
	}

	if err := h.registry.Add(s); err != nil {
		s.Close()
		return nil, streamError(err)
	}

	h.logger.InfoContext(ctx, "stream created through api", slog.String("stream", s.Name()))
	return &StreamOutput{Body: s.Snapshot()}, nil
}

// Delete stops and forgets a stream.
func (h *StreamHandler) Delete(ctx context.Context, input *StreamNameInput) (*DeleteStreamOutput, error) {
	if err := h.registry.Remove(input.Name); err != nil {
		return nil, streamError(err)
	}
	if err := h.builder.Delete(ctx, input.Name); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete stream", err)
	}
	return &DeleteStreamOutput{}, nil
}

func (h *StreamHandler) apply(name string, fn func(*stream.Stream)) (*StreamOutput, error) {
	s, err := h.registry.Get(name)
	if err != nil {
		return nil, streamError(err)
	}
	fn(s)
	return &StreamOutput{Body: s.Snapshot()}, nil
}

// streamError maps domain errors onto HTTP problems.
func streamError(err error) error {
	var fetchErr *hls.FetchError
	var fieldErr *models.FieldError

	switch {
	case errors.Is(err, stream.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, stream.ErrAlreadyExists):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &fieldErr),
		errors.Is(err, models.ErrNameRequired),
		errors.Is(err, models.ErrURLRequired),
		errors.Is(err, hls.ErrInvalidBandwidthPolicy):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, hls.ErrInvalidManifest),
		errors.Is(err, hls.ErrMissingBandwidthPolicy),
		errors.Is(err, schedule.ErrInvalidSchedule),
		errors.Is(err, fs.ErrNotExist):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &fetchErr):
		return huma.Error502BadGateway(err.Error())
	default:
		return huma.Error500InternalServerError("stream operation failed", err)
	}
}
