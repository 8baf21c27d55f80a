package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/basshelal/hls2vod/internal/ffmpeg"
	"github.com/basshelal/hls2vod/internal/storage"
)

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	statusOK       = "ok"
	statusError    = "error"
	statusNotSet   = "not_configured"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BinaryDetector locates the ffmpeg binary.
type BinaryDetector interface {
	Detect(ctx context.Context) (*ffmpeg.BinaryInfo, error)
}

// StreamCounter reports how many streams are running.
type StreamCounter interface {
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	streams   StreamCounter
	db        Pinger
	ffmpeg    BinaryDetector
	outputDir string
	circuit   func() string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, streams StreamCounter) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		streams:   streams,
	}
}

// WithDB sets the database checked by the health endpoint.
func (h *HealthHandler) WithDB(db Pinger) *HealthHandler {
	h.db = db
	return h
}

// WithFFmpeg sets the ffmpeg detector.
func (h *HealthHandler) WithFFmpeg(d BinaryDetector) *HealthHandler {
	h.ffmpeg = d
	return h
}

// WithOutputDir reports disk usage for dir.
func (h *HealthHandler) WithOutputDir(dir string) *HealthHandler {
	h.outputDir = dir
	return h
}

// WithCircuit reports the upstream circuit breaker state.
func (h *HealthHandler) WithCircuit(state func() string) *HealthHandler {
	h.circuit = state
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// ComponentHealth is the state of one dependency.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// FFmpegHealth describes the detected ffmpeg binary.
type FFmpegHealth struct {
	ComponentHealth
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
}

// DiskHealth describes the filesystem holding recordings.
type DiskHealth struct {
	ComponentHealth
	Usage *storage.DiskUsage `json:"usage,omitempty"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string          `json:"status"`
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	Uptime        string          `json:"uptime"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Streams       int             `json:"streams"`
	Database      ComponentHealth `json:"database"`
	FFmpeg        FFmpegHealth    `json:"ffmpeg"`
	Disk          DiskHealth      `json:"disk"`
	Upstream      string          `json:"upstream_circuit,omitempty"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the service version, running streams and the state of its dependencies",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service. A failing dependency
// degrades the status but never fails the request.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        StatusHealthy,
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Database:      h.databaseHealth(ctx),
		FFmpeg:        h.ffmpegHealth(ctx),
		Disk:          h.diskHealth(ctx),
	}
	if h.streams != nil {
		resp.Streams = h.streams.Len()
	}
	if h.circuit != nil {
		resp.Upstream = h.circuit()
	}

	for _, status := range []string{resp.Database.Status, resp.FFmpeg.Status, resp.Disk.Status} {
		if status == statusError {
			resp.Status = StatusDegraded
		}
	}

	return &HealthOutput{Body: resp}, nil
}

func (h *HealthHandler) databaseHealth(ctx context.Context) ComponentHealth {
	if h.db == nil {
		return ComponentHealth{Status: statusNotSet}
	}
	if err := h.db.Ping(ctx); err != nil {
		return ComponentHealth{Status: statusError, Error: err.Error()}
	}
	return ComponentHealth{Status: statusOK}
}

func (h *HealthHandler) ffmpegHealth(ctx context.Context) FFmpegHealth {
	if h.ffmpeg == nil {
		return FFmpegHealth{ComponentHealth: ComponentHealth{Status: statusNotSet}}
	}
	info, err := h.ffmpeg.Detect(ctx)
	if err != nil {
		return FFmpegHealth{ComponentHealth: ComponentHealth{Status: statusError, Error: err.Error()}}
	}
	return FFmpegHealth{
		ComponentHealth: ComponentHealth{Status: statusOK},
		Path:            info.Path,
		Version:         info.Version,
	}
}

func (h *HealthHandler) diskHealth(ctx context.Context) DiskHealth {
	if h.outputDir == "" {
		return DiskHealth{ComponentHealth: ComponentHealth{Status: statusNotSet}}
	}
	usage, err := storage.Usage(ctx, h.outputDir)
	if err != nil {
		return DiskHealth{ComponentHealth: ComponentHealth{Status: statusError, Error: err.Error()}}
	}
	return DiskHealth{ComponentHealth: ComponentHealth{Status: statusOK}, Usage: usage}
}
