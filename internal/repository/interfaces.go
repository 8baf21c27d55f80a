// Package repository defines data access interfaces for persisted streams
// and recording history, with GORM implementations.
package repository

import (
	"context"

	"github.com/basshelal/hls2vod/internal/models"
)

// StreamRepository persists stream snapshots keyed by name.
type StreamRepository interface {
	// Upsert creates the stream or replaces the stored snapshot with the same
	// name, including its shows.
	Upsert(ctx context.Context, stream *models.Stream) error
	// GetByName retrieves a stream with its shows. Returns nil, nil when absent.
	GetByName(ctx context.Context, name string) (*models.Stream, error)
	// GetAll retrieves all streams with their shows, ordered by name.
	GetAll(ctx context.Context) ([]*models.Stream, error)
	// Delete removes a stream and its shows. Deleting a missing stream is not an error.
	Delete(ctx context.Context, name string) error
}

// RecordingFilter narrows a recording history listing.
type RecordingFilter struct {
	// Stream limits results to one stream when non-empty.
	Stream string
	// Limit caps the number of rows; 0 means DefaultRecordingLimit.
	Limit int
}

// DefaultRecordingLimit is used when RecordingFilter.Limit is zero.
const DefaultRecordingLimit = 100

// RecordingRepository persists recording history.
type RecordingRepository interface {
	// Create stores a finished recording.
	Create(ctx context.Context, recording *models.Recording) error
	// List returns recordings newest first.
	List(ctx context.Context, filter RecordingFilter) ([]*models.Recording, error)
	// GetBySessionID returns nil, nil when absent.
	GetBySessionID(ctx context.Context, sessionID string) (*models.Recording, error)
}
