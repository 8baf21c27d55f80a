package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/basshelal/hls2vod/internal/models"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *recordingRepo {
	return &recordingRepo{db: db}
}

// Create stores a finished recording.
func (r *recordingRepo) Create(ctx context.Context, recording *models.Recording) error {
	if err := r.db.WithContext(ctx).Create(recording).Error; err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	return nil
}

// List returns recordings newest first.
func (r *recordingRepo) List(ctx context.Context, filter RecordingFilter) ([]*models.Recording, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultRecordingLimit
	}

	query := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if filter.Stream != "" {
		query = query.Where("stream_name = ?", filter.Stream)
	}

	var recordings []*models.Recording
	if err := query.Find(&recordings).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	return recordings, nil
}

// GetBySessionID retrieves a recording by its session ID.
func (r *recordingRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Recording, error) {
	var recording models.Recording
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&recording).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording by session ID: %w", err)
	}
	return &recording, nil
}
