package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/basshelal/hls2vod/internal/models"
)

// streamRepo implements StreamRepository using GORM.
type streamRepo struct {
	db *gorm.DB
}

// NewStreamRepository creates a new StreamRepository.
func NewStreamRepository(db *gorm.DB) *streamRepo {
	return &streamRepo{db: db}
}

// Upsert creates or replaces the snapshot stored under stream.Name.
func (r *streamRepo) Upsert(ctx context.Context, stream *models.Stream) error {
	if err := stream.Validate(); err != nil {
		return fmt.Errorf("validating stream: %w", err)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Stream
		err := tx.Where("name = ?", stream.Name).First(&existing).Error
		switch {
		case err == nil:
			stream.ID = existing.ID
			stream.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			stream.ID = models.ULID{}
		default:
			return err
		}

		if err := tx.Omit("Shows").Save(stream).Error; err != nil {
			return err
		}
		if err := tx.Where("stream_id = ?", stream.ID).Delete(&models.StreamShow{}).Error; err != nil {
			return err
		}
		if len(stream.Shows) == 0 {
			return nil
		}
		for i := range stream.Shows {
			stream.Shows[i].ID = models.ULID{}
			stream.Shows[i].StreamID = stream.ID
		}
		return tx.Create(&stream.Shows).Error
	})
	if err != nil {
		return fmt.Errorf("upserting stream %q: %w", stream.Name, err)
	}
	return nil
}

// GetByName retrieves a stream by name.
func (r *streamRepo) GetByName(ctx context.Context, name string) (*models.Stream, error) {
	var stream models.Stream
	err := r.db.WithContext(ctx).
		Preload("Shows", func(db *gorm.DB) *gorm.DB { return db.Order("day, hour, minute") }).
		Where("name = ?", name).
		First(&stream).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream by name: %w", err)
	}
	return &stream, nil
}

// GetAll retrieves all streams.
func (r *streamRepo) GetAll(ctx context.Context) ([]*models.Stream, error) {
	var streams []*models.Stream
	err := r.db.WithContext(ctx).
		Preload("Shows", func(db *gorm.DB) *gorm.DB { return db.Order("day, hour, minute") }).
		Order("name ASC").
		Find(&streams).Error
	if err != nil {
		return nil, fmt.Errorf("getting all streams: %w", err)
	}
	return streams, nil
}

// Delete removes a stream and its shows.
func (r *streamRepo) Delete(ctx context.Context, name string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stream models.Stream
		if err := tx.Where("name = ?", name).First(&stream).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Where("stream_id = ?", stream.ID).Delete(&models.StreamShow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&stream).Error
	})
	if err != nil {
		return fmt.Errorf("deleting stream %q: %w", name, err)
	}
	return nil
}
