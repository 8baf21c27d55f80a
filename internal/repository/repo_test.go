package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/basshelal/hls2vod/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Stream{}, &models.StreamShow{}, &models.Recording{}))
	return db
}

func newStream(name string, shows ...string) *models.Stream {
	s := &models.Stream{
		Name:        name,
		SourceURL:   "https://example.com/" + name + "/master.m3u8",
		PlaylistURL: "https://example.com/" + name + "/720p.m3u8",
		State:       models.StreamStateWaiting,
		Directory:   "/recordings/" + name,
	}
	for i, show := range shows {
		s.Shows = append(s.Shows, models.StreamShow{Name: show, Day: i, Hour: 20, DurationMinutes: 60})
	}
	return s
}

func TestStreamRepo_UpsertCreates(t *testing.T) {
	repo := NewStreamRepository(setupTestDB(t))
	ctx := context.Background()

	stream := newStream("radio", "news", "music")
	require.NoError(t, repo.Upsert(ctx, stream))
	assert.False(t, stream.ID.IsZero())

	found, err := repo.GetByName(ctx, "radio")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, stream.ID, found.ID)
	assert.Equal(t, "https://example.com/radio/720p.m3u8", found.PlaylistURL)
	require.Len(t, found.Shows, 2)
	assert.Equal(t, "news", found.Shows[0].Name)
	assert.Equal(t, stream.ID, found.Shows[0].StreamID)
}

func TestStreamRepo_UpsertReplaces(t *testing.T) {
	repo := NewStreamRepository(setupTestDB(t))
	ctx := context.Background()

	first := newStream("radio", "news", "music")
	require.NoError(t, repo.Upsert(ctx, first))

	second := newStream("radio", "late")
	second.State = models.StreamStatePaused
	second.IsForced = true
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	found, err := repo.GetByName(ctx, "radio")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.StreamStatePaused, found.State)
	assert.True(t, found.IsForced)
	require.Len(t, found.Shows, 1)
	assert.Equal(t, "late", found.Shows[0].Name)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStreamRepo_UpsertValidates(t *testing.T) {
	repo := NewStreamRepository(setupTestDB(t))
	err := repo.Upsert(context.Background(), &models.Stream{Name: "x"})
	assert.ErrorIs(t, err, models.ErrURLRequired)
}

func TestStreamRepo_GetAllOrdered(t *testing.T) {
	repo := NewStreamRepository(setupTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, repo.Upsert(ctx, newStream(name)))
	}

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "bravo", all[1].Name)
	assert.Equal(t, "charlie", all[2].Name)
}

func TestStreamRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, newStream("radio", "news")))
	require.NoError(t, repo.Delete(ctx, "radio"))

	found, err := repo.GetByName(ctx, "radio")
	require.NoError(t, err)
	assert.Nil(t, found)

	var shows int64
	require.NoError(t, db.Model(&models.StreamShow{}).Count(&shows).Error)
	assert.Zero(t, shows)

	assert.NoError(t, repo.Delete(ctx, "radio"), "deleting twice is fine")

	// the name can be reused after delete
	require.NoError(t, repo.Upsert(ctx, newStream("radio")))
}

func TestRecordingRepo(t *testing.T) {
	repo := NewRecordingRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)

	for i, stream := range []string{"radio", "tv", "radio"} {
		rec := &models.Recording{
			StreamName: stream,
			ShowName:   "show",
			SessionID:  models.NewULID().String(),
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			EndedAt:    base.Add(time.Duration(i)*time.Hour + 30*time.Minute),
			Status:     models.RecordingStatusCompleted,
		}
		require.NoError(t, repo.Create(ctx, rec))
	}

	all, err := repo.List(ctx, RecordingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartedAt.After(all[1].StartedAt), "newest first")

	radio, err := repo.List(ctx, RecordingFilter{Stream: "radio", Limit: 1})
	require.NoError(t, err)
	require.Len(t, radio, 1)
	assert.Equal(t, base.Add(2*time.Hour), radio[0].StartedAt.UTC())

	found, err := repo.GetBySessionID(ctx, radio[0].SessionID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, radio[0].ID, found.ID)

	missing, err := repo.GetBySessionID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
