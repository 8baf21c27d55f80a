package migrations

import (
	"context"
	"testing"

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
	return db
}

func newMigrator(t *testing.T) (*Migrator, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewMigrator(db, nil, AllMigrations()...), db
}

func TestAllMigrations_VersionsAreUniqueAndOrdered(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for _, m := range AllMigrations() {
		assert.False(t, seen[m.Version], "duplicate version %s", m.Version)
		seen[m.Version] = true
		assert.Greater(t, m.Version, prev)
		prev = m.Version
		assert.NotNil(t, m.Up)
		assert.NotNil(t, m.Down)
	}
}

func TestMigrator_Up(t *testing.T) {
	m, db := newMigrator(t)
	ctx := context.Background()

	require.NoError(t, m.Up(ctx))

	assert.True(t, db.Migrator().HasTable(&models.Stream{}))
	assert.True(t, db.Migrator().HasTable(&models.StreamShow{}))
	assert.True(t, db.Migrator().HasTable(&models.Recording{}))
	assert.True(t, db.Migrator().HasIndex(&models.Recording{}, "idx_recordings_stream_started"))

	// second run is a no-op
	require.NoError(t, m.Up(ctx))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Version)
	}
}

func TestMigrator_Status(t *testing.T) {
	m, _ := newMigrator(t)
	ctx := context.Background()

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(AllMigrations()))
	for _, s := range statuses {
		assert.False(t, s.Applied)
	}

	require.NoError(t, m.Up(ctx))
	statuses, err = m.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Applied)
		assert.NotNil(t, s.AppliedAt)
	}
}

func TestMigrator_Down(t *testing.T) {
	m, db := newMigrator(t)
	ctx := context.Background()
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasIndex(&models.Recording{}, "idx_recordings_stream_started"))
	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)
	assert.Equal(t, "002", statuses[1].Version)

	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasTable(&models.Stream{}))

	// nothing left to roll back
	require.NoError(t, m.Down(ctx))
}

func TestNewMigrator_SortsByVersion(t *testing.T) {
	noop := func(*gorm.DB) error { return nil }
	m := NewMigrator(setupTestDB(t), nil,
		Migration{Version: "003", Up: noop},
		Migration{Version: "001", Up: noop},
		Migration{Version: "002", Up: noop},
	)

	statuses, err := m.Status(context.Background())
	require.NoError(t, err)
	versions := make([]string, 0, len(statuses))
	for _, s := range statuses {
		versions = append(versions, s.Version)
	}
	assert.Equal(t, []string{"001", "002", "003"}, versions)
}
