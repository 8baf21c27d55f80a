package migrations

import (
	"github.com/basshelal/hls2vod/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002RecordingHistoryIndex(),
	}
}

// migration001Schema creates the stream snapshot and recording history tables.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create streams, stream_shows and recordings tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Stream{},
				&models.StreamShow{},
				&models.Recording{},
			)
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&models.Recording{},
				&models.StreamShow{},
				&models.Stream{},
			)
		},
	}
}

// migration002RecordingHistoryIndex makes sure the history listing index
// exists on databases created before it was declared on the model.
func migration002RecordingHistoryIndex() Migration {
	const index = "idx_recordings_stream_started"
	return Migration{
		Version:     "002",
		Description: "Index recordings by stream and start time",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Recording{}, index) {
				return nil
			}
			return tx.Migrator().CreateIndex(&models.Recording{}, index)
		},
		Down: func(tx *gorm.DB) error {
			if !tx.Migrator().HasIndex(&models.Recording{}, index) {
				return nil
			}
			return tx.Migrator().DropIndex(&models.Recording{}, index)
		},
	}
}
