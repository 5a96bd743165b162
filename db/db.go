package db

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// RefreshEvent is one journaled refresh attempt. The journal is append-only
// history for operators; the auth state files remain the source of truth for
// session freshness.
type RefreshEvent struct {
	ID             uint      `gorm:"primaryKey"`
	Service        string    `gorm:"index:idx_target"`
	Account        string    `gorm:"index:idx_target"`
	Success        bool      `gorm:"column:success"`
	Message        string    `gorm:"column:message"`
	Classification string    `gorm:"column:classification"`
	AttemptedAt    time.Time `gorm:"column:attempted_at;index"`
}

// Open opens (creating if necessary) the refresh-history database at path
// and migrates its schema.
func Open(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.Error().Err(err).Msg("Failed to create history database directory")
		return nil, err
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open history database")
		return nil, err
	}

	if err := gdb.AutoMigrate(&RefreshEvent{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate history database")
		return nil, err
	}

	if zerolog.GlobalLevel() == zerolog.Disabled {
		gdb.Logger = gdb.Logger.LogMode(0) // Silent mode
	} else {
		gdb.Logger = gdb.Logger.LogMode(4) // Debug mode
	}
	return gdb, nil
}

// Close closes the underlying connection of a history database.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}
