package db

import (
	"github.com/glebarez/sqlite"
	"github.com/questlog/questlog/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate all models
	if err := db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.LinkedAccount{},
		&models.GameLibrary{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
