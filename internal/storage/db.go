package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/39george/multisig-ecdsa/internal/config"
	"github.com/39george/multisig-ecdsa/internal/logger"
	"github.com/39george/multisig-ecdsa/internal/storage/models"
)

var DB *gorm.DB

// InitDB initializes the database connection.
func InitDB(cfg config.DBConfig) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode, cfg.TimeZone)
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}

	logger.Log.Info("Database connection successfully established.")

	// Auto-migrate the schema
	err = DB.AutoMigrate(&models.CeremonyRecord{}, &models.RecordShare{})
	if err != nil {
		logger.Log.Fatalf("Failed to auto-migrate database: %v", err)
	}
	logger.Log.Info("Database schema migrated.")
}
