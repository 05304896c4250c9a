package config

import (
	"fmt"

	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB opens the postgres connection and migrates the schema
func InitDB(cfg *Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if !cfg.IsProduction() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	utils.LogInfo("Connected to database %s on %s:%s", cfg.DBName, cfg.DBHost, cfg.DBPort)
	DB = db
	return db, nil
}
