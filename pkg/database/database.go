package database

import (
	"fmt"

	"github.com/sanukhandev/lms-be-core/pkg/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the database named by dbConfig.Driver, applies pool settings and
// installs the given plugins.
func InitDB(dbConfig *config.DBConfig, log *zap.Logger, plugins ...gorm.Plugin) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbConfig.Driver {
	case "postgres", "":
		dialector = postgres.New(postgres.Config{
			DSN:                  dbConfig.GetDSN(),
			PreferSimpleProtocol: true, // Disables implicit prepared statement usage
		})
	case "sqlite":
		dialector = sqlite.Open(dbConfig.Path + "?_foreign_keys=on")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConfig.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(dbConfig.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Error("Failed to get database object", zap.Error(err))
		return nil, err
	}

	if dbConfig.Driver == "sqlite" {
		// sqlite serialises writers; one connection avoids "database is locked"
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
		sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)
	}

	for _, p := range plugins {
		if err := db.Use(p); err != nil {
			return nil, fmt.Errorf("failed to install plugin %s: %w", p.Name(), err)
		}
	}

	log.Info("Database connected successfully", zap.String("driver", db.Dialector.Name()))
	return db, nil
}

// MigrateModels auto-migrates the schema of models, in order
func MigrateModels(db *gorm.DB, models ...interface{}) error {
	if db == nil {
		return fmt.Errorf("database is not initialized")
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

// Ping checks connectivity for health probes
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
