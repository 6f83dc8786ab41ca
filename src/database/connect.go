package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"algoengine/src/model"
)

// Connect opens the tick cache database and migrates its schema. The
// default is a local sqlite file; postgres is selected via
// DATABASE_DRIVER for shared caches.
func Connect(config Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	}

	var (
		db  *gorm.DB
		err error
	)

	switch config.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(config.URL), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(config.URL), gormConfig)
	default:
		return nil, fmt.Errorf("database: unknown driver %q", config.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: get sql db: %w", err)
	}

	if config.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
	} else {
		// sqlite serializes writers; a single connection avoids lock
		// contention errors.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&model.Kline{}); err != nil {
		return nil, fmt.Errorf("database: migrate: %w", err)
	}

	logrus.WithField("driver", config.Driver).Info("Tick cache database initialized")

	return db, nil
}
