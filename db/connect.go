package db

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

// Connect opens the optional Postgres event store and migrates its schema.
func Connect(dsn string) (Database, error) {
	log := logging.For("db")
	if dsn == "" {
		return nil, fmt.Errorf("missing event database URL")
	}

	// Local kiosks usually talk to a database on the same host
	if !strings.Contains(dsn, "sslmode=") {
		sslMode := "require"
		if strings.Contains(dsn, "localhost") || strings.Contains(dsn, "127.0.0.1") {
			sslMode = "disable"
		}
		if strings.Contains(dsn, "?") {
			dsn += "&sslmode=" + sslMode
		} else if strings.Contains(dsn, "://") {
			dsn += "?sslmode=" + sslMode
		} else {
			dsn += " sslmode=" + sslMode
		}
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Infow("Database connection established, running migrations")
	if err := migrateOrClose(sqlDB, func() error { return db.AutoMigrate(&entities.EventRecord{}) }); err != nil {
		return nil, err
	}

	return &GormDatabase{DB: db}, nil
}

// migrateOrClose runs migrate and closes the pool when it fails.
func migrateOrClose(pool io.Closer, migrate func() error) error {
	if err := migrate(); err != nil {
		if cerr := pool.Close(); cerr != nil {
			logging.For("db").Warnw("Failed to close database after migration error", "error", cerr)
		}
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
