package db

import (
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"agrilend-settlement/internal/domain/liquidation"
	"agrilend-settlement/internal/domain/loan"
	"agrilend-settlement/internal/domain/reconcile"
)

func OpenGorm(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
	db, err := gorm.Open(mysql.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(30)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	slog.Info("gorm: connected")
	return db, nil
}

// Migrate creates/updates the settlement tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&loan.Loan{},
		&loan.Payment{},
		&liquidation.Record{},
		&reconcile.Task{},
	)
}
