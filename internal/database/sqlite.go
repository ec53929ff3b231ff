package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/companies"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/ratelimit"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/reports"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// The single-connection pool serializes writers, which the rate-limit core's
// transaction ordering relies on when running against SQLite.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&ratelimit.IPDailyLimit{},
		&ratelimit.IPCompanyLimit{},
		&ratelimit.PairLock{},
		&companies.Company{},
		&reports.Report{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
