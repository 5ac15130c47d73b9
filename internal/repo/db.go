// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), schema migrations, and driver error
// classification shared by the integrity core.
package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique constraint rejected an insert.
var ErrDuplicate = errors.New("duplicate")

// connPragmas are applied to every pooled connection through the DSN so that
// each connection waits on locks and enforces foreign keys. Transactions take
// the write lock at BEGIN; concurrent writers queue on busy_timeout instead of
// failing on lock upgrade.
const connPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// Options tunes OpenSQLite.
type Options struct {
	// Tracing registers the OpenTelemetry GORM plugin.
	Tracing bool
	// Silent disables GORM's SQL logger.
	Silent bool
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string, opts ...Options) (*gorm.DB, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	cfg := &gorm.Config{}
	if o.Silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(withPragmas(path)), cfg)
	if err != nil {
		return nil, err
	}
	if o.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

func withPragmas(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + connPragmas
	}
	return path + "?" + connPragmas
}

// partialIndexes are created outside of struct tags: they constrain only the
// live rows of append-only and soft-terminated tables.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_exercise_versions_current ON exercise_versions (exercise_id) WHERE superseded_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_sets_active_position ON sets (session_id, exercise_id, set_index) WHERE status = 'active'`,
}

// AutoMigrate creates or updates every table owned by the service.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Exercise{},
		&domain.ExerciseVersion{},
		&domain.Session{},
		&domain.Set{},
		&domain.AuditEntry{},
		&domain.IdempotencyRecord{},
		&domain.ProgressionGeneration{},
		&domain.ReportCacheEntry{},
	); err != nil {
		return err
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// IsDuplicate attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// IsBusy reports whether err means the store could not acquire a lock in
// time: SQLite BUSY/LOCKED or an expired context deadline.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") ||
		strings.Contains(low, "database table is locked") ||
		strings.Contains(low, "sqlite_busy") ||
		strings.Contains(low, "interrupted") ||
		strings.Contains(low, "(5)") ||
		strings.Contains(low, "(517)")
}

// IsNotFound reports whether err is a record-not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, domain.ErrNotFound)
}
