// Package repotest opens migrated throwaway databases for tests.
package repotest

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// NewDB opens a file-backed SQLite database in a temp dir with the full
// schema applied. A file (not shared-cache memory) database is used so
// concurrent tests exercise real WAL locking.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setlogs.db")
	db, err := repo.OpenSQLite(path, repo.Options{Silent: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
