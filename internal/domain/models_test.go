package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Exercise{}.TableName():              "exercises",
		ExerciseVersion{}.TableName():       "exercise_versions",
		Session{}.TableName():               "sessions",
		Set{}.TableName():                   "sets",
		AuditEntry{}.TableName():            "audit_entries",
		IdempotencyRecord{}.TableName():     "idempotency_records",
		ProgressionGeneration{}.TableName(): "progression_generations",
		ReportCacheEntry{}.TableName():      "report_cache",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndChecks(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Exercise{}, &ExerciseVersion{}, &Session{}, &Set{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, idx := range []struct {
		model any
		name  string
	}{
		{&Exercise{}, "ux_exercises_slug"},
		{&ExerciseVersion{}, "ux_exercise_version_number"},
		{&Session{}, "idx_user_sessions"},
		{&Set{}, "idx_session_sets"},
		{&Set{}, "idx_user_exercise_sets"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}

	now := time.Now().UTC()
	ex := &Exercise{ID: "e1", Slug: "bench-press", CreatedBy: "u1", CurrentVersionID: "v1", CurrentNumber: 1}
	if err := db.Create(ex).Error; err != nil {
		t.Fatalf("insert exercise: %v", err)
	}
	v1 := &ExerciseVersion{ID: "v1", ExerciseID: "e1", Number: 1, Payload: datatypes.JSON(`{"name":"Bench Press"}`), CreatedBy: "u1", CreatedAt: now}
	if err := db.Create(v1).Error; err != nil {
		t.Fatalf("insert version: %v", err)
	}
	dup := &ExerciseVersion{ID: "v1b", ExerciseID: "e1", Number: 1, Payload: datatypes.JSON(`{}`), CreatedBy: "u1", CreatedAt: now}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on (exercise_id, number)")
	}

	s := &Session{ID: "s1", UserID: "u1", StartedAt: now, Status: StatusActive, LockStamp: 1}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("insert session: %v", err)
	}

	bad := &Set{
		ID: "x1", SessionID: "s1", UserID: "u1", ExerciseID: "e1", ExerciseVersionID: "v1",
		SetIndex: 1, Reps: 0, WeightKg: decimal.RequireFromString("50"), PerformedAt: now,
		Status: StatusActive, LockStamp: 1,
	}
	if err := db.Omit("Session", "Version").Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for reps = 0")
	}

	good := &Set{
		ID: "x2", SessionID: "s1", UserID: "u1", ExerciseID: "e1", ExerciseVersionID: "v1",
		SetIndex: 1, Reps: 5, WeightKg: decimal.RequireFromString("82.5"),
		RPE: decimal.NewNullDecimal(decimal.RequireFromString("8.5")), PerformedAt: now,
		Status: StatusActive, LockStamp: 1,
	}
	if err := db.Omit("Session", "Version").Create(good).Error; err != nil {
		t.Fatalf("insert set: %v", err)
	}
	var got Set
	if err := db.First(&got, "id = ?", "x2").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if !got.WeightKg.Equal(decimal.RequireFromString("82.5")) || !got.RPE.Valid {
		t.Fatalf("decimal columns did not round-trip: %+v", got)
	}

	orphan := &Set{
		ID: "x3", SessionID: "missing", UserID: "u1", ExerciseID: "e1", ExerciseVersionID: "v1",
		SetIndex: 2, Reps: 5, WeightKg: decimal.Zero, PerformedAt: now, Status: StatusActive, LockStamp: 1,
	}
	if err := db.Omit("Session", "Version").Create(orphan).Error; err == nil {
		t.Fatalf("expected FK violation for unknown session")
	}
}
