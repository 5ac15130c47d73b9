// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the progression generation counters and
// the SQL-backed report cache.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// BumpGeneration atomically increments the generation of (userID,
// exerciseID), creating the counter at 1 on first write, and returns the new
// value. It must run in the transaction of the set mutation it reflects.
func BumpGeneration(ctx context.Context, db *gorm.DB, userID, exerciseID string, now time.Time) (int64, error) {
	row := &domain.ProgressionGeneration{
		UserID:     userID,
		ExerciseID: exerciseID,
		Generation: 1,
		UpdatedAt:  now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "exercise_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"generation": gorm.Expr("progression_generations.generation + 1"),
			"updated_at": now,
		}),
	}).Create(row).Error
	if err != nil {
		return 0, err
	}
	return GetGeneration(ctx, db, userID, exerciseID)
}

// GetGeneration returns the current generation of (userID, exerciseID); a
// partition that was never written is at generation 0.
func GetGeneration(ctx context.Context, db *gorm.DB, userID, exerciseID string) (int64, error) {
	var g domain.ProgressionGeneration
	err := db.WithContext(ctx).
		Where("user_id = ? AND exercise_id = ?", userID, exerciseID).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return g.Generation, nil
}

// GetReportCache returns the cached entry for (userID, exerciseID, window),
// or ErrNotFound.
func GetReportCache(ctx context.Context, db *gorm.DB, userID, exerciseID, window string) (*domain.ReportCacheEntry, error) {
	var e domain.ReportCacheEntry
	err := db.WithContext(ctx).
		Where("user_id = ? AND exercise_id = ? AND report_window = ?", userID, exerciseID, window).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutReportCache upserts a cache entry. An entry is only replaced by one of
// an equal or newer generation, so a slow writer holding an old result can
// not overwrite a fresher one.
func PutReportCache(ctx context.Context, db *gorm.DB, e *domain.ReportCacheEntry) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "exercise_id"}, {Name: "report_window"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "report_cache.generation <= excluded.generation"},
		}},
		DoUpdates: clause.AssignmentColumns([]string{"generation", "payload", "computed_at"}),
	}).Create(e).Error
}
