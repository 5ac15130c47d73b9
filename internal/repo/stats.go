// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// SessionsStats returns aggregate metadata for a user's sessions: the number
// of active rows and the maximum UpdatedAt timestamp among all of the user's
// rows (deleted ones included, so a delete changes the result).
//
// Return values:
//   - count:        active sessions for userID
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func SessionsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusActive).
		Count(&count).Error; err != nil {
		return 0, nil, err
	}
	maxUpdatedAt, err = latestUpdate(ctx, db, &domain.Session{}, "user_id = ?", userID)
	return count, maxUpdatedAt, err
}

// SetsStats returns the number of active sets in a session and the latest
// UpdatedAt among all of its sets.
func SetsStats(ctx context.Context, db *gorm.DB, sessionID string) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = db.WithContext(ctx).Model(&domain.Set{}).
		Where("session_id = ? AND status = ?", sessionID, domain.StatusActive).
		Count(&count).Error; err != nil {
		return 0, nil, err
	}
	maxUpdatedAt, err = latestUpdate(ctx, db, &domain.Set{}, "session_id = ?", sessionID)
	return count, maxUpdatedAt, err
}

// latestUpdate returns the greatest updated_at of model rows matching the
// condition, or nil when none match.
func latestUpdate(ctx context.Context, db *gorm.DB, model any, cond string, arg any) (*time.Time, error) {
	q := db.WithContext(ctx).Model(model).Where(cond, arg)

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	res := q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row.UpdatedAt, nil
}
