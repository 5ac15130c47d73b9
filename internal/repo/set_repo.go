// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for sets.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// CreateSet inserts a set row without touching its associations. A clash on
// the active (session, exercise, set_index) position is ErrDuplicate.
func CreateSet(ctx context.Context, db *gorm.DB, s *domain.Set) error {
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(s).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetSet fetches an active set owned by userID, or ErrNotFound.
func GetSet(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Set, error) {
	var s domain.Set
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, domain.StatusActive).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSetsBySession returns the active sets of a session ordered by
// exercise and position.
func ListSetsBySession(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Set, error) {
	var out []domain.Set
	err := db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, domain.StatusActive).
		Order("exercise_id ASC").
		Order("set_index ASC").
		Find(&out).Error
	return out, err
}

// NextSetIndex returns 1 + the highest active set_index for the
// (session, exercise) pair.
func NextSetIndex(ctx context.Context, db *gorm.DB, sessionID, exerciseID string) (int, error) {
	var row struct{ Max *int }
	err := db.WithContext(ctx).
		Model(&domain.Set{}).
		Select("MAX(set_index) AS max").
		Where("session_id = ? AND exercise_id = ? AND status = ?", sessionID, exerciseID, domain.StatusActive).
		Scan(&row).Error
	if err != nil {
		return 0, err
	}
	if row.Max == nil {
		return 1, nil
	}
	return *row.Max + 1, nil
}

// ListSetsForProgression returns the active sets of (userID, exerciseID)
// performed in [from, to), oldest first. A zero from means no lower bound.
func ListSetsForProgression(ctx context.Context, db *gorm.DB, userID, exerciseID string, from, to time.Time) ([]domain.Set, error) {
	q := db.WithContext(ctx).
		Where("user_id = ? AND exercise_id = ? AND status = ?", userID, exerciseID, domain.StatusActive).
		Where("performed_at < ?", to)
	if !from.IsZero() {
		q = q.Where("performed_at >= ?", from)
	}
	var out []domain.Set
	err := q.Order("performed_at ASC").Order("id ASC").Find(&out).Error
	return out, err
}
