// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for sessions and
// the stamp-guarded update used by the optimistic lock coordinator.
//
// Error semantics:
//   - When a session is not found (or belongs to another user), functions
//     return gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - Deleted sessions are still visible to StampOf so callers can tell a
//     terminal entity apart from a missing one.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// CreateSession inserts a session row.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetSession fetches an active session owned by userID, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, domain.StatusActive).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSessions returns the number of active sessions for userID.
func CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusActive).
		Count(&n).Error
	return n, err
}

// ListSessionsPage returns active sessions for userID, newest first.
func ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusActive).
		Order("started_at DESC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateStamped applies changes to the row of model identified by id and
// owned by ownerID, only if its lock_stamp equals stamp and it is not
// deleted. It returns the number of rows affected (0 or 1).
func UpdateStamped(ctx context.Context, db *gorm.DB, model any, id, ownerID string, stamp int64, changes map[string]any) (int64, error) {
	res := db.WithContext(ctx).
		Model(model).
		Where("id = ? AND user_id = ? AND lock_stamp = ? AND status <> ?", id, ownerID, stamp, domain.StatusDeleted).
		Updates(changes)
	return res.RowsAffected, res.Error
}

// StampOf loads (status, lock_stamp) of a row of model owned by ownerID.
func StampOf(ctx context.Context, db *gorm.DB, model any, id, ownerID string) (status string, stamp int64, err error) {
	var row struct {
		Status    string
		LockStamp int64
	}
	res := db.WithContext(ctx).
		Model(model).
		Select("status", "lock_stamp").
		Where("id = ? AND user_id = ?", id, ownerID).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return "", 0, res.Error
	}
	if res.RowsAffected == 0 {
		return "", 0, ErrNotFound
	}
	return row.Status, row.LockStamp, nil
}
