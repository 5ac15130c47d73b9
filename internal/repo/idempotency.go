// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the idempotency
// ledger: placeholder insert, lookup, fenced reclaim/complete/release and
// reaping. Every state transition is a single conditional statement so the
// ledger stays correct across workers sharing only the database.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// InsertIdempotency inserts a pending placeholder and returns ErrDuplicate on
// unique violation of (user_id, key).
func InsertIdempotency(ctx context.Context, db *gorm.DB, rec *domain.IdempotencyRecord) error {
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetIdempotency returns the record for (userID, key) or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ?", userID, key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReclaimIdempotency hands an expired pending placeholder to a new owner.
// The predicate includes the previous claim token, so among concurrent
// reclaimers exactly one sees a row affected.
func ReclaimIdempotency(ctx context.Context, db *gorm.DB, userID, key, oldToken, newToken, fingerprint, scope string, now, leaseUntil time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("user_id = ? AND key = ? AND state = ? AND claim_token = ? AND lease_expires_at <= ?",
			userID, key, domain.IdemPending, oldToken, now).
		Updates(map[string]any{
			"claim_token":      newToken,
			"fingerprint":      fingerprint,
			"scope":            scope,
			"lease_expires_at": leaseUntil,
			"created_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteIdempotency stores the final response on a pending placeholder
// still owned by token. It reports false when ownership was lost.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, userID, key, token string, status int, contentType string, body []byte, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("user_id = ? AND key = ? AND state = ? AND claim_token = ?", userID, key, domain.IdemPending, token).
		Updates(map[string]any{
			"state":           domain.IdemCompleted,
			"response_status": status,
			"response_type":   contentType,
			"response_body":   body,
			"completed_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseIdempotency deletes a pending placeholder owned by token so the key
// can be retried right away.
func ReleaseIdempotency(ctx context.Context, db *gorm.DB, userID, key, token string) (bool, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND state = ? AND claim_token = ?", userID, key, domain.IdemPending, token).
		Delete(&domain.IdempotencyRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReapIdempotency removes completed records created before completedBefore
// and pending records whose lease expired before abandonedBefore. Pending
// records with a live lease never match.
func ReapIdempotency(ctx context.Context, db *gorm.DB, completedBefore, abandonedBefore time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("(state = ? AND created_at < ?) OR (state = ? AND lease_expires_at < ?)",
			domain.IdemCompleted, completedBefore, domain.IdemPending, abandonedBefore).
		Delete(&domain.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
