// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the exercise
// catalog and its version chain.
//
// Version rows are insert-only. The only statements that touch an existing
// version set superseded_at on the current row, and they are guarded so a row
// can be superseded at most once.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// CreateExercise inserts the logical exercise row.
func CreateExercise(ctx context.Context, db *gorm.DB, ex *domain.Exercise) error {
	if err := db.WithContext(ctx).Create(ex).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetExercise fetches an exercise by id, or ErrNotFound.
func GetExercise(ctx context.Context, db *gorm.DB, id string) (*domain.Exercise, error) {
	var ex domain.Exercise
	if err := db.WithContext(ctx).Where("id = ?", id).First(&ex).Error; err != nil {
		return nil, err
	}
	return &ex, nil
}

// GetExerciseBySlug fetches an exercise by slug, or ErrNotFound.
func GetExerciseBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Exercise, error) {
	var ex domain.Exercise
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&ex).Error; err != nil {
		return nil, err
	}
	return &ex, nil
}

// CountExercises returns the number of catalog entries.
func CountExercises(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Exercise{}).Count(&n).Error
	return n, err
}

// ListExercisesPage returns a page of exercises ordered by slug.
func ListExercisesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Exercise, error) {
	var out []domain.Exercise
	err := db.WithContext(ctx).
		Order("slug ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListCurrentVersions returns the current version of every exercise.
func ListCurrentVersions(ctx context.Context, db *gorm.DB) ([]domain.ExerciseVersion, error) {
	var out []domain.ExerciseVersion
	err := db.WithContext(ctx).
		Where("superseded_at IS NULL").
		Order("exercise_id ASC").
		Find(&out).Error
	return out, err
}

// InsertVersion appends a version row. A unique violation (number already
// taken, or a second current row) is reported as ErrDuplicate.
func InsertVersion(ctx context.Context, db *gorm.DB, v *domain.ExerciseVersion) error {
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetVersion fetches a version by id, or ErrNotFound.
func GetVersion(ctx context.Context, db *gorm.DB, id string) (*domain.ExerciseVersion, error) {
	var v domain.ExerciseVersion
	if err := db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// GetCurrentVersion returns the version of exerciseID whose superseded_at is
// NULL, or ErrNotFound.
func GetCurrentVersion(ctx context.Context, db *gorm.DB, exerciseID string) (*domain.ExerciseVersion, error) {
	var v domain.ExerciseVersion
	err := db.WithContext(ctx).
		Where("exercise_id = ? AND superseded_at IS NULL", exerciseID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions returns the chain of exerciseID ordered by number.
func ListVersions(ctx context.Context, db *gorm.DB, exerciseID string) ([]domain.ExerciseVersion, error) {
	var out []domain.ExerciseVersion
	err := db.WithContext(ctx).
		Where("exercise_id = ?", exerciseID).
		Order("number ASC").
		Find(&out).Error
	return out, err
}

// GetVersionsByIDs loads versions keyed by id.
func GetVersionsByIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.ExerciseVersion, error) {
	out := make(map[string]domain.ExerciseVersion, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.ExerciseVersion
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, v := range rows {
		out[v.ID] = v
	}
	return out, nil
}

// SupersedeVersion stamps superseded_at on versionID if it is still current.
// It reports false when another writer superseded it first.
func SupersedeVersion(ctx context.Context, db *gorm.DB, versionID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ExerciseVersion{}).
		Where("id = ? AND superseded_at IS NULL", versionID).
		Update("superseded_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AdvanceExercisePointer moves the current pointer from fromNumber to the
// new version. It is the compare-and-increment that linearizes concurrent
// version creators: it reports false when the pointer already moved.
func AdvanceExercisePointer(ctx context.Context, db *gorm.DB, exerciseID string, fromNumber int, newVersionID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Exercise{}).
		Where("id = ? AND current_number = ?", exerciseID, fromNumber).
		Updates(map[string]any{
			"current_version_id": newVersionID,
			"current_number":     fromNumber + 1,
			"updated_at":         at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExerciseExists reports whether id names a catalog entry.
func ExerciseExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	_, err := GetExercise(ctx, db, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}
