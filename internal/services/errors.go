// Package services implements the workout log use cases on top of the
// integrity core: exercises, sessions, sets, progression reports and the
// audit trail.
//
// This file centralizes service-level error values. Each one wraps a domain
// kind, so handlers can map them with errors.Is on the domain sentinels while
// still showing a precise message.
package services

import (
	"fmt"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

var (
	// ErrKeyRequired is returned when an entrypoint that requires an
	// idempotency key is called without one.
	ErrKeyRequired = fmt.Errorf("%w: Idempotency-Key is required", domain.ErrValidation)

	// ErrNameRequired is returned when an exercise has no name.
	ErrNameRequired = fmt.Errorf("%w: name is required", domain.ErrValidation)

	// ErrNameTooLong is returned when an exercise name exceeds the limit.
	ErrNameTooLong = fmt.Errorf("%w: name too long", domain.ErrValidation)

	// ErrInvalidSlug is returned when a supplied slug is not lowercase
	// alphanumerics separated by dashes.
	ErrInvalidSlug = fmt.Errorf("%w: slug must be lowercase letters, digits and dashes", domain.ErrValidation)

	// ErrSlugTaken is returned when another exercise already uses the slug.
	ErrSlugTaken = fmt.Errorf("%w: slug already in use", domain.ErrValidation)

	// ErrInvalidExpectedVersion is returned for a negative expected_version.
	ErrInvalidExpectedVersion = fmt.Errorf("%w: expected_version must be >= 0", domain.ErrValidation)

	// ErrInvalidRepRange is returned for an empty or inverted rep range.
	ErrInvalidRepRange = fmt.Errorf("%w: default_rep_range must satisfy 1 <= min <= max <= 100", domain.ErrValidation)

	// ErrInvalidTimes is returned when a session ends before it starts.
	ErrInvalidTimes = fmt.Errorf("%w: ended_at must not precede started_at", domain.ErrValidation)

	// ErrInvalidProgram is returned for out-of-range program week/day values.
	ErrInvalidProgram = fmt.Errorf("%w: program_week must be >= 1 and program_day within 1..7", domain.ErrValidation)

	// ErrNotesTooLong is returned when session notes exceed the limit.
	ErrNotesTooLong = fmt.Errorf("%w: notes too long", domain.ErrValidation)

	// ErrInvalidReps is returned when reps is not positive.
	ErrInvalidReps = fmt.Errorf("%w: reps must be > 0", domain.ErrValidation)

	// ErrInvalidWeight is returned for a negative or over-precise weight.
	ErrInvalidWeight = fmt.Errorf("%w: weight_kg must be >= 0 with at most 3 decimals", domain.ErrValidation)

	// ErrInvalidRPE is returned for an RPE outside 1..10.
	ErrInvalidRPE = fmt.Errorf("%w: rpe must be within 1..10", domain.ErrValidation)

	// ErrInvalidSetIndex is returned for a non-positive set_index.
	ErrInvalidSetIndex = fmt.Errorf("%w: set_index must be >= 1", domain.ErrValidation)

	// ErrExerciseRequired is returned when a set names no exercise.
	ErrExerciseRequired = fmt.Errorf("%w: exercise_id is required", domain.ErrValidation)

	// ErrUnknownEntityType is returned by the audit reader for an entity type
	// it does not track.
	ErrUnknownEntityType = fmt.Errorf("%w: entity_type must be exercise, session or set", domain.ErrValidation)

	// ErrSetPositionTaken is returned when a concurrent writer took the
	// requested (session, exercise, set_index) position first.
	ErrSetPositionTaken = fmt.Errorf("%w: set position already taken", domain.ErrStaleLock)
)
