// Package versioning maintains the append-only version chain of catalog
// entities (exercises).
//
// Versions are never edited. Creating a version supersedes the current one,
// inserts its successor with number+1 and advances the exercise's current
// pointer, all on the caller's transaction. The pointer advance is a
// compare-and-increment on the previous number, and a partial unique index
// allows a single un-superseded row per exercise, so concurrent creators can
// not fork the chain: the loser gets ErrStaleLock.
package versioning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/observability"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// Manager reads and extends version chains.
type Manager struct {
	// Now is the clock; tests override it.
	Now func() time.Time
}

// New returns a Manager using the wall clock.
func New() *Manager {
	return &Manager{Now: func() time.Time { return time.Now().UTC() }}
}

// CreateEntity inserts a new logical exercise with payload as version 1.
// ex.ID is assigned when empty; ex.Slug and ex.CreatedBy must be set. A slug
// clash is returned as repo.ErrDuplicate.
func (m *Manager) CreateEntity(ctx context.Context, tx *gorm.DB, ex *domain.Exercise, payload []byte) (*domain.ExerciseVersion, error) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	now := m.Now()
	v := &domain.ExerciseVersion{
		ID:         uuid.NewString(),
		ExerciseID: ex.ID,
		Number:     1,
		Payload:    datatypes.JSON(payload),
		CreatedBy:  ex.CreatedBy,
		CreatedAt:  now,
	}
	ex.CurrentVersionID = v.ID
	ex.CurrentNumber = 1
	ex.CreatedAt = now
	ex.UpdatedAt = now

	if err := repo.CreateExercise(ctx, tx, ex); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}
		return nil, domain.Unavailable("versioning: insert exercise", err)
	}
	if err := repo.InsertVersion(ctx, tx, v); err != nil {
		return nil, domain.Unavailable("versioning: insert first version", err)
	}
	observability.VersionsCreated.Inc()
	return v, nil
}

// CreateVersion appends payload as the new current version of logicalID.
// When expected > 0 it must equal the current version number, otherwise
// ErrStaleLock. An unknown logicalID is ErrNotFound.
func (m *Manager) CreateVersion(ctx context.Context, tx *gorm.DB, logicalID string, payload []byte, actor string, expected int) (*domain.ExerciseVersion, error) {
	ctx, span := otel.Tracer("versioning").Start(ctx, "CreateVersion",
		trace.WithAttributes(
			attribute.String("exercise.id", logicalID),
			attribute.Int("version.expected", expected),
		),
	)
	defer span.End()

	ex, err := repo.GetExercise(ctx, tx, logicalID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("versioning: load exercise", err)
	}
	if expected > 0 && expected != ex.CurrentNumber {
		return nil, domain.ErrStaleLock
	}

	now := m.Now()
	ok, err := repo.SupersedeVersion(ctx, tx, ex.CurrentVersionID, now)
	if err != nil {
		return nil, domain.Unavailable("versioning: supersede", err)
	}
	if !ok {
		return nil, domain.ErrStaleLock
	}

	v := &domain.ExerciseVersion{
		ID:         uuid.NewString(),
		ExerciseID: logicalID,
		Number:     ex.CurrentNumber + 1,
		Payload:    datatypes.JSON(payload),
		CreatedBy:  actor,
		CreatedAt:  now,
	}
	if err := repo.InsertVersion(ctx, tx, v); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, domain.ErrStaleLock
		}
		return nil, domain.Unavailable("versioning: insert version", err)
	}

	ok, err = repo.AdvanceExercisePointer(ctx, tx, logicalID, ex.CurrentNumber, v.ID, now)
	if err != nil {
		return nil, domain.Unavailable("versioning: advance pointer", err)
	}
	if !ok {
		return nil, domain.ErrStaleLock
	}
	observability.VersionsCreated.Inc()
	return v, nil
}

// CurrentVersion returns the current version of logicalID, or ErrNotFound.
func (m *Manager) CurrentVersion(ctx context.Context, db *gorm.DB, logicalID string) (*domain.ExerciseVersion, error) {
	v, err := repo.GetCurrentVersion(ctx, db, logicalID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("versioning: current version", err)
	}
	return v, nil
}

// GetVersion returns the version with versionID, or ErrNotFound.
func (m *Manager) GetVersion(ctx context.Context, db *gorm.DB, versionID string) (*domain.ExerciseVersion, error) {
	v, err := repo.GetVersion(ctx, db, versionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("versioning: get version", err)
	}
	return v, nil
}

// History returns the whole chain of logicalID ordered by number, or
// ErrNotFound when the exercise does not exist.
func (m *Manager) History(ctx context.Context, db *gorm.DB, logicalID string) ([]domain.ExerciseVersion, error) {
	out, err := repo.ListVersions(ctx, db, logicalID)
	if err != nil {
		return nil, domain.Unavailable("versioning: history", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}
