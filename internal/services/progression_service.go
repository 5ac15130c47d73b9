// Package services – ProgressionService and AuditService
//
// Read-side services: progression reports served through the generation
// guarded cache, and the audit trail of an entity.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// ProgressionService serves progression reports.
type ProgressionService struct {
	*Core
}

// NewProgressionService constructs a ProgressionService.
func NewProgressionService(c *Core) *ProgressionService {
	return &ProgressionService{Core: c}
}

// Report returns userID's report for exerciseID over window ("30d", "8w",
// "all"; empty means 30d).
func (s *ProgressionService) Report(ctx context.Context, userID, exerciseID, window string) (progression.Report, error) {
	ctx, span := otel.Tracer("services/ProgressionService").Start(ctx, "Report",
		trace.WithAttributes(
			attribute.String("exercise.id", exerciseID),
			attribute.String("window", window),
		),
	)
	defer span.End()

	ok, err := repo.ExerciseExists(ctx, s.DB, exerciseID)
	if err != nil {
		return progression.Report{}, domain.Unavailable("progression: exercise lookup", err)
	}
	if !ok {
		return progression.Report{}, domain.ErrNotFound
	}
	return s.Cache.Get(ctx, userID, exerciseID, window)
}

// AuditService reads audit trails.
type AuditService struct {
	*Core
}

// NewAuditService constructs an AuditService.
func NewAuditService(c *Core) *AuditService {
	return &AuditService{Core: c}
}

// Trail returns the audit entries of one entity in creation order. Catalog
// entries are public; sessions and sets are only visible to their owner, and
// their trail stays readable after deletion.
func (s *AuditService) Trail(ctx context.Context, userID, entityType, entityID string) ([]domain.AuditEntry, error) {
	switch entityType {
	case domain.EntityExercise:
		ok, err := repo.ExerciseExists(ctx, s.DB, entityID)
		if err != nil {
			return nil, domain.Unavailable("audit: exercise lookup", err)
		}
		if !ok {
			return nil, domain.ErrNotFound
		}
	case domain.EntitySession:
		if _, _, err := repo.StampOf(ctx, s.DB, &domain.Session{}, entityID, userID); err != nil {
			return nil, notFoundOr(err, "audit: session lookup")
		}
	case domain.EntitySet:
		if _, _, err := repo.StampOf(ctx, s.DB, &domain.Set{}, entityID, userID); err != nil {
			return nil, notFoundOr(err, "audit: set lookup")
		}
	default:
		return nil, ErrUnknownEntityType
	}
	return s.Audit.ByEntity(ctx, s.DB, entityType, entityID)
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ErrNotFound
	}
	return domain.Unavailable(op, err)
}
