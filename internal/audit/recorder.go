// Package audit appends the insert-only mutation trail.
//
// Entries are written on the transaction of the mutation they describe, so a
// mutation and its entry commit or roll back together. A failed append fails
// the mutation.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/observability"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// Entry describes one accepted mutation.
type Entry struct {
	EntityType  string
	EntityID    string
	ActorID     string
	Kind        string
	BeforeStamp *int64
	AfterStamp  *int64
	// Payload is marshalled to JSON; nil stores no payload.
	Payload any
}

// Recorder writes and reads audit entries.
type Recorder struct {
	Now func() time.Time
}

// New returns a Recorder using the wall clock.
func New() *Recorder {
	return &Recorder{Now: func() time.Time { return time.Now().UTC() }}
}

// Record appends e on tx. Any failure is ErrUnavailable and must abort the
// surrounding transaction.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, e Entry) (*domain.AuditEntry, error) {
	if e.EntityType == "" || e.EntityID == "" || e.Kind == "" {
		return nil, errors.Wrap(domain.ErrValidation, "audit: entity and kind are required")
	}
	row := &domain.AuditEntry{
		ID:          uuid.NewString(),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		Kind:        e.Kind,
		BeforeStamp: e.BeforeStamp,
		AfterStamp:  e.AfterStamp,
		CreatedAt:   r.Now(),
	}
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			observability.AuditFailures.Inc()
			return nil, domain.Unavailable("audit: encode payload", err)
		}
		row.Payload = datatypes.JSON(b)
	}
	if err := repo.InsertAudit(ctx, tx, row); err != nil {
		observability.AuditFailures.Inc()
		return nil, domain.Unavailable("audit: append", err)
	}
	return row, nil
}

// ByEntity returns the trail of one entity in creation order. An entity with
// no entries yields an empty slice.
func (r *Recorder) ByEntity(ctx context.Context, db *gorm.DB, entityType, entityID string) ([]domain.AuditEntry, error) {
	out, err := repo.ListAuditByEntity(ctx, db, entityType, entityID)
	if err != nil {
		return nil, domain.Unavailable("audit: list", err)
	}
	return out, nil
}

// Stamp is a convenience for the optional stamp fields.
func Stamp(v int64) *int64 { return &v }
