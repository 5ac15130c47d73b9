// Package locking is the optimistic lock coordinator: the single write gate
// for mutable entities (sessions and sets).
//
// An update names the stamp the caller last read. The stamp comparison and
// the bump to stamp+1 happen in one conditional UPDATE, so for a given stamp
// at most one writer ever succeeds. Everyone else gets ErrStaleLock and must
// refetch; nothing is merged on the caller's behalf. Deletes are the same
// guarded write moving the row to the terminal "deleted" status.
package locking

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/observability"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// Target identifies the row an update applies to.
type Target struct {
	// Entity is the entity type name (domain.EntitySession, domain.EntitySet).
	Entity string
	// Model is a pointer to the GORM model, e.g. &domain.Session{}.
	Model   any
	ID      string
	OwnerID string
}

// MutationFunc returns the column changes to apply together with the stamp
// bump. It runs on the caller's transaction and may reject the update by
// returning an error.
type MutationFunc func(tx *gorm.DB) (map[string]any, error)

// Coordinator applies stamp-guarded updates.
type Coordinator struct {
	DB *gorm.DB
	// WaitTimeout bounds how long a transaction may wait for the store's
	// write lock before the attempt is reported as ErrStaleLock.
	WaitTimeout time.Duration
	// Now is the clock; tests override it.
	Now func() time.Time
}

// New returns a Coordinator over db.
func New(db *gorm.DB, waitTimeout time.Duration) *Coordinator {
	return &Coordinator{DB: db, WaitTimeout: waitTimeout, Now: func() time.Time { return time.Now().UTC() }}
}

// Transaction runs fn in a transaction whose lock wait is bounded by
// WaitTimeout. Lock-wait exhaustion surfaces as ErrStaleLock; errors returned
// by fn pass through unchanged.
func (c *Coordinator) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if c.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.WaitTimeout)
		defer cancel()
	}
	var fnErr error
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(tx)
		return fnErr
	})
	switch {
	case err == nil:
		return nil
	case domain.IsKnown(err):
		return err
	case repo.IsBusy(err):
		return errors.Wrap(domain.ErrStaleLock, "lock wait exceeded")
	case fnErr != nil && errors.Is(err, fnErr):
		return fnErr
	}
	return domain.Unavailable("locking: transaction", err)
}

// ApplyUpdate applies fn's changes to t if its current stamp equals supplied,
// bumping the stamp to supplied+1, and returns the new stamp. It returns
// ErrNotFound when the row is missing, owned by someone else, or deleted, and
// ErrStaleLock when the stamp does not match.
func (c *Coordinator) ApplyUpdate(ctx context.Context, tx *gorm.DB, t Target, supplied int64, fn MutationFunc) (int64, error) {
	ctx, span := otel.Tracer("locking").Start(ctx, "ApplyUpdate",
		trace.WithAttributes(
			attribute.String("entity.type", t.Entity),
			attribute.String("entity.id", t.ID),
			attribute.Int64("lock.stamp", supplied),
		),
	)
	defer span.End()

	changes := map[string]any{}
	if fn != nil {
		ch, err := fn(tx)
		if err != nil {
			return 0, err
		}
		for k, v := range ch {
			changes[k] = v
		}
	}
	newStamp := supplied + 1
	changes["lock_stamp"] = newStamp
	changes["updated_at"] = c.Now()

	n, err := repo.UpdateStamped(ctx, tx, t.Model, t.ID, t.OwnerID, supplied, changes)
	if err != nil {
		if repo.IsBusy(err) {
			observability.LockOutcomes.WithLabelValues(t.Entity, "stale").Inc()
			return 0, errors.Wrap(domain.ErrStaleLock, "lock wait exceeded")
		}
		return 0, domain.Unavailable("locking: conditional update", err)
	}
	if n == 1 {
		observability.LockOutcomes.WithLabelValues(t.Entity, "applied").Inc()
		return newStamp, nil
	}

	status, _, err := repo.StampOf(ctx, tx, t.Model, t.ID, t.OwnerID)
	switch {
	case errors.Is(err, repo.ErrNotFound) || (err == nil && status == domain.StatusDeleted):
		observability.LockOutcomes.WithLabelValues(t.Entity, "not_found").Inc()
		return 0, domain.ErrNotFound
	case err != nil:
		return 0, domain.Unavailable("locking: reload stamp", err)
	}
	observability.LockOutcomes.WithLabelValues(t.Entity, "stale").Inc()
	return 0, domain.ErrStaleLock
}

// Delete moves t to the terminal deleted state through the same guard.
func (c *Coordinator) Delete(ctx context.Context, tx *gorm.DB, t Target, supplied int64) (int64, error) {
	return c.ApplyUpdate(ctx, tx, t, supplied, func(*gorm.DB) (map[string]any, error) {
		return map[string]any{"status": domain.StatusDeleted}, nil
	})
}
