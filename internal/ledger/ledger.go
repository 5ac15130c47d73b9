// Package ledger deduplicates retried mutation requests by a client-supplied
// idempotency key.
//
// A submission either wins the key (Accepted, with a claim token), observes a
// completed record with the same fingerprint (Replayed, with the stored
// response), or fails: ErrIdempotencyConflict for a different fingerprint,
// ErrInFlight when another holder of the key does not finish within the
// bounded wait.
//
// All coordination goes through the database. The placeholder insert is a
// single unique-constrained statement; completing, releasing and reclaiming
// are conditional on the claim token, so a caller whose lease expired can
// never overwrite the record of the caller that reclaimed it.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/observability"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// MaxKeyLen caps accepted idempotency keys.
const MaxKeyLen = 200

// Config tunes the ledger timings.
type Config struct {
	// Lease is how long an accepted placeholder stays owned before another
	// attempt may reclaim it.
	Lease time.Duration
	// WaitTimeout bounds how long a duplicate waits for the owner to finish.
	WaitTimeout time.Duration
	// PollInterval is the delay between looks at a pending record.
	PollInterval time.Duration
	// Retention is how long completed records are kept for replay.
	Retention time.Duration
}

// DefaultConfig returns the timings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Lease:        30 * time.Second,
		WaitTimeout:  5 * time.Second,
		PollInterval: 50 * time.Millisecond,
		Retention:    24 * time.Hour,
	}
}

// Request identifies one logical mutation attempt.
type Request struct {
	UserID string
	Key    string
	// Scope names the entrypoint (and target) the key is used against. It is
	// part of the fingerprint.
	Scope string
	// Payload is the exact request body.
	Payload []byte
}

// StoredResponse is the response persisted for replays.
type StoredResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Result is the outcome of Submit. When Replayed is true, Response holds the
// stored response and the caller must not execute the mutation. Otherwise
// Token is the claim the caller must pass to Complete or Release.
type Result struct {
	Replayed bool
	Response *StoredResponse
	Token    string
}

// Ledger is the idempotency ledger over a GORM handle.
type Ledger struct {
	DB  *gorm.DB
	Cfg Config
	// Now is the clock; tests override it.
	Now func() time.Time
}

// New returns a Ledger with zero timings replaced by defaults.
func New(db *gorm.DB, cfg Config) *Ledger {
	def := DefaultConfig()
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	return &Ledger{DB: db, Cfg: cfg, Now: func() time.Time { return time.Now().UTC() }}
}

// Submit records the first sight of (user, key) or resolves a repeat of it.
func (l *Ledger) Submit(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("ledger").Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.String("idempotency.scope", req.Scope),
		),
	)
	defer span.End()

	if req.Key == "" || len(req.Key) > MaxKeyLen || req.UserID == "" {
		return Result{}, errors.Wrap(domain.ErrValidation, "idempotency key")
	}
	fp := Fingerprint(req.Scope, req.Payload)
	deadline := l.Now().Add(l.Cfg.WaitTimeout)

	for {
		now := l.Now()
		token := uuid.NewString()
		rec := &domain.IdempotencyRecord{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			Key:            req.Key,
			Scope:          req.Scope,
			Fingerprint:    fp,
			State:          domain.IdemPending,
			ClaimToken:     token,
			LeaseExpiresAt: now.Add(l.Cfg.Lease),
			CreatedAt:      now,
		}
		err := repo.InsertIdempotency(ctx, l.DB, rec)
		if err == nil {
			observability.LedgerOutcomes.WithLabelValues("accepted").Inc()
			return Result{Token: token}, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return Result{}, domain.Unavailable("ledger: insert placeholder", err)
		}

		existing, err := repo.GetIdempotency(ctx, l.DB, req.UserID, req.Key)
		if errors.Is(err, repo.ErrNotFound) {
			// Released or reaped between our insert and read; try again.
			continue
		}
		if err != nil {
			return Result{}, domain.Unavailable("ledger: load record", err)
		}

		if existing.Fingerprint != fp {
			observability.LedgerOutcomes.WithLabelValues("conflict").Inc()
			return Result{}, domain.ErrIdempotencyConflict
		}
		if existing.State == domain.IdemCompleted {
			observability.LedgerOutcomes.WithLabelValues("replayed").Inc()
			return Result{
				Replayed: true,
				Response: &StoredResponse{
					Status:      existing.ResponseStatus,
					ContentType: existing.ResponseType,
					Body:        existing.ResponseBody,
				},
			}, nil
		}

		if !existing.LeaseExpiresAt.After(now) {
			ok, err := repo.ReclaimIdempotency(ctx, l.DB, req.UserID, req.Key,
				existing.ClaimToken, token, fp, req.Scope, now, now.Add(l.Cfg.Lease))
			if err != nil {
				return Result{}, domain.Unavailable("ledger: reclaim placeholder", err)
			}
			if ok {
				log.Info().
					Str("user_id", req.UserID).
					Str("key", req.Key).
					Msg("reclaimed abandoned idempotency placeholder")
				observability.LedgerOutcomes.WithLabelValues("reclaimed").Inc()
				return Result{Token: token}, nil
			}
			continue
		}

		if !now.Before(deadline) {
			observability.LedgerOutcomes.WithLabelValues("in_flight").Inc()
			return Result{}, domain.ErrInFlight
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(l.Cfg.PollInterval):
		}
	}
}

// Complete persists the final response for a key accepted with token. It
// must run on the transaction of the mutation so the response and the
// mutation commit together. If the placeholder is no longer owned by token,
// it returns ErrInFlight and the caller must roll back.
func (l *Ledger) Complete(ctx context.Context, tx *gorm.DB, userID, key, token string, resp StoredResponse) error {
	ok, err := repo.CompleteIdempotency(ctx, tx, userID, key, token,
		resp.Status, resp.ContentType, resp.Body, l.Now())
	if err != nil {
		return domain.Unavailable("ledger: complete", err)
	}
	if !ok {
		return domain.ErrInFlight
	}
	return nil
}

// Release gives up a key accepted with token after the mutation failed, so a
// retry with the same key starts fresh. A lost claim is not an error.
func (l *Ledger) Release(ctx context.Context, userID, key, token string) error {
	if _, err := repo.ReleaseIdempotency(ctx, l.DB, userID, key, token); err != nil {
		return domain.Unavailable("ledger: release", err)
	}
	return nil
}
