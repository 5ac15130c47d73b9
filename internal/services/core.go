package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/audit"
	"github.com/tbourn/go-setlogs-backend/internal/events"
	"github.com/tbourn/go-setlogs-backend/internal/ledger"
	"github.com/tbourn/go-setlogs-backend/internal/locking"
	"github.com/tbourn/go-setlogs-backend/internal/observability"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
	"github.com/tbourn/go-setlogs-backend/internal/versioning"
)

// JSONContentType is the content type stored with every mutation response.
const JSONContentType = "application/json; charset=utf-8"

// Core bundles the integrity components every service writes through.
type Core struct {
	DB       *gorm.DB
	Ledger   *ledger.Ledger
	Locks    *locking.Coordinator
	Versions *versioning.Manager
	Audit    *audit.Recorder
	Cache    *progression.Cache
	// Events may be nil.
	Events events.Publisher
	Now    func() time.Time
}

// NewCore wires a Core over db. pub may be nil.
func NewCore(db *gorm.DB, l *ledger.Ledger, locks *locking.Coordinator, cache *progression.Cache, pub events.Publisher) *Core {
	return &Core{
		DB:       db,
		Ledger:   l,
		Locks:    locks,
		Versions: versioning.New(),
		Audit:    audit.New(),
		Cache:    cache,
		Events:   pub,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Idem carries the client's idempotency key and the exact request body it
// covers.
type Idem struct {
	Key     string
	Payload []byte
}

// Outcome is the encoded response of a keyed mutation. Replayed outcomes
// carry the bytes stored by the first execution.
type Outcome struct {
	Status      int
	ContentType string
	Body        []byte
	Replayed    bool
}

// Decode unmarshals the body into v.
func (o Outcome) Decode(v any) error { return json.Unmarshal(o.Body, v) }

// mutation is what a transactional step hands back to run.
type mutation struct {
	status int
	value  any
	events []events.MutationEvent
}

// run executes fn at most once per (user, key). Without a key fn runs
// unguarded unless required is set. The encoded response is stored on fn's
// transaction; a failed fn releases the key so the client can retry.
func (c *Core) run(ctx context.Context, userID, scope string, idem Idem, required bool, fn func(tx *gorm.DB) (mutation, error)) (out Outcome, err error) {
	span := trace.SpanFromContext(ctx)
	defer func() {
		span.SetAttributes(attribute.Bool("idempotency.keyed", idem.Key != ""), attribute.Bool("idempotency.replayed", out.Replayed))
		observability.Finish(span, err)
	}()

	if idem.Key == "" {
		if required {
			return Outcome{}, ErrKeyRequired
		}
		var evs []events.MutationEvent
		err = c.Locks.Transaction(ctx, func(tx *gorm.DB) error {
			m, err := fn(tx)
			if err != nil {
				return err
			}
			out, err = encode(m)
			evs = m.events
			return err
		})
		if err != nil {
			return Outcome{}, err
		}
		c.publish(ctx, evs)
		return out, nil
	}

	res, err := c.Ledger.Submit(ctx, ledger.Request{UserID: userID, Key: idem.Key, Scope: scope, Payload: idem.Payload})
	if err != nil {
		return Outcome{}, err
	}
	if res.Replayed {
		return Outcome{
			Status:      res.Response.Status,
			ContentType: res.Response.ContentType,
			Body:        res.Response.Body,
			Replayed:    true,
		}, nil
	}

	var evs []events.MutationEvent
	err = c.Locks.Transaction(ctx, func(tx *gorm.DB) error {
		m, err := fn(tx)
		if err != nil {
			return err
		}
		if out, err = encode(m); err != nil {
			return err
		}
		evs = m.events
		return c.Ledger.Complete(ctx, tx, userID, idem.Key, res.Token, ledger.StoredResponse{
			Status:      out.Status,
			ContentType: out.ContentType,
			Body:        out.Body,
		})
	})
	if err != nil {
		if rerr := c.Ledger.Release(context.WithoutCancel(ctx), userID, idem.Key, res.Token); rerr != nil {
			log.Warn().Err(rerr).Str("user_id", userID).Str("scope", scope).Msg("idempotency release failed; key frees at lease expiry")
		}
		return Outcome{}, err
	}
	c.publish(ctx, evs)
	return out, nil
}

// tx runs fn on a lock-bounded transaction and publishes its events after
// commit.
func (c *Core) tx(ctx context.Context, fn func(tx *gorm.DB) ([]events.MutationEvent, error)) (err error) {
	defer func() { observability.Finish(trace.SpanFromContext(ctx), err) }()

	var evs []events.MutationEvent
	err = c.Locks.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		evs, err = fn(tx)
		return err
	})
	if err != nil {
		return err
	}
	c.publish(ctx, evs)
	return nil
}

func (c *Core) publish(ctx context.Context, evs []events.MutationEvent) {
	if c.Events == nil {
		return
	}
	for _, ev := range evs {
		c.Events.Publish(ctx, ev)
	}
}

func encode(m mutation) (Outcome, error) {
	body, err := json.Marshal(m.value)
	if err != nil {
		return Outcome{}, err
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return Outcome{Status: status, ContentType: JSONContentType, Body: body}, nil
}
