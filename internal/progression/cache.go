// Package progression computes progression reports over logged sets and
// caches them behind a generation counter.
//
// Every accepted set mutation bumps the (user, exercise) generation on the
// mutation's own transaction. A cached report is served only while its
// generation equals the current one; anything else is a miss and is
// recomputed from the durable store. The cache is never authoritative: a
// failing store degrades to recomputing on every read.
package progression

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/observability"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// DefaultCollapseWait bounds how long a miss waits on another caller's
// recomputation of the same report.
const DefaultCollapseWait = 2 * time.Second

// Report is a served aggregate and whether it came from the cache.
type Report struct {
	Aggregate Aggregate
	Hit       bool
}

// Cache serves progression reports.
type Cache struct {
	DB *gorm.DB
	// Store may be nil, in which case every read recomputes.
	Store        Store
	CollapseWait time.Duration
	Now          func() time.Time

	group singleflight.Group
}

// NewCache returns a Cache over db backed by store.
func NewCache(db *gorm.DB, store Store, collapseWait time.Duration) *Cache {
	if collapseWait <= 0 {
		collapseWait = DefaultCollapseWait
	}
	return &Cache{
		DB:           db,
		Store:        store,
		CollapseWait: collapseWait,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// Bump advances the generation of (userID, exerciseID). It must be called on
// the transaction of the set mutation it reflects.
func (c *Cache) Bump(ctx context.Context, tx *gorm.DB, userID, exerciseID string) (int64, error) {
	gen, err := repo.BumpGeneration(ctx, tx, userID, exerciseID, c.Now())
	if err != nil {
		return 0, domain.Unavailable("progression: bump generation", err)
	}
	return gen, nil
}

func (c *Cache) backend() string {
	if c.Store == nil {
		return "none"
	}
	return c.Store.Name()
}

// Get returns the report of exerciseID for userID over windowExpr.
func (c *Cache) Get(ctx context.Context, userID, exerciseID, windowExpr string) (Report, error) {
	w, err := ParseWindow(windowExpr, c.Now())
	if err != nil {
		return Report{}, err
	}
	ctx, span := otel.Tracer("progression").Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("exercise.id", exerciseID),
			attribute.String("window", w.Key()),
		),
	)
	defer span.End()

	gen, err := repo.GetGeneration(ctx, c.DB, userID, exerciseID)
	if err != nil {
		return Report{}, domain.Unavailable("progression: read generation", err)
	}

	if agg, ok := c.lookup(ctx, userID, exerciseID, w.Key(), gen); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return Report{Aggregate: agg, Hit: true}, nil
	}

	// Concurrent misses on one report at one generation share a single
	// recomputation. A later generation gets its own flight.
	flightKey := userID + "|" + exerciseID + "|" + w.Key() + "|" + itoa(gen)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return c.recompute(fctx, userID, exerciseID, w)
	})

	timer := time.NewTimer(c.CollapseWait)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		if res.Shared {
			observability.CacheEvents.WithLabelValues(c.backend(), "collapsed").Inc()
		}
		return Report{Aggregate: res.Val.(Aggregate)}, nil
	case <-timer.C:
		observability.CacheEvents.WithLabelValues(c.backend(), "timeout").Inc()
		log.Warn().Str("exercise_id", exerciseID).Str("window", w.Key()).Msg("progression: collapsed wait timed out, recomputing")
		agg, err := c.recompute(ctx, userID, exerciseID, w)
		if err != nil {
			return Report{}, err
		}
		return Report{Aggregate: agg}, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// lookup returns the cached aggregate when it was computed at gen.
func (c *Cache) lookup(ctx context.Context, userID, exerciseID, window string, gen int64) (Aggregate, bool) {
	if c.Store == nil {
		return Aggregate{}, false
	}
	cached, err := c.Store.Get(ctx, userID, exerciseID, window)
	if err != nil {
		observability.CacheEvents.WithLabelValues(c.backend(), "error").Inc()
		log.Warn().Err(err).Str("backend", c.backend()).Str("exercise_id", exerciseID).Msg("progression: cache read failed")
		return Aggregate{}, false
	}
	if cached == nil {
		observability.CacheEvents.WithLabelValues(c.backend(), "miss").Inc()
		return Aggregate{}, false
	}
	if cached.Generation != gen {
		observability.CacheEvents.WithLabelValues(c.backend(), "stale").Inc()
		return Aggregate{}, false
	}
	var agg Aggregate
	if err := json.Unmarshal(cached.Payload, &agg); err != nil {
		observability.CacheEvents.WithLabelValues(c.backend(), "error").Inc()
		return Aggregate{}, false
	}
	observability.CacheEvents.WithLabelValues(c.backend(), "hit").Inc()
	return agg, true
}

// recompute reads the generation before the sets. If a write lands in
// between, the result holds newer data under an older generation, which only
// makes it look stale sooner; it can never label old data as current.
func (c *Cache) recompute(ctx context.Context, userID, exerciseID string, w Window) (Aggregate, error) {
	start := time.Now()
	defer func() { observability.Recomputations.Observe(time.Since(start).Seconds()) }()

	gen, err := repo.GetGeneration(ctx, c.DB, userID, exerciseID)
	if err != nil {
		return Aggregate{}, domain.Unavailable("progression: read generation", err)
	}
	sets, err := repo.ListSetsForProgression(ctx, c.DB, userID, exerciseID, w.From, w.To)
	if err != nil {
		return Aggregate{}, domain.Unavailable("progression: load sets", err)
	}
	agg := Compute(exerciseID, w, sets)
	agg.Generation = gen

	if c.Store != nil {
		payload, err := json.Marshal(agg)
		if err == nil {
			err = c.Store.Put(ctx, userID, exerciseID, w.Key(), Cached{Generation: gen, Payload: payload})
		}
		if err != nil {
			observability.CacheEvents.WithLabelValues(c.backend(), "error").Inc()
			log.Warn().Err(err).Str("backend", c.backend()).Str("exercise_id", exerciseID).Int64("generation", gen).Msg("progression: cache write failed")
		}
	}
	return agg, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
