package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/config"
	"github.com/tbourn/go-setlogs-backend/internal/events"
	"github.com/tbourn/go-setlogs-backend/internal/ledger"
	"github.com/tbourn/go-setlogs-backend/internal/locking"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
	"github.com/tbourn/go-setlogs-backend/internal/services"
)

// runtime owns the long-lived resources of a command.
type runtime struct {
	DB     *gorm.DB
	Core   *services.Core
	Bus    *events.Bus
	Redis  *redis.Client
	closer []func() error
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close() {
	for i := len(r.closer) - 1; i >= 0; i-- {
		if err := r.closer[i](); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}
}

// openDB opens and migrates the configured database.
func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath, repo.Options{Tracing: cfg.OTEL.Enabled, Silent: cfg.LogLevel != "debug"})
	if err != nil {
		return nil, errors.Wrapf(err, "open database %q", cfg.DBPath)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}

// newLedger maps the idempotency settings onto the ledger.
func newLedger(db *gorm.DB, cfg config.Config) *ledger.Ledger {
	return ledger.New(db, ledger.Config{
		Lease:        cfg.Idempotency.Lease,
		WaitTimeout:  cfg.Idempotency.WaitTimeout,
		PollInterval: cfg.Idempotency.PollInterval,
		Retention:    cfg.Idempotency.Retention,
	})
}

// buildRuntime opens the store and wires the integrity core with the cache
// and event backends selected by cfg. withBus=false skips the event bus for
// one-shot commands.
func buildRuntime(ctx context.Context, cfg config.Config, withBus bool) (*runtime, error) {
	rt := &runtime{}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	rt.DB = db
	if sqlDB, err := db.DB(); err == nil {
		rt.closer = append(rt.closer, sqlDB.Close)
	}

	if cfg.Cache.Backend == "redis" || (withBus && cfg.Events.Backend == "redis") {
		rt.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		rt.closer = append(rt.closer, rt.Redis.Close)
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			rt.Close()
			return nil, errors.Wrapf(err, "redis ping %s", cfg.Redis.Addr)
		}
	}

	var store progression.Store
	switch cfg.Cache.Backend {
	case "sql":
		store = progression.NewSQLStore(db)
	case "redis":
		store = progression.NewRedisStore(rt.Redis, cfg.Cache.TTL)
	}
	cache := progression.NewCache(db, store, cfg.Cache.CollapseWait)

	var pub events.Publisher
	if withBus {
		switch cfg.Events.Backend {
		case "memory":
			rt.Bus = events.NewMemoryBus(cfg.Events.Stream)
		case "redis":
			rt.Bus, err = events.NewRedisBus(rt.Redis, events.RedisConfig{
				Topic:    cfg.Events.Stream,
				Group:    cfg.Events.Group,
				Consumer: cfg.Events.Consumer,
			})
			if err != nil {
				rt.Close()
				return nil, errors.Wrap(err, "redis event bus")
			}
		}
		if rt.Bus != nil {
			rt.closer = append(rt.closer, rt.Bus.Close)
			pub = rt.Bus
		}
	}

	rt.Core = services.NewCore(db, newLedger(db, cfg), locking.New(db, cfg.Locking.WaitTimeout), cache, pub)
	log.Info().
		Str("db", cfg.DBPath).
		Str("cache", cfg.Cache.Backend).
		Str("events", cfg.Events.Backend).
		Bool("bus", rt.Bus != nil).
		Msg("runtime ready")
	return rt, nil
}
