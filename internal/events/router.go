package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
)

// Handler consumes one decoded event.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev MutationEvent) error
}

// Run consumes the bus topic until ctx is done, dispatching every event to
// handlers in order. One router handler serves them all so a Redis consumer
// group sees each message once. A handler error nacks the message.
func Run(ctx context.Context, bus *Bus, handlers ...Handler) error {
	router, err := message.NewRouter(message.RouterConfig{}, bus.Logger)
	if err != nil {
		return err
	}
	router.AddNoPublisherHandler("setlogs-dispatch", bus.Topic, bus.Subscriber, func(msg *message.Message) error {
		ev, err := Decode(msg)
		if err != nil {
			// Malformed messages are acked and dropped; redelivery will not fix them.
			log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("events: undecodable message")
			return nil
		}
		for _, h := range handlers {
			if err := h.Handle(msg.Context(), ev); err != nil {
				return errors.Wrapf(err, "handler %s", h.Name())
			}
		}
		return nil
	})
	return router.Run(ctx)
}

// MutationLogger writes one structured line per committed mutation.
type MutationLogger struct {
	l zerolog.Logger
}

// NewMutationLogger logs through the global logger.
func NewMutationLogger() *MutationLogger {
	return &MutationLogger{l: log.Logger.With().Str("component", "mutations").Logger()}
}

func (m *MutationLogger) Name() string { return "mutation-log" }

func (m *MutationLogger) Handle(_ context.Context, ev MutationEvent) error {
	e := m.l.Info().
		Str("entity_type", ev.EntityType).
		Str("entity_id", ev.EntityID).
		Str("user_id", ev.UserID).
		Str("kind", ev.Kind)
	if ev.Stamp > 0 {
		e = e.Int64("stamp", ev.Stamp)
	}
	e.Time("at", ev.At).Msg("mutation committed")
	return nil
}

// CacheWarmer recomputes the progression report a set mutation invalidated,
// so the next reader finds it cached.
type CacheWarmer struct {
	Cache  *progression.Cache
	Window string
}

func (w *CacheWarmer) Name() string { return "progression-warmer" }

func (w *CacheWarmer) Handle(ctx context.Context, ev MutationEvent) error {
	if ev.EntityType != domain.EntitySet || ev.ExerciseID == "" || ev.UserID == "" {
		return nil
	}
	if _, err := w.Cache.Get(ctx, ev.UserID, ev.ExerciseID, w.Window); err != nil {
		// Warming is best effort; the next reader recomputes.
		log.Debug().Err(err).Str("exercise_id", ev.ExerciseID).Msg("events: cache warm failed")
	}
	return nil
}
