package events

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
	"github.com/tbourn/go-setlogs-backend/internal/repo/repotest"
)

func TestMemoryBus_DeliversEvents(t *testing.T) {
	bus := NewMemoryBus("")
	t.Cleanup(func() { _ = bus.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := bus.Subscriber.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	bus.Publish(ctx, MutationEvent{EntityType: domain.EntitySet, EntityID: "s1", UserID: "u1", Kind: domain.MutationCreate, ExerciseID: "ex1", Stamp: 1})

	select {
	case msg := <-msgs:
		ev, err := Decode(msg)
		require.NoError(t, err)
		msg.Ack()
		require.NotEmpty(t, ev.ID)
		require.Equal(t, "ex1", ev.ExerciseID)
		require.Equal(t, domain.MutationCreate, ev.Kind)
		require.False(t, ev.At.IsZero())
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestPublish_NilBusIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(context.Background(), MutationEvent{})
	require.NoError(t, bus.Close())
}

type recorder struct {
	mu  sync.Mutex
	got []MutationEvent
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Handle(_ context.Context, ev MutationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestRun_DispatchesToHandlers(t *testing.T) {
	bus := NewMemoryBus("test.topic")
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, bus, rec) }()

	// The router subscribes asynchronously; publish until delivered.
	deadline := time.Now().Add(5 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		bus.Publish(context.Background(), MutationEvent{EntityType: domain.EntitySession, EntityID: "s1", Kind: domain.MutationUpdate})
		time.Sleep(20 * time.Millisecond)
	}
	require.Positive(t, rec.count())

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("router: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("router did not stop")
	}
	_ = bus.Close()
}

func TestCacheWarmer_WarmsSetPartitions(t *testing.T) {
	db := repotest.NewDB(t)
	exID, verID, sessID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	now := time.Now().UTC()
	require.NoError(t, db.Create(&domain.Exercise{ID: exID, Slug: "deadlift", CreatedBy: "u1", CurrentVersionID: verID, CurrentNumber: 1}).Error)
	require.NoError(t, db.Create(&domain.ExerciseVersion{ID: verID, ExerciseID: exID, Number: 1, Payload: datatypes.JSON(`{"name":"Deadlift"}`), CreatedBy: "u1"}).Error)
	require.NoError(t, db.Create(&domain.Session{ID: sessID, UserID: "u1", StartedAt: now, Status: domain.StatusActive, LockStamp: 1}).Error)
	require.NoError(t, db.Omit("Session", "Version").Create(&domain.Set{
		ID: uuid.NewString(), SessionID: sessID, UserID: "u1", ExerciseID: exID, ExerciseVersionID: verID,
		SetIndex: 1, Reps: 5, WeightKg: decimal.NewFromInt(140), PerformedAt: now, Status: domain.StatusActive, LockStamp: 1,
	}).Error)

	cache := progression.NewCache(db, progression.NewSQLStore(db), time.Second)
	w := &CacheWarmer{Cache: cache, Window: "30d"}
	ctx := context.Background()

	// Non-set events are ignored.
	require.NoError(t, w.Handle(ctx, MutationEvent{EntityType: domain.EntitySession, EntityID: sessID, UserID: "u1"}))
	require.NoError(t, w.Handle(ctx, MutationEvent{EntityType: domain.EntitySet, EntityID: "x", UserID: "u1", ExerciseID: exID}))

	rep, err := cache.Get(ctx, "u1", exID, "30d")
	require.NoError(t, err)
	require.True(t, rep.Hit)
	require.Equal(t, 1, rep.Aggregate.Sets)
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	a := NewZerologAdapter(zerolog.New(&buf)).With(watermill.LogFields{"topic": "t1"})

	a.Error("publish failed", errors.New("boom"), watermill.LogFields{"attempt": 2})
	out := buf.String()
	require.Contains(t, out, `"level":"error"`)
	require.Contains(t, out, `"topic":"t1"`)
	require.Contains(t, out, `"attempt":2`)
	require.Contains(t, out, `"error":"boom"`)
	require.Contains(t, out, `"component":"watermill"`)

	buf.Reset()
	a.Info("subscribed", nil)
	require.Contains(t, buf.String(), `"level":"debug"`)
}

func TestMutationLogger(t *testing.T) {
	var buf bytes.Buffer
	m := &MutationLogger{l: zerolog.New(&buf)}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, m.Handle(context.Background(), MutationEvent{
		EntityType: domain.EntitySet, EntityID: "set-1", UserID: "u1", Kind: domain.MutationUpdate, Stamp: 3, At: at,
	}))
	out := buf.String()
	require.Contains(t, out, `"entity_id":"set-1"`)
	require.Contains(t, out, `"stamp":3`)
	require.Contains(t, out, `"message":"mutation committed"`)

	buf.Reset()
	require.NoError(t, m.Handle(context.Background(), MutationEvent{EntityType: domain.EntitySession, EntityID: "s1", Kind: domain.MutationCreate}))
	require.NotContains(t, buf.String(), `"stamp"`)
}
