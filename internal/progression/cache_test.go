package progression

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
	"github.com/tbourn/go-setlogs-backend/internal/repo/repotest"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	exercise string
	version  string
	session  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := repotest.NewDB(t)
	f := fixture{db: db, exercise: uuid.NewString(), version: uuid.NewString(), session: uuid.NewString()}
	require.NoError(t, db.Create(&domain.Exercise{ID: f.exercise, Slug: "squat", CreatedBy: "u1", CurrentVersionID: f.version, CurrentNumber: 1}).Error)
	require.NoError(t, db.Create(&domain.ExerciseVersion{ID: f.version, ExerciseID: f.exercise, Number: 1, Payload: datatypes.JSON(`{"name":"Squat"}`), CreatedBy: "u1"}).Error)
	require.NoError(t, db.Create(&domain.Session{ID: f.session, UserID: "u1", StartedAt: fixedNow.Add(-time.Hour), Status: domain.StatusActive, LockStamp: 1}).Error)
	return f
}

// logSet inserts a set and bumps the generation in one transaction, the way
// the set service does.
func (f fixture) logSet(t *testing.T, c *Cache, index, reps int, weight string) {
	t.Helper()
	err := f.db.Transaction(func(tx *gorm.DB) error {
		s := &domain.Set{
			ID: uuid.NewString(), SessionID: f.session, UserID: "u1",
			ExerciseID: f.exercise, ExerciseVersionID: f.version,
			SetIndex: index, Reps: reps, WeightKg: decimal.RequireFromString(weight),
			PerformedAt: fixedNow.Add(-30 * time.Minute), Status: domain.StatusActive, LockStamp: 1,
		}
		if err := repo.CreateSet(context.Background(), tx, s); err != nil {
			return err
		}
		_, err := c.Bump(context.Background(), tx, "u1", f.exercise)
		return err
	})
	require.NoError(t, err)
}

func newTestCache(db *gorm.DB, store Store) *Cache {
	c := NewCache(db, store, time.Second)
	c.Now = func() time.Time { return fixedNow }
	return c
}

// countingStore wraps a Store and counts writes, i.e. recomputations.
type countingStore struct {
	Store
	puts atomic.Int64
}

func (s *countingStore) Put(ctx context.Context, u, e, w string, c Cached) error {
	s.puts.Add(1)
	return s.Store.Put(ctx, u, e, w, c)
}

type brokenStore struct{}

func (brokenStore) Name() string { return "broken" }
func (brokenStore) Get(context.Context, string, string, string) (*Cached, error) {
	return nil, errors.New("cache down")
}
func (brokenStore) Put(context.Context, string, string, string, Cached) error {
	return errors.New("cache down")
}

func TestGet_SecondReadIsHitAndIdentical(t *testing.T) {
	f := newFixture(t)
	store := &countingStore{Store: NewSQLStore(f.db)}
	c := newTestCache(f.db, store)
	f.logSet(t, c, 1, 5, "100")
	ctx := context.Background()

	first, err := c.Get(ctx, "u1", f.exercise, "30d")
	require.NoError(t, err)
	require.False(t, first.Hit)

	second, err := c.Get(ctx, "u1", f.exercise, "30d")
	require.NoError(t, err)
	require.True(t, second.Hit)
	require.Equal(t, first.Aggregate, second.Aggregate)
	require.EqualValues(t, 1, store.puts.Load())
}

func TestGet_WriteInvalidatesReport(t *testing.T) {
	f := newFixture(t)
	c := newTestCache(f.db, NewSQLStore(f.db))
	ctx := context.Background()
	f.logSet(t, c, 1, 5, "100")

	before, err := c.Get(ctx, "u1", f.exercise, "30d")
	require.NoError(t, err)
	_, err = c.Get(ctx, "u1", f.exercise, "30d")
	require.NoError(t, err)

	f.logSet(t, c, 2, 3, "110")

	after, err := c.Get(ctx, "u1", f.exercise, "30d")
	require.NoError(t, err)
	require.False(t, after.Hit)
	require.Greater(t, after.Aggregate.Generation, before.Aggregate.Generation)
	require.Equal(t, 2, after.Aggregate.Sets)
	require.Equal(t, "110.00", after.Aggregate.MaxWeightKg)
	require.NotEqual(t, before.Aggregate, after.Aggregate)
}

func TestGet_StaleEntryIsNeverServed(t *testing.T) {
	f := newFixture(t)
	store := NewSQLStore(f.db)
	c := newTestCache(f.db, store)
	ctx := context.Background()
	f.logSet(t, c, 1, 5, "100")

	w, err := ParseWindow("30d", fixedNow)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "u1", f.exercise, w.Key(), Cached{Generation: 0, Payload: []byte(`{"sets":999}`)}))

	rep, err := c.Get(ctx, "u1", f.exercise, "30d")
	require.NoError(t, err)
	require.False(t, rep.Hit)
	require.Equal(t, 1, rep.Aggregate.Sets)
}

func TestGet_BrokenStoreDegradesToRecompute(t *testing.T) {
	f := newFixture(t)
	c := newTestCache(f.db, brokenStore{})
	f.logSet(t, c, 1, 5, "100")

	for i := 0; i < 2; i++ {
		rep, err := c.Get(context.Background(), "u1", f.exercise, "30d")
		require.NoError(t, err)
		require.False(t, rep.Hit)
		require.Equal(t, 1, rep.Aggregate.Sets)
	}
}

func TestGet_NoStoreAlwaysRecomputes(t *testing.T) {
	f := newFixture(t)
	c := newTestCache(f.db, nil)
	f.logSet(t, c, 1, 5, "100")

	rep, err := c.Get(context.Background(), "u1", f.exercise, "all")
	require.NoError(t, err)
	require.False(t, rep.Hit)
	require.Equal(t, "500.00", rep.Aggregate.TotalVolumeKg)
}

// gatedStore holds every reader at Get until n have arrived and slows the
// write so that all of them miss and join the same flight.
type gatedStore struct {
	countingStore
	n       int64
	arrived atomic.Int64
	release chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, u, e, w string) (*Cached, error) {
	if s.arrived.Add(1) == s.n {
		close(s.release)
	}
	select {
	case <-s.release:
	case <-time.After(2 * time.Second):
	}
	return s.countingStore.Get(ctx, u, e, w)
}

func (s *gatedStore) Put(ctx context.Context, u, e, w string, c Cached) error {
	time.Sleep(200 * time.Millisecond)
	return s.countingStore.Put(ctx, u, e, w, c)
}

func TestGet_ConcurrentMissesRecomputeOnce(t *testing.T) {
	f := newFixture(t)
	const readers = 8
	store := &gatedStore{countingStore: countingStore{Store: NewSQLStore(f.db)}, n: readers, release: make(chan struct{})}
	c := newTestCache(f.db, nil)
	f.logSet(t, c, 1, 5, "100")
	c.Store = store

	reports := make([]Report, readers)
	errs := make([]error, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = c.Get(context.Background(), "u1", f.exercise, "30d")
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		require.False(t, reports[i].Hit)
		require.Equal(t, reports[0].Aggregate, reports[i].Aggregate)
	}
	require.EqualValues(t, 1, store.puts.Load())
}

func TestGet_InvalidWindow(t *testing.T) {
	f := newFixture(t)
	_, err := newTestCache(f.db, nil).Get(context.Background(), "u1", f.exercise, "3y")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSQLStore_KeepsNewerGeneration(t *testing.T) {
	f := newFixture(t)
	store := NewSQLStore(f.db)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "u1", f.exercise, "30d@x", Cached{Generation: 5, Payload: []byte("new")}))
	require.NoError(t, store.Put(ctx, "u1", f.exercise, "30d@x", Cached{Generation: 3, Payload: []byte("old")}))

	got, err := store.Get(ctx, "u1", f.exercise, "30d@x")
	require.NoError(t, err)
	require.EqualValues(t, 5, got.Generation)
	require.Equal(t, "new", string(got.Payload))

	miss, err := store.Get(ctx, "u1", f.exercise, "7d@x")
	require.NoError(t, err)
	require.Nil(t, miss)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SETLOGS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SETLOGS_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, time.Minute)
	store.Prefix = "setlogs-test:" + uuid.NewString()
	ctx := context.Background()

	miss, err := store.Get(ctx, "u1", "ex", "30d@x")
	require.NoError(t, err)
	require.Nil(t, miss)

	require.NoError(t, store.Put(ctx, "u1", "ex", "30d@x", Cached{Generation: 4, Payload: []byte("four")}))
	require.NoError(t, store.Put(ctx, "u1", "ex", "30d@x", Cached{Generation: 2, Payload: []byte("two")}))
	got, err := store.Get(ctx, "u1", "ex", "30d@x")
	require.NoError(t, err)
	require.EqualValues(t, 4, got.Generation)
	require.Equal(t, "four", string(got.Payload))
}
