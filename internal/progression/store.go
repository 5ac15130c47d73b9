package progression

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// Cached is a stored report together with the generation it was computed at.
type Cached struct {
	Generation int64
	Payload    []byte
}

// Store is a disposable report cache. Get returns (nil, nil) on a miss. Put
// must not replace an entry of a newer generation.
type Store interface {
	Name() string
	Get(ctx context.Context, userID, exerciseID, window string) (*Cached, error)
	Put(ctx context.Context, userID, exerciseID, window string, c Cached) error
}

// SQLStore keeps reports in the report_cache table next to the data.
type SQLStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewSQLStore returns a SQLStore over db.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) Name() string { return "sql" }

func (s *SQLStore) Get(ctx context.Context, userID, exerciseID, window string) (*Cached, error) {
	e, err := repo.GetReportCache(ctx, s.DB, userID, exerciseID, window)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Cached{Generation: e.Generation, Payload: e.Payload}, nil
}

func (s *SQLStore) Put(ctx context.Context, userID, exerciseID, window string, c Cached) error {
	return repo.PutReportCache(ctx, s.DB, &domain.ReportCacheEntry{
		UserID:     userID,
		ExerciseID: exerciseID,
		Window:     window,
		Generation: c.Generation,
		Payload:    c.Payload,
		ComputedAt: s.Now(),
	})
}

// RedisStore keeps reports in Redis hashes with a TTL.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// NewRedisStore returns a RedisStore using client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, Prefix: "setlogs:progression", TTL: ttl}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) key(userID, exerciseID, window string) string {
	return s.Prefix + ":" + userID + ":" + exerciseID + ":" + window
}

func (s *RedisStore) Get(ctx context.Context, userID, exerciseID, window string) (*Cached, error) {
	vals, err := s.Client.HMGet(ctx, s.key(userID, exerciseID, window), "gen", "payload").Result()
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, nil
	}
	genStr, _ := vals[0].(string)
	payload, _ := vals[1].(string)
	gen, err := strconv.ParseInt(genStr, 10, 64)
	if err != nil {
		return nil, nil
	}
	return &Cached{Generation: gen, Payload: []byte(payload)}, nil
}

// putScript writes the hash only when the stored generation is absent or not
// newer than ARGV[1].
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'gen')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'gen', ARGV[1], 'payload', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

func (s *RedisStore) Put(ctx context.Context, userID, exerciseID, window string, c Cached) error {
	return putScript.Run(ctx, s.Client,
		[]string{s.key(userID, exerciseID, window)},
		c.Generation, string(c.Payload), s.TTL.Milliseconds(),
	).Err()
}
