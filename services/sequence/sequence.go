package seqsvc

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/student"
)

const keyPrefix = "tesoreria:seq:"

type redisSequencer struct {
	rdb *redis.Client
}

var _ student.Sequencer = (*redisSequencer)(nil)

func NewRedisSequencer(rdb *redis.Client) *redisSequencer {
	return &redisSequencer{rdb: rdb}
}

func (s *redisSequencer) Next(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, keyPrefix+key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis INCR "+key)
	}
	return n, nil
}

type memorySequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

var _ student.Sequencer = (*memorySequencer)(nil)

func NewMemorySequencer() *memorySequencer {
	return &memorySequencer{counters: make(map[string]int64)}
}

func (s *memorySequencer) Next(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

// New returns a Redis backed sequencer, or an in-memory one when Redis is not configured
// or cannot be reached.
func New(ctx context.Context, conf *core.Config, logger core.Logger) student.Sequencer {
	if conf.Redis.Addr == "" {
		return NewMemorySequencer()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, receipt numbers kept in memory", err)
		_ = rdb.Close()
		return NewMemorySequencer()
	}
	return NewRedisSequencer(rdb)
}
