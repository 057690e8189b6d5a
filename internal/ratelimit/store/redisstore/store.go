// Package redisstore implements the CounterStore against Redis, giving all
// process instances one shared view of rate, failure, and circuit state.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments a key and sets its TTL only when the increment
// created it, so the window anchor is the first request.
var incrScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
if v == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return v
`)

// casScript swaps the value at a key only when the current value matches the
// expected one. An empty expected value matches only an absent key.
var casScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then current = '' end
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Store is a Redis-backed CounterStore.
type Store struct {
	client redis.Cmdable
}

// New wraps an existing Redis client.
func New(client redis.Cmdable) *Store {
	return &Store{client: client}
}

func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	v, err := incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) WindowCount(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error) {
	cutoff := now.Add(-window).UnixNano()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("window count %s: %w", key, err)
	}
	return card.Val(), nil
}

func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return raw, nil
}

func (s *Store) CompareAndSet(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error) {
	swapped, err := casScript.Run(ctx, s.client, []string{key}, expected, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("cas %s: %w", key, err)
	}
	return swapped == 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
