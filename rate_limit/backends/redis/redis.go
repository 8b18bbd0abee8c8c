package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/FrenchMajesty/turbo-retry/rate_limit"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces the window counters
const DefaultPrefix = "turbo_retry:ratelimit"

// Counters is the subset of the Redis API the backend uses
type Counters interface {
	IncrBy(ctx context.Context, key string, value int64) *goredis.IntCmd
	DecrBy(ctx context.Context, key string, decrement int64) *goredis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *goredis.BoolCmd
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
}

// Redis shares budgets between processes through per-minute counters. Each
// window has its own keys, which expire shortly after the window ends.
type Redis struct {
	client Counters
	prefix string
	now    func() time.Time

	mu     sync.RWMutex
	limits map[string]rate_limit.Limit
}

var _ rate_limit.Backend = (*Redis)(nil)

// NewBackend creates a backend on client. prefix defaults to DefaultPrefix.
func NewBackend(client Counters, prefix string, limits map[string]rate_limit.Limit) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	r := &Redis{
		client: client,
		prefix: prefix,
		now:    time.Now,
		limits: make(map[string]rate_limit.Limit, len(limits)),
	}
	for key, limit := range limits {
		r.limits[key] = limit
	}
	return r
}

// BudgetAvailable reads the counters of the current window
func (r *Redis) BudgetAvailable(ctx context.Context, key string) (int, int, error) {
	tokensKey, requestsKey := r.keys(key, r.now())
	values, err := r.client.MGet(ctx, tokensKey, requestsKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("mget failed: %w", err)
	}

	var used [2]int
	for i, value := range values {
		if i >= len(used) || value == nil {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return 0, 0, fmt.Errorf("unexpected counter value %v", value)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("parse counter: %w", err)
		}
		used[i] = n
	}

	limit := r.Limit(key)
	return rate_limit.Remaining(limit.TPM, used[0]), rate_limit.Remaining(limit.RPM, used[1]), nil
}

// RecordConsumption increments the counters of the current window
func (r *Redis) RecordConsumption(ctx context.Context, key string, tokens int, requests int) error {
	now := r.now()
	tokensKey, requestsKey := r.keys(key, now)
	expireAt := now.Truncate(time.Minute).Add(2 * time.Minute)

	for _, c := range []struct {
		key   string
		value int
	}{{tokensKey, tokens}, {requestsKey, requests}} {
		if c.value == 0 {
			continue
		}
		if err := r.client.IncrBy(ctx, c.key, int64(c.value)).Err(); err != nil {
			return fmt.Errorf("incrby failed: %w", err)
		}
		if err := r.client.ExpireAt(ctx, c.key, expireAt).Err(); err != nil {
			return fmt.Errorf("expireat failed: %w", err)
		}
	}
	return nil
}

// TryConsume increments both window counters first and rolls them back when
// the new totals exceed the limit. Each INCRBY is atomic in Redis, so of two
// processes racing for the last slot at most one is admitted. A racing caller
// may briefly see the other's rolled-back increment and wait a window early.
func (r *Redis) TryConsume(ctx context.Context, key string, tokens int) (bool, int, int, error) {
	now := r.now()
	tokensKey, requestsKey := r.keys(key, now)
	expireAt := now.Truncate(time.Minute).Add(2 * time.Minute)
	limit := r.Limit(key)

	requests, err := r.incr(ctx, requestsKey, 1, expireAt)
	if err != nil {
		return false, 0, 0, err
	}
	tokensUsed, err := r.incr(ctx, tokensKey, tokens, expireAt)
	if err != nil {
		if rbErr := r.rollback(ctx, requestsKey, 1); rbErr != nil {
			err = fmt.Errorf("%w (%w)", err, rbErr)
		}
		return false, 0, 0, err
	}

	requestsAvailable := rate_limit.Remaining(limit.RPM, int(requests)-1)
	tokensAvailable := rate_limit.Remaining(limit.TPM, int(tokensUsed)-tokens)
	if requestsAvailable >= 1 && tokensAvailable >= tokens {
		return true, tokensAvailable, requestsAvailable, nil
	}

	if err := r.rollback(ctx, requestsKey, 1); err != nil {
		return false, tokensAvailable, requestsAvailable, err
	}
	if err := r.rollback(ctx, tokensKey, tokens); err != nil {
		return false, tokensAvailable, requestsAvailable, err
	}
	return false, tokensAvailable, requestsAvailable, nil
}

func (r *Redis) incr(ctx context.Context, key string, value int, expireAt time.Time) (int64, error) {
	n, err := r.client.IncrBy(ctx, key, int64(value)).Result()
	if err != nil {
		return 0, fmt.Errorf("incrby failed: %w", err)
	}
	if err := r.client.ExpireAt(ctx, key, expireAt).Err(); err != nil {
		return 0, fmt.Errorf("expireat failed: %w", err)
	}
	return n, nil
}

func (r *Redis) rollback(ctx context.Context, key string, value int) error {
	if value == 0 {
		return nil
	}
	if err := r.client.DecrBy(ctx, key, int64(value)).Err(); err != nil {
		return fmt.Errorf("decrby failed: %w", err)
	}
	return nil
}

// TimeUntilReset returns the duration until the next minute boundary
func (r *Redis) TimeUntilReset() time.Duration {
	return rate_limit.UntilNextWindow(r.now())
}

// Limit returns the budget for key
func (r *Redis) Limit(key string) rate_limit.Limit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limits[key]
}

// SetLimit overrides the budget for key
func (r *Redis) SetLimit(key string, limit rate_limit.Limit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[key] = limit
}

// Close is a no-op; the client belongs to the caller
func (r *Redis) Close() error {
	return nil
}

func (r *Redis) keys(key string, now time.Time) (string, string) {
	window := now.Truncate(time.Minute).Unix()
	base := fmt.Sprintf("%s:%s:%d", r.prefix, key, window)
	return base + ":tokens", base + ":requests"
}
