package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether one more request is allowed under the key's
// current window. Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter backed by Redis. The first
// hit in a window creates the counter with the window's TTL; every
// hit increments it.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(limit), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:{%s}", key)

	pipe := l.client.Pipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}

	return count.Val() <= l.limit, nil
}

// MemoryLimiter is an in-process fixed-window counter for tests and
// single-instance deployments without Redis.
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]*window
	limit  int
	span   time.Duration
	now    func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter(limit int, span time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		counts: make(map[string]*window),
		limit:  limit,
		span:   span,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.counts[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.span)}
		l.counts[key] = w
	}
	w.count++
	return w.count <= l.limit, nil
}

// Unlimited never rejects. Used when no rate limit is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) {
	return true, nil
}
