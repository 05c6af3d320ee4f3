package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

var (
	// ErrRedisUnavailable wraps Redis failures surfaced under FailClosed.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// FailurePolicy selects behavior when the counter store can not be reached.
type FailurePolicy int

const (
	// FailLocal falls back to an in-process token bucket per key.
	FailLocal FailurePolicy = iota
	// FailClosed denies the request.
	FailClosed
	// FailOpen admits the request.
	FailOpen
)

// Config holds limiter tuning parameters.
type Config struct {
	Prefix    string
	Limit     int
	Window    time.Duration
	OnFailure FailurePolicy
	// MaxLocalKeys bounds the fallback bucket map; it is reset when full.
	MaxLocalKeys int
}

// Result is the outcome of one Limit call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the decision did not come from Redis.
	Degraded bool
}

var limitLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Limiter enforces a fixed-window quota per key using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time

	mu    sync.Mutex
	local map[string]*xrate.Limiter
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	if cfg.MaxLocalKeys <= 0 {
		cfg.MaxLocalKeys = 10000
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
		local:  make(map[string]*xrate.Limiter),
	}
}

// Limit counts one call for scope+key and reports whether it fits the quota.
// The returned error is non-nil only under FailClosed, together with a denied Result.
func (l *Limiter) Limit(ctx context.Context, scope, key string) (Result, error) {
	fullKey := l.key(scope, key)

	count, ttl, err := l.increment(ctx, fullKey)
	if err != nil {
		return l.degrade(fullKey, err)
	}

	remaining := l.config.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(l.config.Limit),
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}, nil
}

// Reset clears the counter for scope+key.
func (l *Limiter) Reset(ctx context.Context, scope, key string) error {
	fullKey := l.key(scope, key)
	if err := l.redis.Del(ctx, fullKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	l.mu.Lock()
	delete(l.local, fullKey)
	l.mu.Unlock()
	return nil
}

func (l *Limiter) key(scope, key string) string {
	var b strings.Builder
	b.Grow(len(l.config.Prefix) + len(scope) + len(key) + 2)
	b.WriteString(l.config.Prefix)
	b.WriteByte(':')
	b.WriteString(scope)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

func (l *Limiter) increment(ctx context.Context, key string) (int64, time.Duration, error) {
	res, err := limitLua.Run(ctx, l.redis, []string{key}, l.config.Window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return 0, 0, errors.New("invalid limiter script response")
	}
	count, ok := parts[0].(int64)
	if !ok {
		return 0, 0, errors.New("invalid limiter count")
	}
	ttl, ok := parts[1].(int64)
	if !ok {
		return 0, 0, errors.New("invalid limiter ttl")
	}

	return count, time.Duration(ttl) * time.Millisecond, nil
}

func (l *Limiter) degrade(key string, cause error) (Result, error) {
	resetAt := l.now().Add(l.config.Window)

	switch l.config.OnFailure {
	case FailOpen:
		return Result{Allowed: true, ResetAt: resetAt, Degraded: true}, nil
	case FailClosed:
		return Result{ResetAt: resetAt, Degraded: true}, fmt.Errorf("%w: %v", ErrRedisUnavailable, cause)
	}

	bucket := l.localBucket(key)
	allowed := bucket.AllowN(l.now(), 1)
	remaining := int(bucket.TokensAt(l.now()))
	if remaining < 0 {
		remaining = 0
	}

	return Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt, Degraded: true}, nil
}

func (l *Limiter) localBucket(key string) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.local[key]; ok {
		return b
	}
	if len(l.local) >= l.config.MaxLocalKeys {
		l.local = make(map[string]*xrate.Limiter)
	}

	limit := l.config.Limit
	if limit <= 0 {
		limit = 1
	}
	b := xrate.NewLimiter(xrate.Every(l.config.Window/time.Duration(limit)), limit)
	l.local[key] = b
	return b
}
