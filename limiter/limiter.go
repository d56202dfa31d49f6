package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StrategyFixedWindow = "fixed_window"
	StrategyTokenBucket = "token_bucket"

	keyPrefix = "ratelimit:"
)

// Strategy decides whether one more hit on key fits in limit per window.
type Strategy interface {
	Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error)
}

// Manager binds a strategy to a client and a fixed budget.
type Manager struct {
	rdb      *redis.Client
	strategy Strategy
	limit    int
	window   time.Duration
}

func NewManager(rdb *redis.Client, strategy Strategy, limit int, window time.Duration) *Manager {
	return &Manager{
		rdb:      rdb,
		strategy: strategy,
		limit:    limit,
		window:   window,
	}
}

// NewStrategy maps a config name to a strategy. An empty name means fixed
// window.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyFixedWindow:
		return &FixedWindowStrategy{}, nil
	case StrategyTokenBucket:
		return &TokenBucketStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown rate limit strategy %q", name)
}

func (m *Manager) Allow(ctx context.Context, key string) (bool, error) {
	return m.strategy.Allow(ctx, m.rdb, keyPrefix+key, m.limit, m.window)
}

// INCR then EXPIRE on the first hit, atomically.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

type FixedWindowStrategy struct{}

func (s *FixedWindowStrategy) Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	result, err := fixedWindowScript.Run(ctx, rdb, []string{key}, limit, seconds).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// ARGV: capacity, refill rate in tokens per second, now in seconds, ttl.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local info = redis.call("HMGET", KEYS[1], "tokens", "last_time")
local tokens = tonumber(info[1])
local last_time = tonumber(info[2])
if tokens == nil then
	tokens = capacity
	last_time = now
end

local delta = math.max(0, now - last_time)
tokens = math.min(capacity, tokens + delta * rate)

if tokens < 1 then
	return 0
end
tokens = tokens - 1
redis.call("HSET", KEYS[1], "tokens", tokens, "last_time", now)
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[4]))
return 1
`)

type TokenBucketStrategy struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *TokenBucketStrategy) Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	rate := float64(limit) / window.Seconds()
	if rate <= 0 {
		rate = 1
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ttl := int(window.Seconds()) * 2
	if ttl < 60 {
		ttl = 60
	}

	result, err := tokenBucketScript.Run(ctx, rdb, []string{key}, limit, rate, now().Unix(), ttl).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
