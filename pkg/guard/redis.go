package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript runs the bucket update atomically in Redis, so
// multiple instances share one allowance per principal.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = current unix time (seconds, fractional)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// RedisGuard shares token buckets across instances through Redis.
type RedisGuard struct {
	client *redis.Client
	limits Limits
}

// NewRedisGuard connects to Redis at addr.
func NewRedisGuard(addr, password string, db int, limits Limits) *RedisGuard {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisGuard{client: client, limits: limits}
}

func (g *RedisGuard) Allow(ctx context.Context, principal string) error {
	key := "coffer:guard:" + principal
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, g.client,
		[]string{key}, g.limits.PerSecond, g.limits.Burst, 1, now).Result()
	if err != nil {
		return fmt.Errorf("guard: redis: %w", err)
	}
	allowed, ok := res.(int64)
	if !ok {
		return fmt.Errorf("guard: unexpected script result %T", res)
	}
	if allowed != 1 {
		return fmt.Errorf("%w: %s", ErrThrottled, principal)
	}
	return nil
}

// Close releases the Redis connection.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
