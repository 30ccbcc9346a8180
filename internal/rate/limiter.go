package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var fixedWindowLua = redis.NewScript(fixedWindowScript)

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Limiter counts actions per identifier in fixed windows stored in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// CheckAndIncrement counts one request for (action, identifier). The request
// that pushes the count past limit, and every one after it inside the window,
// is denied with the time left in the window as RetryAfter.
func (l *Limiter) CheckAndIncrement(ctx context.Context, action, identifier string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: limit}, nil
	}

	res, err := fixedWindowLua.Run(ctx, l.redis, []string{l.key(action, identifier)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected counter reply", ErrRedisUnavailable)
	}

	d := Decision{
		Count: res[0],
		Limit: limit,
	}
	if d.Count <= int64(limit) {
		d.Allowed = true
		return d, nil
	}

	d.RetryAfter = time.Duration(res[1]) * time.Millisecond
	if d.RetryAfter <= 0 {
		d.RetryAfter = time.Millisecond
	}
	return d, nil
}

// Reset clears the counter for (action, identifier), ending its window early.
func (l *Limiter) Reset(ctx context.Context, action, identifier string) error {
	if err := l.redis.Del(ctx, l.key(action, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(action, identifier string) string {
	return l.prefix + ":" + action + ":" + identifier
}
