package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua keeps INCR and the expiry set atomic, and returns the live TTL so the
// caller can report an accurate reset time.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// Redis is a fixed-window limiter shared across instances. Eventual
// convergence is fine for an abuse heuristic.
type Redis struct {
	rdb    *redis.Client
	policy Policy
	prefix string
}

func NewRedis(rdb *redis.Client, policy Policy, prefix string) *Redis {
	if prefix == "" {
		prefix = "rl"
	}
	return &Redis{rdb: rdb, policy: policy, prefix: prefix}
}

func (r *Redis) Allow(ctx context.Context, key string) (Result, error) {
	res, err := fixedWindowScript.Run(ctx, r.rdb, []string{r.prefix + ":" + key}, r.policy.Window.Milliseconds()).Result()
	if err != nil {
		return Result{}, err
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return Result{}, fmt.Errorf("unexpected redis script result %T", res)
	}
	count, err := toInt64(values[0])
	if err != nil {
		return Result{}, err
	}
	ttlMs, err := toInt64(values[1])
	if err != nil {
		return Result{}, err
	}

	resetAt := time.Now().Add(time.Duration(ttlMs) * time.Millisecond)
	remaining := r.policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(r.policy.Limit),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		// Lua sometimes returns strings depending on Redis config/driver conversions.
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
