package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter counts hits per user in fixed Redis windows so every
// replica of the service shares one budget.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimiter returns a limiter keyed under prefix. A nil client makes
// every call a no-op.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "kontent:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// ConsumeRateLimit counts one hit for subject in scope and returns the count in
// the current window along with the seconds until the window resets.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key, ok := r.key(scope, subject)
	if !ok {
		return 0, 0, nil
	}

	// PEXPIRE needs at least a second to be meaningful for a per-minute budget.
	windowMs := max(window.Milliseconds(), 1000)
	raw, err := fixedWindowRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return parseRateLimitResult(raw, windowMs)
}

// key builds <prefix>:<scope>:<subject>, e.g. kontent:rate_limit:message_send:<user uuid>.
func (r *RedisRateLimiter) key(scope, subject string) (string, bool) {
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return "", false
	}
	return r.prefix + ":" + scope + ":" + subject, true
}

// parseRateLimitResult decodes the {count, ttl_ms} pair the script returns.
func parseRateLimitResult(raw interface{}, windowMs int64) (int, int, error) {
	pair, ok := raw.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %T, want a two-element array", raw)
	}
	count, ok := pair[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limit count has type %T", pair[0])
	}
	ttlMs, ok := pair[1].(int64)
	if !ok {
		return int(count), 0, fmt.Errorf("rate limit ttl has type %T", pair[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	retryAfter := max(int(math.Ceil(float64(ttlMs)/1000)), 1)
	return int(count), retryAfter, nil
}
