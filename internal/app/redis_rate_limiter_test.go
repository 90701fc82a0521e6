package app

import (
	"context"
	"testing"
	"time"
)

func TestParseRateLimitResult(t *testing.T) {
	tests := []struct {
		name      string
		raw       interface{}
		wantCount int
		wantRetry int
		wantErr   bool
	}{
		{"first hit", []interface{}{int64(1), int64(60000)}, 1, 60, false},
		{"partial second rounds up", []interface{}{int64(7), int64(1500)}, 7, 2, false},
		{"missing ttl falls back to window", []interface{}{int64(2), int64(-1)}, 2, 60, false},
		{"sub-second ttl", []interface{}{int64(3), int64(10)}, 3, 1, false},
		{"wrong shape", "OK", 0, 0, true},
		{"wrong count type", []interface{}{"1", int64(10)}, 0, 0, true},
		{"wrong ttl type", []interface{}{int64(4), "10"}, 4, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			count, retry, err := parseRateLimitResult(tc.raw, 60000)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if count != tc.wantCount || retry != tc.wantRetry {
				t.Fatalf("got (%d, %d), want (%d, %d)", count, retry, tc.wantCount, tc.wantRetry)
			}
		})
	}
}

func TestRedisRateLimiter_NoClientAllows(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "")
	if limiter.prefix != "kontent:rate_limit" {
		t.Fatalf("unexpected default prefix %q", limiter.prefix)
	}
	count, retry, err := limiter.ConsumeRateLimit(context.Background(), "message_send", "user", 5, time.Minute)
	if err != nil || count != 0 || retry != 0 {
		t.Fatalf("expected a no-op without a client, got (%d, %d, %v)", count, retry, err)
	}

	if trimmed := NewRedisRateLimiter(nil, " custom:prefix: "); trimmed.prefix != "custom:prefix" {
		t.Fatalf("unexpected trimmed prefix %q", trimmed.prefix)
	}
}
