package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitInfo describes the caller's window after a request is counted.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// RateLimiter implements sliding window rate limiting using Redis sorted
// sets, one set per key.
type RateLimiter struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRateLimiter(client redis.Cmdable) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow counts one request against key and reports whether it fits in
// limit requests per window. Rejected requests are counted too, so a
// client that keeps hammering stays limited.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, RateLimitInfo, error) {
	now := rl.now()
	windowStart := now.Add(-window).UnixNano()
	redisKey := fmt.Sprintf("rate_limit:%s", key)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return true, RateLimitInfo{Limit: limit, Remaining: limit}, fmt.Errorf("failed to check rate limit: %w", err)
	}

	count := int(countCmd.Val())
	remaining := limit - count - 1
	if remaining < 0 {
		remaining = 0
	}

	return count < limit, RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(window).Unix(),
	}, nil
}
