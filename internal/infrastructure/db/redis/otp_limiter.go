package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptWindow = 10 * time.Minute

// OTPAttemptLimiter counts failed one-time-code checks per account in Redis,
// throttling brute-force guessing. The counter expires with the code window.
// Key format: otp_attempts:<email>
type OTPAttemptLimiter struct {
	client      *redis.Client
	maxAttempts int
}

// NewOTPAttemptLimiter creates a limiter allowing maxAttempts failures per
// window.
func NewOTPAttemptLimiter(client *redis.Client, maxAttempts int) *OTPAttemptLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &OTPAttemptLimiter{client: client, maxAttempts: maxAttempts}
}

// Allow reports whether another attempt is permitted for key.
func (l *OTPAttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Get(ctx, l.key(key)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("attempt count: %w", err)
	}
	return n < l.maxAttempts, nil
}

// RecordFailure counts one failed attempt against key. The first failure
// starts the window.
func (l *OTPAttemptLimiter) RecordFailure(ctx context.Context, key string) error {
	k := l.key(key)
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, attemptWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Reset clears the counter for key after a successful attempt.
func (l *OTPAttemptLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}

func (l *OTPAttemptLimiter) key(email string) string {
	return "otp_attempts:" + email
}
