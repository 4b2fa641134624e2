package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/veribill/veribill/internal/config"
)

const keyVerifyClient = "verify:client:%s"

// VerifyLimiter throttles the public verification endpoint per client
// address. The endpoint is unauthenticated.
type VerifyLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

// NewVerifyLimiter builds the limiter from config. No Redis address means
// rate limiting is off, which is the local-development posture.
func NewVerifyLimiter(cfg config.Config) (*VerifyLimiter, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &VerifyLimiter{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	perMinute := cfg.VerifyRateLimit
	if perMinute <= 0 {
		perMinute = 60
	}

	return &VerifyLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    float64(perMinute) / 60.0,
		burst:   perMinute,
	}, nil
}

func (l *VerifyLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow reports whether clientAddr may perform another lookup.
func (l *VerifyLimiter) Allow(ctx context.Context, clientAddr string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyVerifyClient, strings.TrimSpace(clientAddr)), l.rate, l.burst)
}

// TryLock exposes the cross-instance mutex for startup jobs that must run
// exactly once per deployment, like database seeding.
func (l *VerifyLimiter) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, key, ttl)
}

// Unlock releases a lock taken with TryLock.
func (l *VerifyLimiter) Unlock(ctx context.Context, key, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, key, token)
}
