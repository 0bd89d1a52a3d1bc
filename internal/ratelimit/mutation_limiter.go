package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/glowhub/portal/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyMutation = "portal:mutation:%s:%s"

// MutationLimiter throttles cart and checkout writes per customer. It
// is disabled when no redis address is configured, in which case every
// request is allowed.
type MutationLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewMutationLimiter(cfg config.Config) *MutationLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &MutationLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    5,
		burst:   20,
	}
}

func (l *MutationLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow checks the per-customer bucket for the given endpoint class.
func (l *MutationLimiter) Allow(ctx context.Context, endpoint, customerID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyMutation, endpoint, strings.TrimSpace(customerID)), l.rate, l.burst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}
