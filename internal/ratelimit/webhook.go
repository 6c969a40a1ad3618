package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/sponsornet/internal/config"
)

const keyWebhookSource = "sponsornet:webhook:%s:%s"

// WebhookLimiter throttles callback deliveries per provider and source
// address. A nil or disabled limiter allows everything.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config, client *redis.Client) *WebhookLimiter {
	if client == nil || cfg.RateLimit.WebhookRate <= 0 || cfg.RateLimit.WebhookBurst <= 0 {
		return nil
	}
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.WebhookRate,
		burst:  cfg.RateLimit.WebhookBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WebhookLimiter) Allow(ctx context.Context, provider, source string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyWebhookSource,
		strings.ToLower(strings.TrimSpace(provider)),
		strings.TrimSpace(source),
	)
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
