package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config controls the per-IP window and the per-email cooldown
type Config struct {
	Enabled       bool
	IPLimit       int
	IPWindow      time.Duration
	EmailCooldown time.Duration
}

// Limiter implements fixed-window rate limiting backed by Redis so limits
// hold across every API instance
type Limiter struct {
	client redis.UniversalClient
	cfg    Config
}

func NewLimiter(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{client: client, cfg: cfg}
}

func ipKey(ip, purpose string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", purpose, ip)
}

func emailKey(email string) string {
	return fmt.Sprintf("ratelimit:email:%s", strings.ToLower(email))
}

// CheckIPRateLimitWithPurpose reports whether ip has used up its window for purpose
func (l *Limiter) CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error) {
	if !l.cfg.Enabled {
		return false, nil
	}

	count, err := l.client.Get(ctx, ipKey(ip, purpose)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	return count >= l.cfg.IPLimit, nil
}

// RecordIPRequestWithPurpose counts a request. The window starts with the first request.
func (l *Limiter) RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error {
	if !l.cfg.Enabled {
		return nil
	}

	key := ipKey(ip, purpose)

	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.cfg.IPWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// CheckEmailCooldown reports whether an email was sent to this address recently
func (l *Limiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	if !l.cfg.Enabled {
		return false, nil
	}

	n, err := l.client.Exists(ctx, emailKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email cooldown: %w", err)
	}
	return n > 0, nil
}

// SetEmailCooldown starts the cooldown for email
func (l *Limiter) SetEmailCooldown(ctx context.Context, email string) error {
	if !l.cfg.Enabled {
		return nil
	}

	if err := l.client.Set(ctx, emailKey(email), 1, l.cfg.EmailCooldown).Err(); err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return nil
}
