package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
)

// RateLimiter is a fixed-window counter per platform shared by every
// instance talking to the same Redis. It never waits: a full window is
// reported as RateLimited straight away.
type RateLimiter struct {
	client *redis.Client
	prefix string
	rules  map[domain.Platform]config.RateLimitRule
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a distributed limiter. Platforms without a rule are unlimited.
func NewRateLimiter(client *redis.Client, prefix string, rules map[string]config.RateLimitRule, logger *slog.Logger) *RateLimiter {
	byPlatform := make(map[domain.Platform]config.RateLimitRule, len(rules))
	for name, rule := range rules {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			logger.Warn("ignoring rate limit rule for unknown platform", "platform", name)
			continue
		}
		byPlatform[p] = rule
	}
	return &RateLimiter{
		client: client,
		prefix: prefix,
		rules:  byPlatform,
		logger: logger,
		now:    time.Now,
	}
}

// windowKey returns the counter key for the window containing t
func (l *RateLimiter) windowKey(platform domain.Platform, window time.Duration, t time.Time) string {
	start := t.UnixNano() / int64(window)
	return fmt.Sprintf("%s:ratelimit:%s:%d", l.prefix, platform, start)
}

// Allow counts one call against platform's current window. If Redis cannot
// be reached the call is let through and the failure logged.
func (l *RateLimiter) Allow(ctx context.Context, platform domain.Platform) error {
	rule, ok := l.rules[platform]
	if !ok {
		return nil
	}

	key := l.windowKey(platform, rule.Window, l.now())
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rule.Window)
		return nil
	})
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing call",
			"platform", platform,
			"error", err,
		)
		return nil
	}

	if incr.Val() > int64(rule.Requests) {
		return domain.NewAdapterError(domain.ErrRateLimited, platform, "",
			fmt.Errorf("%d requests per %s exceeded", rule.Requests, rule.Window))
	}
	return nil
}
