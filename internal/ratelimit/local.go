// Package ratelimit provides the in-process per-platform request guard.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
)

// Local keeps one token bucket per platform. Buckets are built once and
// never mutated afterwards, so no lock is needed around the map.
type Local struct {
	limiters map[domain.Platform]*rate.Limiter
	rules    map[domain.Platform]config.RateLimitRule
}

// NewLocal builds a bucket per configured platform. A rule of N requests per
// window refills evenly and allows a burst of N.
func NewLocal(rules map[string]config.RateLimitRule, logger *slog.Logger) *Local {
	l := &Local{
		limiters: make(map[domain.Platform]*rate.Limiter, len(rules)),
		rules:    make(map[domain.Platform]config.RateLimitRule, len(rules)),
	}
	for name, rule := range rules {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			logger.Warn("ignoring rate limit rule for unknown platform", "platform", name)
			continue
		}
		if rule.Requests <= 0 || rule.Window <= 0 {
			continue
		}
		every := rule.Window / time.Duration(rule.Requests)
		l.limiters[p] = rate.NewLimiter(rate.Every(every), rule.Requests)
		l.rules[p] = rule
	}
	return l
}

// Allow takes a token for platform or fails with RateLimited immediately
func (l *Local) Allow(_ context.Context, platform domain.Platform) error {
	lim, ok := l.limiters[platform]
	if !ok {
		return nil
	}
	if !lim.Allow() {
		rule := l.rules[platform]
		return domain.NewAdapterError(domain.ErrRateLimited, platform, "",
			fmt.Errorf("%d requests per %s exceeded", rule.Requests, rule.Window))
	}
	return nil
}
