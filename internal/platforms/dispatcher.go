package platforms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
	"github.com/profile-scores/internal/metrics"
)

// Dispatcher routes a fetch to the adapter that owns the platform
type Dispatcher struct {
	leetcode   Adapter
	codeforces Adapter
	codechef   Adapter
	hackerrank Adapter
	metrics    *metrics.Manager
	logger     *slog.Logger
}

// NewDispatcher wires the four adapters from configuration
func NewDispatcher(cfg config.PlatformsConfig, m *metrics.Manager, logger *slog.Logger) *Dispatcher {
	client := NewClient(cfg)
	return NewDispatcherWithAdapters(
		NewLeetCode(client, cfg.LeetCodeURL),
		NewCodeforces(client, cfg.CodeforcesURL),
		NewCodeChef(client, cfg.CodeChefURL),
		NewHackerRank(client, cfg.HackerRankURL, logger),
		m,
		logger,
	)
}

// NewDispatcherWithAdapters builds a dispatcher over explicit adapters
func NewDispatcherWithAdapters(leetcode, codeforces, codechef, hackerrank Adapter, m *metrics.Manager, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		leetcode:   leetcode,
		codeforces: codeforces,
		codechef:   codechef,
		hackerrank: hackerrank,
		metrics:    m,
		logger:     logger,
	}
}

// Dispatch fetches username's snapshot from platform. Unknown platforms and
// blank usernames are rejected before any network I/O. No retries are made.
func (d *Dispatcher) Dispatch(ctx context.Context, platform domain.Platform, username string) (*domain.ProfileSnapshot, error) {
	adapter, err := d.adapterFor(platform)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("dispatching %s: %w", platform, domain.ErrInvalidUsername)
	}

	start := time.Now()
	snap, err := adapter.Fetch(ctx, username)
	elapsed := time.Since(start)

	if err != nil {
		kind := domain.KindOf(err)
		d.metrics.ObserveFetch(string(platform), kind, elapsed)
		d.logFailure(platform, username, err)
		return nil, err
	}

	d.metrics.ObserveFetch(string(platform), "success", elapsed)
	d.logger.Debug("platform profile fetched",
		"platform", platform,
		"username", username,
		"score", snap.Score,
		"duration", elapsed,
	)
	return snap, nil
}

func (d *Dispatcher) adapterFor(platform domain.Platform) (Adapter, error) {
	var a Adapter
	switch platform {
	case domain.PlatformLeetCode:
		a = d.leetcode
	case domain.PlatformCodeforces:
		a = d.codeforces
	case domain.PlatformCodeChef:
		a = d.codechef
	case domain.PlatformHackerRank:
		a = d.hackerrank
	}
	if a == nil {
		return nil, domain.NewAdapterError(domain.ErrUnsupported, platform, "", nil)
	}
	if a.Platform() != platform {
		return nil, domain.NewAdapterError(domain.ErrUnsupported, platform, "",
			fmt.Errorf("adapter owns %s", a.Platform()))
	}
	return a, nil
}

func (d *Dispatcher) logFailure(platform domain.Platform, username string, err error) {
	attrs := []any{"platform", platform, "username", username, "error", err}
	switch {
	case errors.Is(err, domain.ErrParseFailure):
		d.logger.Error("platform adapter needs maintenance", attrs...)
	case errors.Is(err, domain.ErrNotFound):
		d.logger.Info("platform profile not found", attrs...)
	default:
		d.logger.Warn("platform fetch failed", attrs...)
	}
}
