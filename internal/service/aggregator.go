package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
	"github.com/profile-scores/internal/metrics"
)

// Aggregator keeps each user's total equal to the sum of their record
// scores. Totals are always recomputed from the records, never patched.
type Aggregator struct {
	store       ProfileStore
	cache       ScoreCache
	metrics     *metrics.Manager
	concurrency int
	userTimeout time.Duration
	logger      *slog.Logger
}

// NewAggregator creates an aggregator. cache may be nil when Redis is disabled.
func NewAggregator(store ProfileStore, cache ScoreCache, m *metrics.Manager, cfg config.SyncConfig, logger *slog.Logger) *Aggregator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Aggregator{
		store:       store,
		cache:       cache,
		metrics:     m,
		concurrency: concurrency,
		userTimeout: cfg.UserTimeout,
		logger:      logger,
	}
}

// RecomputeUserScore sums every record of userID, whatever its status, and
// stores the result as the user's total
func (a *Aggregator) RecomputeUserScore(ctx context.Context, userID string) (int64, error) {
	records, err := a.store.ListProfiles(ctx, userID)
	if err != nil {
		a.metrics.IncAggregation(metrics.ResultFailure)
		return 0, fmt.Errorf("listing profiles: %w", err)
	}

	var total int64
	for _, rec := range records {
		total += rec.Score
	}

	if err := a.store.SetTotalScore(ctx, userID, total); err != nil {
		a.metrics.IncAggregation(metrics.ResultFailure)
		return 0, fmt.Errorf("storing total score: %w", err)
	}
	a.metrics.IncAggregation(metrics.ResultSuccess)

	if a.cache != nil {
		if err := a.cache.SetTotal(ctx, userID, total); err != nil {
			a.logger.Warn("failed to mirror total score",
				"user_id", userID,
				"error", err,
			)
		}
	}

	a.logger.Debug("user total recomputed",
		"user_id", userID,
		"total_score", total,
		"profiles", len(records),
	)
	return total, nil
}

// RecomputeAllUserScores recomputes every user concurrently. Each user runs
// under its own timeout and a failure is recorded without stopping the others.
func (a *Aggregator) RecomputeAllUserScores(ctx context.Context) (*domain.BulkRecomputeResult, error) {
	start := time.Now()

	userIDs, err := a.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	result := &domain.BulkRecomputeResult{
		Users:    len(userIDs),
		Failures: make(map[string]string),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			userCtx := ctx
			if a.userTimeout > 0 {
				var cancel context.CancelFunc
				userCtx, cancel = context.WithTimeout(ctx, a.userTimeout)
				defer cancel()
			}

			_, err := a.RecomputeUserScore(userCtx, userID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures[userID] = err.Error()
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	a.metrics.SetLastBulkRecompute(time.Now())

	if len(result.Failures) > 0 {
		a.logger.Warn("bulk recomputation finished with failures",
			"users", result.Users,
			"failed", len(result.Failures),
			"duration", result.Duration,
		)
	} else {
		a.logger.Info("bulk recomputation finished",
			"users", result.Users,
			"duration", result.Duration,
		)
	}
	return result, nil
}

// Total returns the user's stored total, served from the cache when present.
// A miss or a cache error falls back to the store, and a store hit is written
// back to the cache.
func (a *Aggregator) Total(ctx context.Context, userID string) (*domain.UserScore, error) {
	if a.cache != nil {
		total, ok, err := a.cache.GetTotal(ctx, userID)
		switch {
		case err != nil:
			a.logger.Warn("failed to read cached total score",
				"user_id", userID,
				"error", err,
			)
		case ok:
			return &domain.UserScore{UserID: userID, TotalScore: total}, nil
		}
	}

	score, err := a.store.GetTotalScore(ctx, userID)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.SetTotal(ctx, userID, score.TotalScore); err != nil {
			a.logger.Warn("failed to backfill cached total score",
				"user_id", userID,
				"error", err,
			)
		}
	}
	return score, nil
}

// SyncCache copies every stored total into the cache
func (a *Aggregator) SyncCache(ctx context.Context) (int, error) {
	if a.cache == nil {
		return 0, nil
	}
	totals, err := a.store.ListTotals(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing totals: %w", err)
	}
	if err := a.cache.BatchSetTotals(ctx, totals); err != nil {
		return 0, fmt.Errorf("syncing score cache: %w", err)
	}
	return len(totals), nil
}
