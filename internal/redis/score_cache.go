package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ScoreCache mirrors user total scores into a Redis sorted set. Postgres
// stays the source of truth; the set is rebuilt from it on startup.
type ScoreCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewScoreCache creates a score cache on an existing client
func NewScoreCache(client *redis.Client, prefix string, logger *slog.Logger) *ScoreCache {
	return &ScoreCache{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// totalsKey returns the sorted set holding every user's total
func (c *ScoreCache) totalsKey() string {
	return fmt.Sprintf("%s:totals", c.prefix)
}

// SetTotal stores a user's total score
func (c *ScoreCache) SetTotal(ctx context.Context, userID string, total int64) error {
	err := c.client.ZAdd(ctx, c.totalsKey(), redis.Z{
		Score:  float64(total),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting total score: %w", err)
	}
	return nil
}

// BatchSetTotals stores many totals using pipelining
func (c *ScoreCache) BatchSetTotals(ctx context.Context, totals map[string]int64) error {
	if len(totals) == 0 {
		return nil
	}
	key := c.totalsKey()
	pipe := c.client.Pipeline()
	for userID, total := range totals {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(total),
			Member: userID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting totals: %w", err)
	}
	c.logger.Debug("score cache synced", "users", len(totals))
	return nil
}

// GetTotal returns a user's cached total and whether it was present
func (c *ScoreCache) GetTotal(ctx context.Context, userID string) (int64, bool, error) {
	score, err := c.client.ZScore(ctx, c.totalsKey(), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("getting total score: %w", err)
	}
	return int64(score), true, nil
}
