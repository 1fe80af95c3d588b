package service

import (
	"context"

	"github.com/profile-scores/internal/domain"
)

// ProfileStore persists profile records, user totals and the refresh audit trail
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string, platform domain.Platform) (*domain.ProfileRecord, error)
	ListProfiles(ctx context.Context, userID string) ([]domain.ProfileRecord, error)
	SaveProfile(ctx context.Context, rec *domain.ProfileRecord) error
	IncrementAttempts(ctx context.Context, userID string, platform domain.Platform) (int, error)
	ListUserIDs(ctx context.Context) ([]string, error)

	SetTotalScore(ctx context.Context, userID string, total int64) error
	GetTotalScore(ctx context.Context, userID string) (*domain.UserScore, error)
	ListTotals(ctx context.Context) (map[string]int64, error)

	RecordRefreshEvent(ctx context.Context, event domain.RefreshEvent) error
	ListRefreshEvents(ctx context.Context, userID string, limit int) ([]domain.RefreshEvent, error)
}

// Dispatcher fetches a snapshot from the adapter owning platform
type Dispatcher interface {
	Dispatch(ctx context.Context, platform domain.Platform, username string) (*domain.ProfileSnapshot, error)
}

// Limiter rejects a platform call immediately when its budget is spent
type Limiter interface {
	Allow(ctx context.Context, platform domain.Platform) error
}

// ScoreCache mirrors user totals for fast reads. GetTotal reports false on a miss.
type ScoreCache interface {
	SetTotal(ctx context.Context, userID string, total int64) error
	BatchSetTotals(ctx context.Context, totals map[string]int64) error
	GetTotal(ctx context.Context, userID string) (int64, bool, error)
}
