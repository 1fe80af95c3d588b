package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/profile-scores/internal/domain"
	"github.com/profile-scores/internal/metrics"
)

// aggregationGrace bounds the final recomputation of a refresh that was cancelled
const aggregationGrace = 10 * time.Second

// ProfileService verifies and refreshes a user's platform profiles
type ProfileService struct {
	store      ProfileStore
	dispatcher Dispatcher
	limiter    Limiter
	aggregator *Aggregator
	metrics    *metrics.Manager
	logger     *slog.Logger
	now        func() time.Time
}

// NewProfileService creates a profile service. limiter may be nil to disable throttling.
func NewProfileService(
	store ProfileStore,
	dispatcher Dispatcher,
	limiter Limiter,
	aggregator *Aggregator,
	m *metrics.Manager,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		store:      store,
		dispatcher: dispatcher,
		limiter:    limiter,
		aggregator: aggregator,
		metrics:    m,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// VerifyAndStoreProfile fetches username from platform and links it to the
// user. On success the record is created or updated and the user's total is
// recomputed before returning. On failure an existing record moves to the
// error state with its numbers kept, and no record is created.
func (s *ProfileService) VerifyAndStoreProfile(ctx context.Context, userID string, platform domain.Platform, username string) (*domain.ProfileRecord, error) {
	username = strings.TrimSpace(username)
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrInvalidRequest)
	}
	if !platform.Valid() {
		return nil, domain.NewAdapterError(domain.ErrUnsupported, platform, username, nil)
	}
	if username == "" {
		return nil, domain.ErrInvalidUsername
	}

	existing, err := s.store.GetProfile(ctx, userID, platform)
	if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if existing != nil {
		attempts, err := s.store.IncrementAttempts(ctx, userID, platform)
		if err != nil {
			return nil, fmt.Errorf("counting attempt: %w", err)
		}
		existing.UpdateAttempts = attempts
	}

	snap, fetchErr := s.dispatcher.Dispatch(ctx, platform, username)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("verifying %s profile: %w", platform, ctxErr)
	}

	if fetchErr != nil {
		if existing != nil {
			existing.ApplyFailure(fetchErr)
			if err := s.store.SaveProfile(ctx, existing); err != nil {
				s.logger.Error("failed to save profile failure",
					"user_id", userID,
					"platform", platform,
					"error", err,
				)
			}
			s.audit(ctx, existing)
			if _, err := s.aggregator.RecomputeUserScore(ctx, userID); err != nil {
				s.logger.Warn("failed to recompute total score",
					"user_id", userID,
					"error", err,
				)
			}
		}
		return nil, fetchErr
	}

	rec := existing
	if rec == nil {
		rec = domain.NewProfileRecord(userID, platform, username)
		rec.BeginAttempt()
	}
	rec.ApplySnapshot(snap, s.now())
	if err := s.store.SaveProfile(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	s.audit(ctx, rec)

	if _, err := s.aggregator.RecomputeUserScore(ctx, userID); err != nil {
		return rec, fmt.Errorf("recomputing total score: %w", err)
	}

	s.logger.Info("profile verified",
		"user_id", userID,
		"platform", platform,
		"username", username,
		"score", rec.Score,
	)
	return rec, nil
}

// RefreshAllProfiles refreshes every stored profile of userID one platform at
// a time. A failing platform never stops the others, and the user's total is
// recomputed exactly once at the end.
func (s *ProfileService) RefreshAllProfiles(ctx context.Context, userID string) (*domain.RefreshReport, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrInvalidRequest)
	}

	records, err := s.store.ListProfiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	report := &domain.RefreshReport{
		UserID:    userID,
		Results:   make([]domain.PlatformResult, 0, len(records)),
		StartedAt: s.now(),
	}

	for i := range records {
		if ctxErr := ctx.Err(); ctxErr != nil {
			for _, rest := range records[i:] {
				report.Results = append(report.Results, cancelledResult(&rest, ctxErr))
			}
			break
		}
		report.Results = append(report.Results, s.refreshOne(ctx, &records[i]))
	}

	// Records already written must be reflected even if the caller gave up
	aggCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), aggregationGrace)
	defer cancel()
	total, err := s.aggregator.RecomputeUserScore(aggCtx, userID)
	report.TotalScore = total
	report.FinishedAt = s.now()

	s.logger.Info("profiles refreshed",
		"user_id", userID,
		"platforms", len(report.Results),
		"failed", report.Failed(),
		"total_score", total,
	)

	if err != nil {
		return report, fmt.Errorf("recomputing total score: %w", err)
	}
	return report, nil
}

// refreshOne runs a single platform attempt and persists its outcome
func (s *ProfileService) refreshOne(ctx context.Context, rec *domain.ProfileRecord) domain.PlatformResult {
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, rec.Platform); err != nil {
			s.metrics.IncRateLimited(string(rec.Platform))
			s.logger.Warn("platform refresh rate limited",
				"user_id", rec.UserID,
				"platform", rec.Platform,
			)
			return failedResult(rec, err)
		}
	}

	attempts, err := s.store.IncrementAttempts(ctx, rec.UserID, rec.Platform)
	if err != nil {
		return failedResult(rec, fmt.Errorf("counting attempt: %w", err))
	}
	rec.UpdateAttempts = attempts

	snap, fetchErr := s.dispatcher.Dispatch(ctx, rec.Platform, rec.Username)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelledResult(rec, ctxErr)
	}

	if fetchErr != nil {
		rec.ApplyFailure(fetchErr)
	} else {
		rec.ApplySnapshot(snap, s.now())
	}

	if err := s.store.SaveProfile(ctx, rec); err != nil {
		s.logger.Error("failed to save profile",
			"user_id", rec.UserID,
			"platform", rec.Platform,
			"error", err,
		)
		return failedResult(rec, fmt.Errorf("saving profile: %w", err))
	}
	s.audit(ctx, rec)

	if fetchErr != nil {
		return failedResult(rec, fetchErr)
	}
	return domain.PlatformResult{
		Platform: rec.Platform,
		Username: rec.Username,
		Status:   domain.StatusSuccess,
		Snapshot: snap,
	}
}

// audit appends the record's current outcome to the refresh trail. Failures are only logged.
func (s *ProfileService) audit(ctx context.Context, rec *domain.ProfileRecord) {
	event := domain.RefreshEvent{
		UserID:    rec.UserID,
		Platform:  rec.Platform,
		Username:  rec.Username,
		Status:    rec.LastUpdateStatus,
		Score:     rec.Score,
		Timestamp: s.now(),
	}
	if rec.LastUpdateError != nil {
		event.Error = *rec.LastUpdateError
	}
	if err := s.store.RecordRefreshEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record refresh event",
			"user_id", rec.UserID,
			"platform", rec.Platform,
			"error", err,
		)
	}
}

// ListProfiles returns every stored profile of userID
func (s *ProfileService) ListProfiles(ctx context.Context, userID string) ([]domain.ProfileRecord, error) {
	records, err := s.store.ListProfiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	if records == nil {
		records = []domain.ProfileRecord{}
	}
	return records, nil
}

// GetTotalScore returns the user's total, from the score cache when it holds
// one. A user never aggregated has a total of zero.
func (s *ProfileService) GetTotalScore(ctx context.Context, userID string) (*domain.UserScore, error) {
	score, err := s.aggregator.Total(ctx, userID)
	if errors.Is(err, domain.ErrScoreNotFound) {
		return &domain.UserScore{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting total score: %w", err)
	}
	return score, nil
}

// ListRefreshEvents returns the user's most recent refresh attempts
func (s *ProfileService) ListRefreshEvents(ctx context.Context, userID string, limit int) ([]domain.RefreshEvent, error) {
	events, err := s.store.ListRefreshEvents(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing refresh events: %w", err)
	}
	if events == nil {
		events = []domain.RefreshEvent{}
	}
	return events, nil
}

func failedResult(rec *domain.ProfileRecord, err error) domain.PlatformResult {
	return domain.PlatformResult{
		Platform:  rec.Platform,
		Username:  rec.Username,
		Status:    domain.StatusError,
		Error:     err.Error(),
		ErrorKind: domain.KindOf(err),
		Err:       err,
	}
}

func cancelledResult(rec *domain.ProfileRecord, ctxErr error) domain.PlatformResult {
	return failedResult(rec, fmt.Errorf("refresh abandoned: %w", ctxErr))
}
