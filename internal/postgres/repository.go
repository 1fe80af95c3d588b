package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
)

// Repository provides PostgreSQL-based storage for profile records,
// user totals and the refresh audit trail
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			platform VARCHAR(20) NOT NULL,
			username VARCHAR(255) NOT NULL,
			score BIGINT NOT NULL DEFAULT 0,
			problems_solved INT NOT NULL DEFAULT 0,
			rating INT NOT NULL DEFAULT 0,
			max_rating INT NOT NULL DEFAULT 0,
			rank VARCHAR(64) NOT NULL DEFAULT 'unrated',
			stars INT NOT NULL DEFAULT 0,
			contest_count INT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_update_status VARCHAR(10) NOT NULL DEFAULT 'pending',
			last_update_error TEXT,
			update_attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, platform)
		)`,
		`CREATE TABLE IF NOT EXISTS user_scores (
			user_id VARCHAR(64) PRIMARY KEY,
			total_score BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_events (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			platform VARCHAR(20) NOT NULL,
			username VARCHAR(255) NOT NULL,
			status VARCHAR(10) NOT NULL,
			score BIGINT NOT NULL DEFAULT 0,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_user ON profiles(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_scores_total ON user_scores(total_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_events_user ON refresh_events(user_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const profileColumns = `user_id, platform, username, score, problems_solved, rating, max_rating,
	rank, stars, contest_count, last_updated, last_update_status, last_update_error,
	update_attempts, created_at`

func scanProfile(row pgx.Row) (*domain.ProfileRecord, error) {
	var rec domain.ProfileRecord
	err := row.Scan(
		&rec.UserID,
		&rec.Platform,
		&rec.Username,
		&rec.Score,
		&rec.ProblemsSolved,
		&rec.Rating,
		&rec.MaxRating,
		&rec.Rank,
		&rec.Stars,
		&rec.ContestCount,
		&rec.LastUpdated,
		&rec.LastUpdateStatus,
		&rec.LastUpdateError,
		&rec.UpdateAttempts,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetProfile retrieves the record for one (user, platform) pair
func (r *Repository) GetProfile(ctx context.Context, userID string, platform domain.Platform) (*domain.ProfileRecord, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1 AND platform = $2`
	rec, err := scanProfile(r.pool.QueryRow(ctx, query, userID, string(platform)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return rec, nil
}

// ListProfiles retrieves all of a user's records ordered by platform
func (r *Repository) ListProfiles(ctx context.Context, userID string) ([]domain.ProfileRecord, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1 ORDER BY platform`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var records []domain.ProfileRecord
	for rows.Next() {
		rec, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return records, nil
}

// SaveProfile creates or updates the record keyed by (user, platform). The
// attempt counter only moves forward even if a stale copy is saved.
func (r *Repository) SaveProfile(ctx context.Context, rec *domain.ProfileRecord) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id, platform)
		DO UPDATE SET
			username = EXCLUDED.username,
			score = EXCLUDED.score,
			problems_solved = EXCLUDED.problems_solved,
			rating = EXCLUDED.rating,
			max_rating = EXCLUDED.max_rating,
			rank = EXCLUDED.rank,
			stars = EXCLUDED.stars,
			contest_count = EXCLUDED.contest_count,
			last_updated = EXCLUDED.last_updated,
			last_update_status = EXCLUDED.last_update_status,
			last_update_error = EXCLUDED.last_update_error,
			update_attempts = GREATEST(profiles.update_attempts, EXCLUDED.update_attempts)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.UserID,
		string(rec.Platform),
		rec.Username,
		rec.Score,
		rec.ProblemsSolved,
		rec.Rating,
		rec.MaxRating,
		rec.Rank,
		rec.Stars,
		rec.ContestCount,
		rec.LastUpdated,
		string(rec.LastUpdateStatus),
		rec.LastUpdateError,
		rec.UpdateAttempts,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// IncrementAttempts bumps the attempt counter of an existing record and returns the new value
func (r *Repository) IncrementAttempts(ctx context.Context, userID string, platform domain.Platform) (int, error) {
	query := `
		UPDATE profiles SET update_attempts = update_attempts + 1
		WHERE user_id = $1 AND platform = $2
		RETURNING update_attempts
	`
	var attempts int
	err := r.pool.QueryRow(ctx, query, userID, string(platform)).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrProfileNotFound
		}
		return 0, fmt.Errorf("incrementing attempts: %w", err)
	}
	return attempts, nil
}

// ListUserIDs returns every user owning at least one profile record
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return ids, nil
}

// SetTotalScore replaces a user's aggregate total
func (r *Repository) SetTotalScore(ctx context.Context, userID string, total int64) error {
	query := `
		INSERT INTO user_scores (user_id, total_score, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET total_score = $2, updated_at = $3
	`
	_, err := r.pool.Exec(ctx, query, userID, total, time.Now())
	if err != nil {
		return fmt.Errorf("setting total score: %w", err)
	}
	return nil
}

// GetTotalScore retrieves a user's aggregate total
func (r *Repository) GetTotalScore(ctx context.Context, userID string) (*domain.UserScore, error) {
	query := `SELECT user_id, total_score, updated_at FROM user_scores WHERE user_id = $1`
	var score domain.UserScore
	err := r.pool.QueryRow(ctx, query, userID).Scan(&score.UserID, &score.TotalScore, &score.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScoreNotFound
		}
		return nil, fmt.Errorf("getting total score: %w", err)
	}
	return &score, nil
}

// ListTotals retrieves every user's total (for cache sync)
func (r *Repository) ListTotals(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, total_score FROM user_scores`)
	if err != nil {
		return nil, fmt.Errorf("listing totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var userID string
		var total int64
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("scanning total: %w", err)
		}
		totals[userID] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing totals: %w", err)
	}
	return totals, nil
}

// RecordRefreshEvent appends an audit row for one refresh attempt
func (r *Repository) RecordRefreshEvent(ctx context.Context, event domain.RefreshEvent) error {
	var errMsg *string
	if event.Error != "" {
		errMsg = &event.Error
	}
	query := `
		INSERT INTO refresh_events (user_id, platform, username, status, score, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		event.UserID,
		string(event.Platform),
		event.Username,
		string(event.Status),
		event.Score,
		errMsg,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording refresh event: %w", err)
	}
	return nil
}

// ListRefreshEvents returns a user's most recent audit rows, newest first
func (r *Repository) ListRefreshEvents(ctx context.Context, userID string, limit int) ([]domain.RefreshEvent, error) {
	query := `
		SELECT user_id, platform, username, status, score, COALESCE(error, ''), created_at
		FROM refresh_events
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing refresh events: %w", err)
	}
	defer rows.Close()

	var events []domain.RefreshEvent
	for rows.Next() {
		var e domain.RefreshEvent
		if err := rows.Scan(&e.UserID, &e.Platform, &e.Username, &e.Status, &e.Score, &e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning refresh event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing refresh events: %w", err)
	}
	return events, nil
}
