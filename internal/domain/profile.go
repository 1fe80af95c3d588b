package domain

import (
	"time"
)

// UpdateStatus is the state of a profile record's most recent refresh
type UpdateStatus string

const (
	StatusPending UpdateStatus = "pending"
	StatusSuccess UpdateStatus = "success"
	StatusError   UpdateStatus = "error"
)

// ProfileSnapshot is freshly fetched, normalized profile data for one
// (user, platform) pair. It is never persisted without going through a
// ProfileRecord transition.
type ProfileSnapshot struct {
	Platform       Platform  `json:"platform"`
	Username       string    `json:"username"`
	Score          int64     `json:"score"`
	ProblemsSolved int       `json:"problems_solved"`
	Rating         int       `json:"rating"`
	MaxRating      int       `json:"max_rating"`
	Rank           string    `json:"rank"`
	Stars          int       `json:"stars,omitempty"`
	ContestCount   int       `json:"contest_count,omitempty"`
	CountryRank    string    `json:"country_rank,omitempty"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// ProfileRecord is the persisted state of a user's profile on one platform
type ProfileRecord struct {
	UserID           string       `json:"user_id"`
	Platform         Platform     `json:"platform"`
	Username         string       `json:"username"`
	Score            int64        `json:"score"`
	ProblemsSolved   int          `json:"problems_solved"`
	Rating           int          `json:"rating"`
	MaxRating        int          `json:"max_rating"`
	Rank             string       `json:"rank"`
	Stars            int          `json:"stars,omitempty"`
	ContestCount     int          `json:"contest_count,omitempty"`
	LastUpdated      time.Time    `json:"last_updated"`
	LastUpdateStatus UpdateStatus `json:"last_update_status"`
	LastUpdateError  *string      `json:"last_update_error"`
	UpdateAttempts   int          `json:"update_attempts"`
	CreatedAt        time.Time    `json:"created_at"`
}

// NewProfileRecord returns a record in the pending state
func NewProfileRecord(userID string, platform Platform, username string) *ProfileRecord {
	now := time.Now()
	rec := &ProfileRecord{
		UserID:           userID,
		Platform:         platform,
		Username:         username,
		Rank:             "unrated",
		LastUpdated:      now,
		LastUpdateStatus: StatusPending,
		CreatedAt:        now,
	}
	if platform == PlatformCodeChef {
		rec.Stars = 1
	}
	return rec
}

// BeginAttempt counts a refresh attempt. The counter never resets.
func (r *ProfileRecord) BeginAttempt() {
	r.UpdateAttempts++
}

// ApplySnapshot moves the record to success and overwrites its data with the snapshot
func (r *ProfileRecord) ApplySnapshot(snap *ProfileSnapshot, now time.Time) {
	r.Username = snap.Username
	r.Score = snap.Score
	r.ProblemsSolved = snap.ProblemsSolved
	r.Rating = snap.Rating
	r.MaxRating = snap.MaxRating
	r.Rank = snap.Rank
	if r.Platform == PlatformCodeChef {
		r.Stars = snap.Stars
		if r.Stars == 0 {
			r.Stars = 1
		}
		r.ContestCount = snap.ContestCount
	}
	r.LastUpdated = now
	r.LastUpdateStatus = StatusSuccess
	r.LastUpdateError = nil
}

// ApplyFailure moves the record to error. The last known score and the
// other snapshot fields are left untouched.
func (r *ProfileRecord) ApplyFailure(err error) {
	msg := err.Error()
	r.LastUpdateStatus = StatusError
	r.LastUpdateError = &msg
}

// PlatformResult is the outcome of refreshing a single platform
type PlatformResult struct {
	Platform  Platform         `json:"platform"`
	Username  string           `json:"username"`
	Status    UpdateStatus     `json:"status"`
	Snapshot  *ProfileSnapshot `json:"snapshot,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Err       error            `json:"-"`
}

// RefreshReport summarizes a refresh of all of a user's profiles
type RefreshReport struct {
	UserID     string           `json:"user_id"`
	Results    []PlatformResult `json:"results"`
	TotalScore int64            `json:"total_score"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Failed returns the number of platforms that did not refresh successfully
func (r *RefreshReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// UserScore is a user's aggregate total across all platforms
type UserScore struct {
	UserID     string    `json:"user_id"`
	TotalScore int64     `json:"total_score"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BulkRecomputeResult reports a recomputation pass over all users
type BulkRecomputeResult struct {
	Users     int               `json:"users"`
	Succeeded int               `json:"succeeded"`
	Failures  map[string]string `json:"failures,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// RefreshEvent is an audit entry for a single refresh attempt
type RefreshEvent struct {
	UserID    string       `json:"user_id"`
	Platform  Platform     `json:"platform"`
	Username  string       `json:"username"`
	Status    UpdateStatus `json:"status"`
	Score     int64        `json:"score"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// RefreshRequest asks for all of a user's profiles to be refreshed
type RefreshRequest struct {
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// VerifyProfileRequest is the body of a single-profile verification call
type VerifyProfileRequest struct {
	Username string `json:"username"`
}

// BulkRefreshRequest is the body of an admin bulk refresh call
type BulkRefreshRequest struct {
	UserIDs []string `json:"user_ids"`
}
