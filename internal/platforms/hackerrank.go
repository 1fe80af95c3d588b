package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/profile-scores/internal/domain"
	"github.com/profile-scores/internal/scoring"
)

type hackerRankProfileResponse struct {
	Model *struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"model"`
}

type hackerRankTrack struct {
	Name     string `json:"name"`
	Practice *struct {
		Score float64 `json:"score"`
		Rank  *int    `json:"rank"`
	} `json:"practice"`
}

// flexCount accepts submission history counts sent either as numbers or as strings
type flexCount int

func (c *flexCount) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		v, err := strconv.Atoi(n.String())
		if err != nil {
			return err
		}
		*c = flexCount(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*c = flexCount(v)
	return nil
}

// HackerRank chains the profile, scores and submission history endpoints.
// Only the profile call is required; the other two degrade to empty data.
type HackerRank struct {
	client  *Client
	baseURL string
	logger  *slog.Logger
}

// NewHackerRank creates a HackerRank adapter
func NewHackerRank(client *Client, baseURL string, logger *slog.Logger) *HackerRank {
	return &HackerRank{client: client, baseURL: baseURL, logger: logger}
}

func (a *HackerRank) Platform() domain.Platform {
	return domain.PlatformHackerRank
}

// Fetch confirms the profile exists, then collects practice scores and submission counts
func (a *HackerRank) Fetch(ctx context.Context, username string) (*domain.ProfileSnapshot, error) {
	p := a.Platform()
	escaped := url.PathEscape(username)

	resp, err := a.client.get(ctx, p, username,
		joinURL(a.baseURL, "/rest/contests/master/hackers/"+escaped), "application/json")
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, domain.NewAdapterError(domain.ErrNotFound, p, username,
			fmt.Errorf("profile returned status %d", resp.status))
	}
	var profile hackerRankProfileResponse
	if err := decodeJSON(p, username, resp.body, &profile); err != nil {
		return nil, err
	}
	if profile.Model == nil {
		return nil, domain.NewAdapterError(domain.ErrNotFound, p, username, errors.New("profile model missing"))
	}

	var tracks []hackerRankTrack
	if !a.fetchAuxiliary(ctx, username, "/rest/hackers/"+escaped+"/scores_elo", &tracks) {
		tracks = nil
	}

	var history map[string]flexCount
	if !a.fetchAuxiliary(ctx, username, "/rest/hackers/"+escaped+"/submission_histories", &history) {
		history = nil
	}

	standings := make([]scoring.HackerRankTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Practice == nil {
			continue
		}
		st := scoring.HackerRankTrack{Score: t.Practice.Score}
		if t.Practice.Rank != nil {
			st.Rank = *t.Practice.Rank
		}
		standings = append(standings, st)
	}
	score, bestRank := scoring.HackerRank(standings)

	counts := make(map[string]int, len(history))
	for day, c := range history {
		counts[day] = int(c)
	}

	return &domain.ProfileSnapshot{
		Platform:       p,
		Username:       username,
		Score:          score,
		ProblemsSolved: scoring.HackerRankSolved(counts),
		Rating:         int(score),
		MaxRating:      int(score),
		Rank:           strconv.Itoa(bestRank),
		FetchedAt:      a.client.now(),
	}, nil
}

// fetchAuxiliary decodes a best-effort endpoint into out and reports whether it succeeded
func (a *HackerRank) fetchAuxiliary(ctx context.Context, username, path string, out any) bool {
	resp, err := a.client.get(ctx, a.Platform(), username, joinURL(a.baseURL, path), "application/json")
	if err == nil && resp.status != http.StatusOK {
		err = fmt.Errorf("%s returned status %d", path, resp.status)
	}
	if err == nil {
		err = json.Unmarshal(resp.body, out)
	}
	if err != nil {
		a.logger.Warn("hackerrank auxiliary data unavailable",
			"username", username,
			"path", path,
			"error", err,
		)
		return false
	}
	return true
}
