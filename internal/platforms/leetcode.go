package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/profile-scores/internal/domain"
	"github.com/profile-scores/internal/scoring"
)

const leetCodeProfileQuery = `query getUserProfile($username: String!) {
  matchedUser(username: $username) {
    submitStats {
      acSubmissionNum {
        difficulty
        count
      }
    }
    profile {
      ranking
      reputation
      starRating
    }
  }
}`

// leetCodeAllBucket is the aggregate bucket LeetCode returns next to the
// per-difficulty ones; counting it would double the total.
const leetCodeAllBucket = "All"

type leetCodeResponse struct {
	Data struct {
		MatchedUser *struct {
			SubmitStats *struct {
				AcSubmissionNum []struct {
					Difficulty string `json:"difficulty"`
					Count      int    `json:"count"`
				} `json:"acSubmissionNum"`
			} `json:"submitStats"`
			Profile *struct {
				Ranking    int     `json:"ranking"`
				Reputation int     `json:"reputation"`
				StarRating float64 `json:"starRating"`
			} `json:"profile"`
		} `json:"matchedUser"`
	} `json:"data"`
}

// LeetCode queries the public GraphQL endpoint
type LeetCode struct {
	client  *Client
	baseURL string
}

// NewLeetCode creates a LeetCode adapter
func NewLeetCode(client *Client, baseURL string) *LeetCode {
	return &LeetCode{client: client, baseURL: baseURL}
}

func (a *LeetCode) Platform() domain.Platform {
	return domain.PlatformLeetCode
}

// Fetch runs the getUserProfile query for username
func (a *LeetCode) Fetch(ctx context.Context, username string) (*domain.ProfileSnapshot, error) {
	p := a.Platform()
	payload := map[string]any{
		"query":     leetCodeProfileQuery,
		"variables": map[string]string{"username": username},
	}

	resp, err := a.client.postJSON(ctx, p, username, joinURL(a.baseURL, "/graphql"), payload)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, domain.NewAdapterError(domain.ErrNotFound, p, username, nil)
	}
	if resp.status != http.StatusOK {
		return nil, domain.NewAdapterError(domain.ErrTransient, p, username,
			fmt.Errorf("graphql returned status %d", resp.status))
	}

	var out leetCodeResponse
	if err := decodeJSON(p, username, resp.body, &out); err != nil {
		return nil, err
	}

	user := out.Data.MatchedUser
	if user == nil {
		return nil, domain.NewAdapterError(domain.ErrNotFound, p, username, nil)
	}
	if user.SubmitStats == nil {
		return nil, domain.NewAdapterError(domain.ErrParseFailure, p, username, errors.New("submitStats missing"))
	}
	if user.Profile == nil {
		return nil, domain.NewAdapterError(domain.ErrParseFailure, p, username, errors.New("profile missing"))
	}

	counts := make([]int, 0, len(user.SubmitStats.AcSubmissionNum))
	for _, bucket := range user.SubmitStats.AcSubmissionNum {
		if bucket.Difficulty == leetCodeAllBucket {
			continue
		}
		counts = append(counts, bucket.Count)
	}
	solved, score := scoring.LeetCode(counts)
	rating := scoring.LeetCodeRating(int(user.Profile.StarRating), user.Profile.Reputation)

	return &domain.ProfileSnapshot{
		Platform:       p,
		Username:       username,
		Score:          score,
		ProblemsSolved: solved,
		Rating:         rating,
		MaxRating:      rating,
		Rank:           strconv.Itoa(user.Profile.Ranking),
		FetchedAt:      a.client.now(),
	}, nil
}
