package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/profile-scores/internal/domain"
	"github.com/profile-scores/internal/scoring"
)

const codeforcesDefaultRank = "newbie"

type codeforcesInfoResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  []struct {
		Handle    string `json:"handle"`
		Rating    int    `json:"rating"`
		MaxRating int    `json:"maxRating"`
		Rank      string `json:"rank"`
	} `json:"result"`
}

type codeforcesStatusResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  []struct {
		ContestID int    `json:"contestId"`
		Verdict   string `json:"verdict"`
		Problem   struct {
			ContestID int    `json:"contestId"`
			Index     string `json:"index"`
		} `json:"problem"`
		Author struct {
			ParticipantType string `json:"participantType"`
		} `json:"author"`
	} `json:"result"`
}

// Codeforces combines the user.info and user.status REST calls
type Codeforces struct {
	client  *Client
	baseURL string
}

// NewCodeforces creates a Codeforces adapter
func NewCodeforces(client *Client, baseURL string) *Codeforces {
	return &Codeforces{client: client, baseURL: baseURL}
}

func (a *Codeforces) Platform() domain.Platform {
	return domain.PlatformCodeforces
}

// Fetch runs both calls concurrently and waits for both before deciding.
// A failed info call takes priority over a failed status call, whichever
// finished first.
func (a *Codeforces) Fetch(ctx context.Context, username string) (*domain.ProfileSnapshot, error) {
	var (
		info      codeforcesInfoResponse
		status    codeforcesStatusResponse
		infoErr   error
		statusErr error
		g         errgroup.Group
	)

	g.Go(func() error {
		infoErr = a.fetchInfo(ctx, username, &info)
		return infoErr
	})
	g.Go(func() error {
		statusErr = a.fetchStatus(ctx, username, &status)
		return statusErr
	})
	if err := g.Wait(); err != nil {
		if infoErr != nil {
			return nil, infoErr
		}
		return nil, err
	}

	user := info.Result[0]
	subs := make([]scoring.CodeforcesSubmission, 0, len(status.Result))
	for _, s := range status.Result {
		subs = append(subs, scoring.CodeforcesSubmission{
			ContestID:       s.Problem.ContestID,
			ProblemIndex:    s.Problem.Index,
			Verdict:         s.Verdict,
			ParticipantType: s.Author.ParticipantType,
		})
		// gym and some practice submissions only carry the contest on the submission
		if subs[len(subs)-1].ContestID == 0 {
			subs[len(subs)-1].ContestID = s.ContestID
		}
	}
	solved, contests := scoring.CodeforcesCounts(subs)

	rank := user.Rank
	if rank == "" {
		rank = codeforcesDefaultRank
	}

	return &domain.ProfileSnapshot{
		Platform:       a.Platform(),
		Username:       username,
		Score:          scoring.Codeforces(solved, user.Rating, contests),
		ProblemsSolved: solved,
		Rating:         user.Rating,
		MaxRating:      user.MaxRating,
		Rank:           rank,
		FetchedAt:      a.client.now(),
	}, nil
}

// codeforcesComment turns the API's FAILED comment into a cause, if any
func codeforcesComment(comment string) error {
	if comment == "" {
		return nil
	}
	return errors.New(comment)
}

func (a *Codeforces) fetchInfo(ctx context.Context, username string, out *codeforcesInfoResponse) error {
	p := a.Platform()
	u := joinURL(a.baseURL, "/api/user.info?handles="+url.QueryEscape(username))
	resp, err := a.client.get(ctx, p, username, u, "application/json")
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound {
		return domain.NewAdapterError(domain.ErrNotFound, p, username, nil)
	}
	// Codeforces answers unknown handles with 400 and status FAILED
	if resp.status != http.StatusOK && resp.status != http.StatusBadRequest {
		return domain.NewAdapterError(domain.ErrTransient, p, username,
			fmt.Errorf("user.info returned status %d", resp.status))
	}
	if err := decodeJSON(p, username, resp.body, out); err != nil {
		return err
	}
	if out.Status != "OK" {
		return domain.NewAdapterError(domain.ErrNotFound, p, username, codeforcesComment(out.Comment))
	}
	if len(out.Result) == 0 {
		return domain.NewAdapterError(domain.ErrParseFailure, p, username, errors.New("user.info result is empty"))
	}
	return nil
}

func (a *Codeforces) fetchStatus(ctx context.Context, username string, out *codeforcesStatusResponse) error {
	p := a.Platform()
	u := joinURL(a.baseURL, "/api/user.status?handle="+url.QueryEscape(username))
	resp, err := a.client.get(ctx, p, username, u, "application/json")
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusBadRequest {
		return domain.NewAdapterError(domain.ErrTransient, p, username,
			fmt.Errorf("user.status returned status %d", resp.status))
	}
	if err := decodeJSON(p, username, resp.body, out); err != nil {
		return err
	}
	if out.Status != "OK" {
		return domain.NewAdapterError(domain.ErrNotFound, p, username, codeforcesComment(out.Comment))
	}
	return nil
}
