package platforms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/profile-scores/internal/domain"
	"github.com/profile-scores/internal/scoring"
)

// CodeChef profile page selectors
const (
	codeChefRatingSel  = ".rating-number"
	codeChefMaxSel     = ".rating-header small"
	codeChefSolvedSel  = ".rating-data-section strong"
	codeChefContestSel = ".rating-table tbody tr"
	codeChefRanksSel   = ".rating-ranks strong"
)

var firstNumber = regexp.MustCompile(`\d+`)

// CodeChef scrapes the public profile page
type CodeChef struct {
	client  *Client
	baseURL string
}

// NewCodeChef creates a CodeChef adapter
func NewCodeChef(client *Client, baseURL string) *CodeChef {
	return &CodeChef{client: client, baseURL: baseURL}
}

func (a *CodeChef) Platform() domain.Platform {
	return domain.PlatformCodeChef
}

// Fetch downloads and parses /users/{username}. A page with no rating, no
// solved problems and no contests is treated as a nonexistent user.
func (a *CodeChef) Fetch(ctx context.Context, username string) (*domain.ProfileSnapshot, error) {
	p := a.Platform()
	u := joinURL(a.baseURL, "/users/"+url.PathEscape(username))

	resp, err := a.client.get(ctx, p, username, u, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, domain.NewAdapterError(domain.ErrNotFound, p, username, nil)
	}
	if resp.status != http.StatusOK {
		return nil, domain.NewAdapterError(domain.ErrTransient, p, username,
			fmt.Errorf("profile page returned status %d", resp.status))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.body))
	if err != nil {
		return nil, domain.NewAdapterError(domain.ErrParseFailure, p, username, fmt.Errorf("parsing html: %w", err))
	}

	ratingNode := doc.Find(codeChefRatingSel)
	rating := leadingInt(ratingNode.First().Text())
	maxRating := leadingInt(doc.Find(codeChefMaxSel).First().Text())
	solved := leadingInt(doc.Find(codeChefSolvedSel).First().Text())
	contests := doc.Find(codeChefContestSel).Length()

	if rating == 0 && solved == 0 && contests == 0 {
		return nil, domain.NewAdapterError(domain.ErrNotFound, p, username, nil)
	}
	if ratingNode.Length() == 0 {
		return nil, domain.NewAdapterError(domain.ErrParseFailure, p, username,
			errors.New("rating node missing from profile page"))
	}

	var ranks []string
	doc.Find(codeChefRanksSel).Each(func(_ int, s *goquery.Selection) {
		ranks = append(ranks, firstNumber.FindString(s.Text()))
	})

	return &domain.ProfileSnapshot{
		Platform:       p,
		Username:       username,
		Score:          scoring.CodeChef(rating, solved, contests),
		ProblemsSolved: solved,
		Rating:         rating,
		MaxRating:      maxRating,
		Rank:           rankAt(ranks, 0),
		Stars:          scoring.CodeChefStars(rating),
		ContestCount:   contests,
		CountryRank:    rankAt(ranks, 1),
		FetchedAt:      a.client.now(),
	}, nil
}

// leadingInt returns the first run of digits in s, or 0
func leadingInt(s string) int {
	m := firstNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func rankAt(ranks []string, i int) string {
	if i >= len(ranks) || ranks[i] == "" {
		return "0"
	}
	return ranks[i]
}
