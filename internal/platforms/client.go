// Package platforms holds one adapter per external competitive-programming
// site. Each adapter turns a username into a normalized domain.ProfileSnapshot
// or a classified *domain.AdapterError.
package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
)

// maxBodyBytes caps how much of a platform response is read into memory
const maxBodyBytes = 8 << 20

// Adapter fetches and normalizes one platform's public profile
type Adapter interface {
	Platform() domain.Platform
	Fetch(ctx context.Context, username string) (*domain.ProfileSnapshot, error)
}

// Client is the HTTP transport shared by the adapters. It sets a browser-like
// identity, bounds every request by a fixed timeout and classifies transport
// level failures as Transient.
type Client struct {
	http      *http.Client
	userAgent string
	now       func() time.Time
}

// NewClient builds a Client from the platforms configuration
func NewClient(cfg config.PlatformsConfig) *Client {
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// response is a fully read platform response
type response struct {
	status int
	body   []byte
}

// get issues a GET and returns the response for any status below 500 other than 429
func (c *Client) get(ctx context.Context, p domain.Platform, username, url, accept string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewAdapterError(domain.ErrTransient, p, username, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", accept)
	return c.do(req, p, username)
}

// postJSON issues a POST with a JSON body
func (c *Client) postJSON(ctx context.Context, p domain.Platform, username, url string, payload any) (*response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewAdapterError(domain.ErrTransient, p, username, fmt.Errorf("encoding request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewAdapterError(domain.ErrTransient, p, username, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, p, username)
}

func (c *Client) do(req *http.Request, p domain.Platform, username string) (*response, error) {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewAdapterError(domain.ErrTransient, p, username, fmt.Errorf("requesting %s: %w", req.URL.Path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewAdapterError(domain.ErrTransient, p, username, fmt.Errorf("reading %s: %w", req.URL.Path, err))
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.NewAdapterError(domain.ErrTransient, p, username,
			fmt.Errorf("%s returned status %d", req.URL.Path, resp.StatusCode))
	}

	return &response{status: resp.StatusCode, body: body}, nil
}

// decodeJSON unmarshals a body, reporting a structural mismatch as ParseFailure
func decodeJSON(p domain.Platform, username string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return domain.NewAdapterError(domain.ErrParseFailure, p, username, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// joinURL appends path to a configured base URL
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
