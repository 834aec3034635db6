// Package source talks to YouTube: channel resolution, per-channel upload
// feeds, the Data API v3 for details and comments, and the public watch and
// timedtext endpoints for keyless fallbacks.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIBaseURL = "https://www.googleapis.com"
	defaultWebBaseURL = "https://www.youtube.com"
	userAgent         = "Mozilla/5.0 (compatible; ytdigest/1.0)"
)

// ErrNoAPIKey is returned by Data API calls when no key was configured.
var ErrNoAPIKey = errors.New("youtube: no Data API key configured")

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIBaseURL sets the Data API base URL (useful for testing).
func WithAPIBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.apiBaseURL = u
		}
	}
}

// WithWebBaseURL sets the base URL for channel pages, feeds and watch pages.
func WithWebBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.webBaseURL = u
		}
	}
}

// Client is a YouTube client. The zero API key is valid: feed and page
// access keep working, Data API calls return ErrNoAPIKey.
type Client struct {
	apiKey     string
	apiBaseURL string
	webBaseURL string
	httpClient *http.Client
}

// NewClient creates a client using the given Data API key.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		apiBaseURL: defaultAPIBaseURL,
		webBaseURL: defaultWebBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasAPIKey reports whether Data API calls can be made.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// APIError is a non-200 response from a YouTube endpoint.
type APIError struct {
	StatusCode int
	Endpoint   string
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return fmt.Sprintf("youtube %s: bad request", e.Endpoint)
	case http.StatusForbidden:
		return fmt.Sprintf("youtube %s: access denied (quota exhausted, bad key or comments disabled)", e.Endpoint)
	case http.StatusNotFound:
		return fmt.Sprintf("youtube %s: not found", e.Endpoint)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("youtube %s: rate limited", e.Endpoint)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Sprintf("youtube %s: server error (status %d)", e.Endpoint, e.StatusCode)
	default:
		return fmt.Sprintf("youtube %s: status %d", e.Endpoint, e.StatusCode)
	}
}

func (c *Client) doRequest(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}
	return body, nil
}
