package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/movietrends/search-popularity/internal/config"
	"github.com/movietrends/search-popularity/internal/models"
)

// Client calls the popularity service on behalf of a browsing or search application.
// Tracking is best-effort: failures are returned or logged, never retried.
type Client struct {
	config     config.ClientConfig
	httpClient *http.Client
}

// TrendingResponse mirrors the GET /movies response body
type TrendingResponse struct {
	Results      []models.PopularityRecord `json:"results"`
	TotalResults int                       `json:"total_results"`
	Timeframe    string                    `json:"timeframe"`
	Message      string                    `json:"message"`
}

// ErrDecode is returned when a 2xx response body cannot be decoded
var ErrDecode = errors.New("failed to unmarshal response")

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API returned status %d", e.StatusCode)
}

// NewClient creates a client whose requests are bounded by cfg.Timeout
func NewClient(cfg config.ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Track records one search and returns the updated record
func (c *Client) Track(ctx context.Context, event models.TrackEvent) (*models.PopularityRecord, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	var out struct {
		Message string                  `json:"message"`
		Movie   models.PopularityRecord `json:"movie"`
	}
	if err := c.do(ctx, http.MethodPost, "/track", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return &out.Movie, nil
}

// TrackAsync fires a track request in the background. The caller's own flow is
// never blocked; failures are only logged.
func (c *Client) TrackAsync(event models.TrackEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
		defer cancel()

		if _, err := c.Track(ctx, event); err != nil {
			slog.Warn("failed to track movie search", "movie_id", event.MovieID, "error", err)
		}
	}()
}

// Trending fetches trending movies, retrying transport errors and 5xx responses
func (c *Client) Trending(ctx context.Context, limit int, timeframe string) (*TrendingResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if timeframe != "" {
		q.Set("timeframe", timeframe)
	}
	path := "/movies"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.config.RetryCount; attempt++ {
		var out TrendingResponse
		err := c.do(ctx, http.MethodGet, path, nil, &out)
		if err == nil {
			return &out, nil
		}

		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if attempt < c.config.RetryCount-1 {
			waitTime := time.Duration(attempt+1) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.config.RetryCount, lastErr)
}

// TrendingOrEmpty returns the trending shelf or an empty slice when the service
// cannot answer, so callers can fall back to their own listing.
func (c *Client) TrendingOrEmpty(ctx context.Context, limit int, timeframe string) []models.PopularityRecord {
	resp, err := c.Trending(ctx, limit, timeframe)
	if err != nil {
		slog.Warn("trending unavailable, falling back", "error", err)
		return []models.PopularityRecord{}
	}
	if resp.Results == nil {
		return []models.PopularityRecord{}
	}
	return resp.Results
}

// MovieStats fetches stats for one movie. A 404 surfaces as a *StatusError.
func (c *Client) MovieStats(ctx context.Context, movieID int64) (*models.MovieStats, error) {
	var out models.MovieStats
	if err := c.do(ctx, http.MethodGet, "/stats/"+strconv.FormatInt(movieID, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summary fetches store-wide statistics
func (c *Client) Summary(ctx context.Context) (*models.Summary, error) {
	var out models.Summary
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs a single request and decodes a 2xx JSON body into out
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return !errors.Is(err, ErrDecode)
}
