// Package redstone fetches quoted feed values from the Redstone price API.
package redstone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

const (
	DefaultBaseURL = "https://api.redstone.finance"
	DefaultTimeout = 10 * time.Second
)

// Config holds connection parameters for the Redstone client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RPS bounds outbound requests per second. Zero disables limiting.
	RPS float64
}

// Client fetches one value per call. It never retries; a failed fetch is
// reported to the caller immediately.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Redstone client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), int(math.Max(1, cfg.RPS)))
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// FetchValue returns the latest quoted value for feed. It fails with
// domain.ErrFeedNotFound when the provider does not know the feed and with
// domain.ErrProviderError on transport, timeout, status or decode failures.
func (c *Client) FetchValue(ctx context.Context, feed string) (float64, error) {
	feed = strings.TrimSpace(feed)
	if feed == "" {
		return 0, fmt.Errorf("redstone: %w: empty feed", domain.ErrInvalidInput)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("redstone: %w: rate limiter: %v", domain.ErrProviderError, err)
	}

	endpoint := c.baseURL + "/prices?" + url.Values{"symbols": {feed}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("redstone: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("redstone: %w: fetch %s: %v", domain.ErrProviderError, feed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("redstone: %w: read response: %v", domain.ErrProviderError, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("redstone: %w: HTTP %d: %s", domain.ErrProviderError, resp.StatusCode, truncate(string(body), 200))
	}

	return parseValue(body, feed)
}

// quote is one feed entry. Redstone reports either value or price, as a
// number or a numeric string.
type quote struct {
	Value json.RawMessage `json:"value"`
	Price json.RawMessage `json:"price"`
}

func parseValue(body []byte, feed string) (float64, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("redstone: %w: decode response: %v", domain.ErrProviderError, err)
	}

	raw, ok := payload[feed]
	if !ok || string(raw) == "null" {
		return 0, fmt.Errorf("redstone: %w: %s", domain.ErrFeedNotFound, feed)
	}

	var q quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return 0, fmt.Errorf("redstone: %w: decode %s: %v", domain.ErrProviderError, feed, err)
	}

	v, err := number(q.Value)
	if errors.Is(err, errMissing) {
		v, err = number(q.Price)
	}
	if err != nil {
		return 0, fmt.Errorf("redstone: %w: %s value: %v", domain.ErrProviderError, feed, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("redstone: %w: %s value not finite", domain.ErrProviderError, feed)
	}
	return v, nil
}

var errMissing = errors.New("missing")

func number(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errMissing
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
