// Package resolver is the HTTP client for the external off-chain resolver
// service that answers resolve requests with an outcome and confidence.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/prophezy/oracle-resolver/internal/breaker"
	"github.com/prophezy/oracle-resolver/internal/domain"
)

const DefaultBaseURL = "http://localhost:8000"

// Config holds connection parameters for the resolver client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
}

// Request is the body of POST /resolve.
type Request struct {
	MarketID   int64    `json:"marketId"`
	Question   string   `json:"question"`
	Category   string   `json:"category"`
	OracleType string   `json:"oracleType"`
	DataFeedID string   `json:"dataFeedId,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	EndTime    string   `json:"endTime,omitempty"`
}

// Response is the resolver's answer. It is accepted verbatim.
type Response struct {
	MarketID   int64   `json:"marketId"`
	Outcome    int     `json:"outcome"`
	Value      float64 `json:"value"`
	Threshold  float64 `json:"threshold"`
	OracleType string  `json:"oracleType"`
	Timestamp  string  `json:"timestamp"`
	Confidence float64 `json:"confidence"`
}

// Client calls the resolver service through a circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker
}

// NewClient creates a new resolver client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		cb:         breaker.New(breaker.Settings{Name: "resolver"}, logger),
	}
}

// Resolve asks the resolver service for an outcome. Every failure is
// reported as domain.ErrProviderError.
func (c *Client) Resolve(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("resolver: marshal request: %w", err)
	}

	data, err := breaker.Do(c.cb, func() ([]byte, error) {
		return c.do(ctx, http.MethodPost, "/resolve", body)
	})
	if err != nil {
		return Response{}, fmt.Errorf("resolver: %w: resolve market %d: %v", domain.ErrProviderError, req.MarketID, err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("resolver: %w: decode resolution: %v", domain.ErrProviderError, err)
	}
	return resp, nil
}

// Status proxies the resolver's /oracle-status document.
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	data, err := breaker.Do(c.cb, func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, "/oracle-status", nil)
	})
	if err != nil {
		return nil, fmt.Errorf("resolver: %w: status: %v", domain.ErrProviderError, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("resolver: %w: status is not JSON", domain.ErrProviderError)
	}
	return json.RawMessage(data), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(data)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}
