package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrLoginBlocked signals the upstream's abuse protection: it refuses logins
// for a while after burst traffic ("Login has been blocked, try after some
// time"). Surfaced to clients as HTTP 429.
var ErrLoginBlocked = errors.New("upstream login blocked")

// StatusError is a non-2xx upstream reply. A 401 is an auth signal for the
// retry-after-refresh path.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Config holds the Thyrocare endpoint and credentials.
type Config struct {
	BaseURL  string
	Username string
	Password string
	// Timeout is the hard per-call timeout. Defaults to 30s.
	Timeout time.Duration
}

// Client is the raw HTTP client for the Thyrocare API. It performs no
// queueing, breaking or retries; that is the resilience stack's job.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient builds a Client with a hard request timeout.
func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Login acquires a fresh API key. It returns ErrLoginBlocked when the
// upstream reports an abuse block inside a 200 envelope.
func (c *Client) Login(ctx context.Context) (*LoginResponse, error) {
	req := LoginRequest{
		Username:   c.cfg.Username,
		Password:   c.cfg.Password,
		PortalType: "DSA",
		UserType:   "DSA",
	}
	var resp LoginResponse
	if err := c.postJSON(ctx, "/api/login", req, &resp); err != nil {
		return nil, err
	}
	if strings.Contains(strings.ToLower(resp.Response), "blocked") {
		c.logger.Warnw("upstream login blocked", "response", resp.Response)
		return nil, fmt.Errorf("%w: %s", ErrLoginBlocked, resp.Response)
	}
	return &resp, nil
}

// CartQuote fetches the authoritative payable total and discount margin for
// a cart.
func (c *Client) CartQuote(ctx context.Context, apiKey string, req CartQuoteRequest) (*CartQuoteResponse, error) {
	req.APIKey = apiKey
	var resp CartQuoteResponse
	if err := c.postJSON(ctx, "/api/cart/quote", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OrderSummary fetches the upstream's current view of a booked order.
func (c *Client) OrderSummary(ctx context.Context, apiKey, orderNo string) (*OrderSummaryResponse, error) {
	body := map[string]string{"apiKey": apiKey, "orderNo": orderNo}
	var resp OrderSummaryResponse
	if err := c.postJSON(ctx, "/api/order/summary", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
