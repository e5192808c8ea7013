// Package gatewayclient is the HTTP adapter for the payment gateway.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segyhp/payout-engine/internal/gateway"
	"go.uber.org/zap"
)

// Client talks to the gateway's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient creates a gateway client. A zero timeout falls back to 15s.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("gateway"),
	}
}

func (c *Client) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Result, error) {
	return c.post(ctx, "/v1/charges", req.IdempotencyKey, req)
}

func (c *Client) Payout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Result, error) {
	return c.post(ctx, "/v1/payouts", req.IdempotencyKey, req)
}

func (c *Client) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Result, error) {
	return c.post(ctx, "/v1/refunds", req.IdempotencyKey, req)
}

func (c *Client) Lookup(ctx context.Context, idempotencyKey string) (*gateway.Result, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}
	endpoint := c.baseURL + "/v1/requests/" + url.PathEscape(idempotencyKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, idempotencyKey)
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, payload interface{}) (*gateway.Result, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("gateway base URL is not configured")
	}
	if idempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	return c.do(req, idempotencyKey)
}

func (c *Client) do(req *http.Request, idempotencyKey string) (*gateway.Result, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("gateway request failed",
			zap.String("path", req.URL.Path),
			zap.String("idempotency_key", idempotencyKey),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", gateway.ErrIndeterminate, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && req.Method == http.MethodGet:
		return nil, gateway.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: gateway returned status %d", gateway.ErrIndeterminate, resp.StatusCode)
	case resp.StatusCode >= 400:
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("gateway rejected request with status %d: %s", resp.StatusCode, apiErr.Message)
	}

	var result gateway.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse gateway response: %v", gateway.ErrIndeterminate, err)
	}
	if result.Outcome == "" {
		return nil, errors.New("gateway response missing outcome")
	}

	c.logger.Debug("gateway request settled",
		zap.String("path", req.URL.Path),
		zap.String("idempotency_key", idempotencyKey),
		zap.String("outcome", result.Outcome))
	return &result, nil
}
