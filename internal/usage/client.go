package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/wudi/registry/internal/config"
)

// Client is the HTTP adapter for the usage store service.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a usage store client from config.
func NewClient(cfg config.UsageConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type countRequest struct {
	Condition  Condition `json:"condition"`
	Coordinate string    `json:"coordinate"`
}

type countResponse struct {
	Total uint64 `json:"total"`
}

type topRequest struct {
	Condition  Condition `json:"condition"`
	Coordinate string    `json:"coordinate"`
	Limit      int       `json:"limit"`
}

type topOperationsResponse struct {
	Operations []OperationSample `json:"operations"`
}

type topClientsResponse struct {
	Clients []ClientSample `json:"clients"`
}

func (c *Client) CountCoordinate(ctx context.Context, cond Condition, coordinate string) (uint64, error) {
	var out countResponse
	err := c.post(ctx, "/coordinates/count", countRequest{Condition: cond, Coordinate: coordinate}, &out)
	if err != nil {
		return 0, err
	}
	return out.Total, nil
}

func (c *Client) TopOperationsForCoordinate(ctx context.Context, cond Condition, coordinate string, limit int) ([]OperationSample, error) {
	var out topOperationsResponse
	err := c.post(ctx, "/coordinates/top-operations", topRequest{Condition: cond, Coordinate: coordinate, Limit: limit}, &out)
	if err != nil {
		return nil, err
	}
	return out.Operations, nil
}

func (c *Client) TopClientsForCoordinate(ctx context.Context, cond Condition, coordinate string, limit int) ([]ClientSample, error) {
	var out topClientsResponse
	err := c.post(ctx, "/coordinates/top-clients", topRequest{Condition: cond, Coordinate: coordinate, Limit: limit}, &out)
	if err != nil {
		return nil, err
	}
	return out.Clients, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal usage request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second

	return backoff.Retry(func() error {
		return c.postOnce(ctx, path, payload, out)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
}

func (c *Client) postOnce(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("usage store request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("usage store returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("usage store returned %d: %s", resp.StatusCode, body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode usage response: %w", err))
	}
	return nil
}
