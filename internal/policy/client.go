package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/registry/internal/config"
)

// Client is the HTTP adapter for the policy service.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a policy service client.
func NewClient(cfg config.PolicyConfig, logger *zap.Logger) *Client {
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

type checkRequest struct {
	Selector    Selector `json:"selector"`
	ModifiedSDL string   `json:"modified_sdl"`
	ComposedSDL string   `json:"composed_sdl"`
}

type checkResponse struct {
	Success  bool    `json:"success"`
	Warnings []Issue `json:"warnings,omitempty"`
	Errors   []Issue `json:"errors,omitempty"`
}

func (c *Client) CheckPolicy(ctx context.Context, selector Selector, modifiedSDL, composedSDL string) (*Check, error) {
	payload, err := json.Marshal(checkRequest{
		Selector:    selector,
		ModifiedSDL: modifiedSDL,
		ComposedSDL: composedSDL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal policy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/check", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("policy service request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	// 204 means no policy is configured for the selector.
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy service returned %d: %s", resp.StatusCode, body)
	}

	var out checkResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode policy response: %w", err)
	}

	if out.Success {
		return &Check{Status: StatusCompleted, Warnings: out.Warnings}, nil
	}
	return &Check{Status: StatusFailed, Warnings: out.Warnings, Errors: out.Errors}, nil
}
