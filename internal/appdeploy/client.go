package appdeploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client is the HTTP adapter for the app-deployments service.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates an app-deployments client.
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type affectedRequest struct {
	Coordinates      []string `json:"coordinates"`
	FirstDeployments int      `json:"first_deployments,omitempty"`
	FirstOperations  int      `json:"first_operations,omitempty"`
}

func (c *Client) AffectedByCoordinates(ctx context.Context, coordinates []string, firstDeployments, firstOperations int) (*Result, error) {
	payload, err := json.Marshal(affectedRequest{
		Coordinates:      coordinates,
		FirstDeployments: firstDeployments,
		FirstOperations:  firstOperations,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal app-deployment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/affected", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("app-deployments request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("app-deployments service returned %d: %s", resp.StatusCode, body)
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode app-deployments response: %w", err)
	}
	return &out, nil
}
