package composition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/wudi/registry/internal/config"
	"github.com/wudi/registry/internal/schema"
)

// ExternalClient calls the external composition microservice.
//
// Transport-level failures are retried with exponential backoff and guarded
// by a circuit breaker; composition failures reported by the service are
// returned as a normal Result and never retried.
type ExternalClient struct {
	endpoint string
	client   *http.Client
	retry    config.RetryConfig
	breaker  *gobreaker.CircuitBreaker[*Result]
	logger   *zap.Logger
}

type externalRequest struct {
	Schemas []externalSchema `json:"schemas"`
}

type externalSchema struct {
	Raw    string `json:"raw"`
	Source string `json:"source"`
	URL    string `json:"url,omitempty"`
}

type externalResponse struct {
	SDL        string  `json:"sdl,omitempty"`
	Supergraph string  `json:"supergraph,omitempty"`
	Errors     []Error `json:"errors,omitempty"`
}

// NewExternalClient creates a client for the configured composition service.
func NewExternalClient(cfg config.ExternalCompositionConfig, logger *zap.Logger) *ExternalClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &ExternalClient{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		retry:    cfg.Retry,
		logger:   logger,
	}

	if cfg.Breaker.Enabled {
		threshold := cfg.Breaker.FailureThreshold
		if threshold == 0 {
			threshold = 5
		}
		c.breaker = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
			Name:    "external-composition",
			Timeout: cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}

	return c
}

// Compose sends the schema set to the composition service.
func (c *ExternalClient) Compose(ctx context.Context, schemas []schema.Input) (*Result, error) {
	if c.breaker == nil {
		return c.composeWithRetry(ctx, schemas)
	}

	result, err := c.breaker.Execute(func() (*Result, error) {
		return c.composeWithRetry(ctx, schemas)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *ExternalClient) composeWithRetry(ctx context.Context, schemas []schema.Input) (*Result, error) {
	bo := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		bo.InitialInterval = c.retry.InitialInterval
	}
	if c.retry.MaxInterval > 0 {
		bo.MaxInterval = c.retry.MaxInterval
	}

	maxRetries := c.retry.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var result *Result
	operation := func() error {
		var err error
		result, err = c.composeOnce(ctx, schemas)
		return err
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *ExternalClient) composeOnce(ctx context.Context, schemas []schema.Input) (*Result, error) {
	reqBody := externalRequest{Schemas: make([]externalSchema, len(schemas))}
	for i, s := range schemas {
		reqBody.Schemas[i] = externalSchema{
			Raw:    s.SDL,
			Source: s.ServiceName,
			URL:    s.ServiceURL,
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal composition request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("composition service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("composition service returned %d: %s", resp.StatusCode, body))
	}

	var out externalResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode composition response: %w", err))
	}

	return &Result{
		SDL:           out.SDL,
		SupergraphSDL: out.Supergraph,
		Errors:        out.Errors,
	}, nil
}
