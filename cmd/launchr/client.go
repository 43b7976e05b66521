package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/loykin/launchr/internal/orchestrator"
)

const defaultAPIURL = "http://127.0.0.1:8090/api"

// APIClient talks to a running supervisor's HTTP API.
type APIClient struct {
	client *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &APIClient{client: c}
}

// GetState fetches the last published state.
func (c *APIClient) GetState(ctx context.Context) (orchestrator.State, error) {
	var st orchestrator.State
	var apiErr apiError
	resp, err := c.client.R().SetContext(ctx).SetResult(&st).SetError(&apiErr).Get("/state")
	if err != nil {
		return st, fmt.Errorf("get state: %w", err)
	}
	if resp.IsError() {
		return st, fmt.Errorf("get state: %s: %s", resp.Status(), apiErr.Error)
	}
	return st, nil
}

// SendIntent posts a raw intent payload. The server answers 202 once queued.
func (c *APIClient) SendIntent(ctx context.Context, payload []byte) error {
	var apiErr apiError
	resp, err := c.client.R().SetContext(ctx).SetBody(payload).SetError(&apiErr).Post("/intent")
	if err != nil {
		return fmt.Errorf("send intent: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send intent: %s: %s", resp.Status(), apiErr.Error)
	}
	return nil
}
