// Package coderunner calls the execute-code function on behalf of the
// lesson engine.
package coderunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeowl/platform/internal/lesson/engine"
)

// Client posts learner code to the execute-code endpoint.
type Client struct {
	url        string
	serviceKey string
	http       *http.Client
}

func NewClient(url, serviceKey string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Execute runs code and returns the sandbox result. A non-200 answer from
// the function is an error.
func (c *Client) Execute(ctx context.Context, code string) (*engine.ExecutionResult, error) {
	body, err := json.Marshal(executeRequest{Code: code})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute code: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("execute code: status %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("execute code: status %d", resp.StatusCode)
	}

	var result engine.ExecutionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
