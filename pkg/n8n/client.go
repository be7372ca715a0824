// Package n8n invokes the stage workflows through the n8n execution API
// and normalizes their responses into the shared result contract.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/autojp/autojp/pkg/retry"
)

// UnreachableError means the request never reached the workflow engine at
// all: DNS failure, refused connection, broken transport. Retryable like
// any transient failure, but kept distinct so a run can tell "the trigger
// endpoint is down" apart from individual workflow failures.
type UnreachableError struct {
	URL   string
	Cause error
}

// Error implements the error interface.
func (e *UnreachableError) Error() string {
	return fmt.Sprintf("workflow engine unreachable at %s: %v", e.URL, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *UnreachableError) Unwrap() error { return e.Cause }

// Is checks if the error matches retry.ErrTransient.
func (e *UnreachableError) Is(target error) bool { return target == retry.ErrTransient }

// Client calls the n8n REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps workflow executions per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewClient builds a Client for the given n8n base URL. The API key is
// optional for unsecured instances.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// The transport-level timeout stays generous; per-invocation
		// deadlines come from the caller's context.
		http:    &http.Client{Timeout: 15 * time.Minute},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs a workflow synchronously and returns the raw execution
// payload. The call blocks until the workflow finishes, the context
// deadline expires, or the API rejects the request.
func (c *Client) Execute(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"workflowData":       nil,
		"input":              []any{input},
		"waitTillCompletion": true,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode execute request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/workflows/%s/execute", c.baseURL, workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-N8N-API-KEY", c.apiKey)
	}

	log.Debug().Str("workflow_id", workflowID).Msg("executing workflow")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UnreachableError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read execute response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &retry.AuthError{
			Endpoint: url,
			Cause:    fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &retry.TransientError{
			Op:    "execute workflow " + workflowID,
			Cause: fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("execute workflow %s: status %d", workflowID, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode execute response: %w", err)
	}
	return payload, nil
}
