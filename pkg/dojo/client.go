// Package dojo is a minimal DefectDojo REST client covering the product
// type surface the orchestrator needs: fetch a product type and patch its
// description field.
package dojo

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
)

// ProductType is the subset of the DefectDojo product type resource the
// orchestrator consumes. Name and Updated feed the input fingerprint,
// Description carries the embedded state block.
type ProductType struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Updated     string `json:"updated"`
	UpdatedAt   string `json:"updated_at"`
}

// UpdatedMarker returns whichever updated timestamp the API populated.
func (pt ProductType) UpdatedMarker() string {
	if pt.Updated != "" {
		return pt.Updated
	}
	return pt.UpdatedAt
}

// APIError is a non-2xx response from the DefectDojo API.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("dojo %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsAuth reports a 401/403-equivalent rejection.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsTransient reports a rate-limit or server-error class response.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to a DefectDojo instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outgoing API calls per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewClient builds a Client for the given API v2 base URL and token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProductType fetches one product type by id.
func (c *Client) ProductType(ctx context.Context, id int) (ProductType, error) {
	var pt ProductType
	endpoint := fmt.Sprintf("/product_types/%d/", id)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &pt); err != nil {
		return ProductType{}, err
	}
	return pt, nil
}

// PatchDescription replaces the product type's description field.
func (c *Client) PatchDescription(ctx context.Context, id int, description string) error {
	endpoint := fmt.Sprintf("/product_types/%d/", id)
	payload := map[string]string{"description": description}
	return c.do(ctx, http.MethodPatch, endpoint, payload, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", endpoint, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Str("method", method).Str("endpoint", endpoint).Msg("dojo api call")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dojo %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Body:       truncate(string(data), 200),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
