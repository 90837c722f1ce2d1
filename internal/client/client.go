// Package client provides an HTTP client for the retrieval endpoints, used
// by the agent layer and by external callers. Transient upstream failures
// are retried with exponential backoff before the caller sees an error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/shopgenie-go/internal/logging"
	"github.com/54b3r/shopgenie-go/internal/retrieval"
)

// maxRetries bounds the retry loop: one initial attempt plus three retries.
const maxRetries = 3

// retryableStatus lists the upstream statuses worth retrying. Embedding
// backends surface transient overload as 422 or 429 alongside the usual
// 5xx gateway failures.
var retryableStatus = map[int]bool{
	http.StatusUnprocessableEntity: true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// TextQuery is the request body for a text retrieval call.
type TextQuery struct {
	// Queries is the list of search strings to fan out.
	Queries []string `json:"text"`
	// Categories narrows the allowed-category list for this request.
	// Omitted means the server's configured list.
	Categories []string `json:"categories,omitempty"`
	// K overrides the number of results to return.
	K int `json:"k,omitempty"`
}

// ImageQuery is the request body for an image retrieval call.
type ImageQuery struct {
	// Queries is the optional list of search strings.
	Queries []string `json:"text,omitempty"`
	// Image is the image reference: a base64 data URI or URL.
	Image string `json:"image_base64"`
	// Categories narrows the allowed-category list for this request.
	Categories []string `json:"categories,omitempty"`
	// K overrides the number of results to return.
	K int `json:"k,omitempty"`
}

// Client calls the retrieval HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the retrieval API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryText runs a multi-query text retrieval.
func (c *Client) QueryText(ctx context.Context, queries []string) (*retrieval.Results, error) {
	return c.post(ctx, "/query/text", TextQuery{Queries: queries})
}

// QueryImage runs an image retrieval, optionally alongside text queries.
func (c *Client) QueryImage(ctx context.Context, queries []string, image string) (*retrieval.Results, error) {
	return c.post(ctx, "/query/image", ImageQuery{Queries: queries, Image: image})
}

// Search runs a retrieval restricted to the given categories, choosing the
// text or image endpoint by whether image is set. The signature matches the
// agent's search seam, so a remote retrieval service can stand in for the
// in-process retriever.
func (c *Client) Search(ctx context.Context, queries []string, image string, categories []string) (*retrieval.Results, error) {
	if image != "" {
		return c.post(ctx, "/query/image", ImageQuery{Queries: queries, Image: image, Categories: categories})
	}
	return c.post(ctx, "/query/text", TextQuery{Queries: queries, Categories: categories})
}

// post sends one JSON request with retry on transient statuses.
func (c *Client) post(ctx context.Context, path string, body any) (*retrieval.Results, error) {
	log := logging.FromContext(ctx)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("client: marshal request: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)

	var results *retrieval.Results
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("client: create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Network failures are retryable.
			return fmt.Errorf("client: %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err := fmt.Errorf("client: %s returned %d: %s", path, resp.StatusCode, raw)
			if retryableStatus[resp.StatusCode] {
				log.Warn("retrieval call failed, retrying", "path", path, "status", resp.StatusCode, "attempt", attempt)
				return err
			}
			return backoff.Permanent(err)
		}

		var out retrieval.Results
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("client: decode response: %w", err))
		}
		results = &out
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return results, nil
}
