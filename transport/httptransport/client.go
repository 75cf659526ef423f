// Package httptransport provides a client and server implementation of
// the batch transport over HTTP with JSON bodies.
package httptransport

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	syncErrors "github.com/driftsync/driftsync/errors"
	"github.com/driftsync/driftsync/transport"
)

// Limits defines size limits for the HTTP client.
type Limits struct {
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
}

// Client implements transport.Transport against a remote sync server.
type Client struct {
	baseURL       string
	http          *http.Client
	limits        Limits
	gzipRequests  bool
	gzipThreshold int64
}

var _ transport.Transport = (*Client)(nil)

// ClientOption configures a Client using the functional options pattern
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(cl *http.Client) ClientOption {
	return func(c *Client) {
		c.http = cl
	}
}

// WithLimits sets the response size limits
func WithLimits(l Limits) ClientOption {
	return func(c *Client) {
		c.limits = l
	}
}

// WithCompression enables gzip compression of request bodies at or
// above the given size in bytes.
func WithCompression(threshold int64) ClientOption {
	return func(c *Client) {
		c.gzipRequests = true
		c.gzipThreshold = threshold
	}
}

// NewClient creates a transport client for the given base URL,
// e.g. "http://sync.example.com/sync".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limits: Limits{
			MaxBodyBytes: 8 << 20, // 8MB
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the base URL for the client
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendBatch posts the batch to the server and decodes the ordered
// per-operation results. Network and server errors come back retryable;
// a malformed response does not.
func (c *Client) SendBatch(ctx context.Context, req *transport.BatchRequest) (*transport.BatchResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpSendBatch, "transport",
			fmt.Errorf("failed to marshal batch: %w", err))
	}

	compressed := false
	if c.gzipRequests && int64(len(payload)) >= c.gzipThreshold {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err == nil && gz.Close() == nil {
			payload = buf.Bytes()
			compressed = true
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batch", bytes.NewReader(payload))
	if err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpSendBatch, "transport",
			fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if compressed {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, syncErrors.NewNetworkError(syncErrors.OpSendBatch,
			fmt.Errorf("network error: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, c.limits.MaxBodyBytes))
		return nil, syncErrors.NewNetworkError(syncErrors.OpSendBatch,
			fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(body)))
	}

	var batchResp transport.BatchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.limits.MaxBodyBytes)).Decode(&batchResp); err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpSendBatch, "transport",
			fmt.Errorf("failed to decode response: %w", err))
	}

	if err := batchResp.Validate(req); err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpSendBatch, "transport",
			fmt.Errorf("response does not answer request: %w", err))
	}

	return &batchResp, nil
}

// Probe issues a GET against the health endpoint.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return syncErrors.NewWithComponent(syncErrors.OpProbe, "transport",
			fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return syncErrors.NewNetworkError(syncErrors.OpProbe,
			fmt.Errorf("network error: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return syncErrors.NewNetworkError(syncErrors.OpProbe,
			fmt.Errorf("server error (status %d)", resp.StatusCode))
	}
	return nil
}

// Close does nothing for this transport, as the underlying http.Client
// is managed externally.
func (c *Client) Close() error {
	return nil
}
