// Package scan triggers media-server library rescans after delivery.
package scan

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shuttle/internal/queue"
	"shuttle/internal/services"
)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Client calls the media server's library refresh endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a scan client for the given server.
func New(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Scan requests a full library refresh. The server performs the scan
// asynchronously; an accepted response is success.
func (c *Client) Scan(ctx context.Context) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrScan, string(queue.PhaseScanning), "scan", "missing server url", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Library/Refresh", nil)
	if err != nil {
		return services.Wrap(services.ErrScan, string(queue.PhaseScanning), "scan", "build request", err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrScan, string(queue.PhaseScanning), "scan", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return services.Wrap(services.ErrScan, string(queue.PhaseScanning), "scan", fmt.Sprintf("server returned %d", resp.StatusCode), nil)
}

var _ services.LibraryScanner = (*Client)(nil)
