// Package client is the HTTP client for the shuttled API, used by the
// CLI and by integration tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shuttle/internal/daemon"
	"shuttle/internal/queue"
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

// Client talks to a running shuttled instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a client for the given server address. The address may
// be a bare host:port or a full URL.
func New(server string, opts ...Option) *Client {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server != "" && !strings.Contains(server, "://") {
		server = "http://" + server
	}
	client := &Client{
		baseURL: server,
		// The logs endpoint long-polls; keep the client timeout above
		// the server's poll window.
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// SubmitRequest mirrors the submit endpoint payload.
type SubmitRequest struct {
	Type           string            `json:"type"`
	Input          []string          `json:"input"`
	TargetLanguage string            `json:"target_language,omitempty"`
	Destination    queue.Destination `json:"destination"`
}

// LogsPage is one page of job log entries.
type LogsPage struct {
	Entries []queue.LogEntry `json:"entries"`
	Next    int64            `json:"next"`
}

// Submit enqueues a new job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*queue.Job, error) {
	var job queue.Job
	if err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// List fetches jobs, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses []string, limit int) ([]*queue.Job, error) {
	params := url.Values{}
	for _, status := range statuses {
		params.Add("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var payload struct {
		Jobs []*queue.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs", params, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

// Get fetches one job by id.
func (c *Client) Get(ctx context.Context, id string) (*queue.Job, error) {
	var job queue.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Logs fetches a job's log entries past the since cursor. With follow
// set the server holds the request until new entries arrive.
func (c *Client) Logs(ctx context.Context, id string, since int64, limit int, follow bool) (*LogsPage, error) {
	params := url.Values{}
	if since > 0 {
		params.Set("since", strconv.FormatInt(since, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		params.Set("follow", "1")
	}
	var page LogsPage
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/logs", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Cancel requests cancellation and returns the job's resulting status.
func (c *Client) Cancel(ctx context.Context, id string) (queue.Status, error) {
	var payload struct {
		Status queue.Status `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &payload); err != nil {
		return "", err
	}
	return payload.Status, nil
}

// Remove deletes a terminal job and its logs.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil, nil)
}

// Status fetches daemon health.
func (c *Client) Status(ctx context.Context) (*daemon.Status, error) {
	var status daemon.Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("no server address configured")
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shuttled unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("%s", payload.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}
