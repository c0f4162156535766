// Package omdb implements the OMDb lookup used as shuttle's primary
// identification source.
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shuttle/internal/metadata"
	"shuttle/internal/services"
)

// response models the OMDb title lookup payload.
type response struct {
	Title    string `json:"Title"`
	Year     string `json:"Year"`
	Type     string `json:"Type"`
	Language string `json:"Language"`
	Country  string `json:"Country"`
	IMDbID   string `json:"imdbID"`
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// Client provides access to the OMDb API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ metadata.Identifier = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates an OMDb client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("omdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("omdb base url required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Identify looks up a title by name and optional year. A miss returns
// (nil, nil); transport and server failures are tagged transient so the
// retry controller can rerun them.
func (c *Client) Identify(ctx context.Context, title string, year int) (*metadata.Identity, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title must not be empty")
	}

	endpoint, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("parse omdb url: %w", err)
	}
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("t", title)
	if year > 0 {
		params.Set("y", strconv.Itoa(year))
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "omdb lookup", "execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "", "omdb lookup", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode omdb response: %w", err)
	}
	if !strings.EqualFold(payload.Response, "True") {
		// OMDb reports misses in-band; a miss is not an error.
		return nil, nil
	}

	identity := &metadata.Identity{
		Title:    strings.TrimSpace(payload.Title),
		IMDbID:   strings.TrimSpace(payload.IMDbID),
		Series:   strings.EqualFold(payload.Type, "series"),
		Language: strings.TrimSpace(payload.Language),
	}
	identity.Year = parseYear(payload.Year)
	return identity, nil
}

// parseYear handles both "2020" and series ranges like "2018–2021".
func parseYear(value string) int {
	value = strings.TrimSpace(value)
	for i, r := range value {
		if r < '0' || r > '9' {
			value = value[:i]
			break
		}
	}
	if len(value) != 4 {
		return 0
	}
	year, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return year
}
