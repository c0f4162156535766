// Package tmdb implements the TMDB client used strictly as a secondary
// enrichment source: series ids and episode titles, never identity.
package tmdb

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
)

// Result represents a single TMDB search match.
type Result struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	FirstAirDate string `json:"first_air_date"`
}

// searchResponse models the TMDB paginated search payload.
type searchResponse struct {
	Results []Result `json:"results"`
}

// Episode describes a single TMDB episode entry.
type Episode struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
}

type seasonResponse struct {
	Episodes []Episode `json:"episodes"`
}

// Client provides access to the TMDB API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ metadata.Enricher = (*Client)(nil)

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

// New creates a TMDB client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
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

// FindSeriesID searches TMDB for a series id matching the already-resolved
// title. A miss returns (0, nil).
func (c *Client) FindSeriesID(ctx context.Context, title string, year int) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, errors.New("title must not be empty")
	}
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", title)
	if year > 0 {
		params.Set("first_air_date_year", strconv.Itoa(year))
	}

	var payload searchResponse
	if err := c.get(ctx, "/search/tv", params, &payload); err != nil {
		return 0, err
	}
	if len(payload.Results) == 0 {
		return 0, nil
	}
	return payload.Results[0].ID, nil
}

// SeasonEpisodes returns the episode list for one season of a series.
func (c *Client) SeasonEpisodes(ctx context.Context, seriesID int64, season int) ([]Episode, error) {
	if seriesID <= 0 {
		return nil, errors.New("series id must be positive")
	}
	params := url.Values{}
	params.Set("api_key", c.apiKey)

	var payload seasonResponse
	path := fmt.Sprintf("/tv/%d/season/%d", seriesID, season)
	if err := c.get(ctx, path, params, &payload); err != nil {
		return nil, err
	}
	return payload.Episodes, nil
}

// EpisodeTitle resolves one episode's name from its season listing. A
// season that lacks the episode returns "" without error.
func (c *Client) EpisodeTitle(ctx context.Context, seriesID int64, season, episode int) (string, error) {
	episodes, err := c.SeasonEpisodes(ctx, seriesID, season)
	if err != nil {
		return "", err
	}
	for _, entry := range episodes {
		if entry.EpisodeNumber == episode {
			return entry.Name, nil
		}
	}
	return "", nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb returned %d (latency=%v)", resp.StatusCode, latency)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}
