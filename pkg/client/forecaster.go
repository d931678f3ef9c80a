// Package client provides an HTTP client for the forecaster's serve mode.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pramodhsway/microcast/pkg/features"
	"github.com/pramodhsway/microcast/pkg/storage"
)

// ErrNotFound is returned when the forecaster holds no forecast for an entity.
var ErrNotFound = errors.New("forecast not found")

// ForecasterClient fetches stored entity forecasts over HTTP.
// It is safe for concurrent use by multiple goroutines.
type ForecasterClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewForecasterClient creates a client with a 5 second request timeout.
// The baseURL should include the scheme and host (e.g., "http://localhost:8081").
func NewForecasterClient(baseURL string) *ForecasterClient {
	return NewForecasterClientWithTimeout(baseURL, 5*time.Second)
}

// NewForecasterClientWithTimeout creates a new client with a custom timeout.
func NewForecasterClientWithTimeout(baseURL string, timeout time.Duration) *ForecasterClient {
	return &ForecasterClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// EntitiesResponse is the body of GET /forecast/entities.
type EntitiesResponse struct {
	Entities []string `json:"entities"`
}

// GetEntityForecast fetches the stored forecast for one entity. A missing
// entity yields an error wrapping ErrNotFound.
func (c *ForecasterClient) GetEntityForecast(ctx context.Context, entityID string) (*storage.EntityForecast, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id cannot be empty")
	}

	var out storage.EntityForecast
	query := url.Values{"entity_id": []string{entityID}}
	if err := c.get(ctx, "/forecast/entity", query, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("entity %q: %w", entityID, err)
		}
		return nil, err
	}
	return &out, nil
}

// ListEntities returns the ids of every stored forecast.
func (c *ForecasterClient) ListEntities(ctx context.Context) ([]string, error) {
	var out EntitiesResponse
	if err := c.get(ctx, "/forecast/entities", nil, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

// GetSummary returns the summary of the historical table of the last run.
func (c *ForecasterClient) GetSummary(ctx context.Context) (*features.Summary, error) {
	var out features.Summary
	if err := c.get(ctx, "/forecast/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ForecasterClient) get(ctx context.Context, path string, query url.Values, v any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsStale reports whether a forecast is older than staleAfter.
func IsStale(f storage.EntityForecast, staleAfter time.Duration) bool {
	return time.Since(f.GeneratedAt) > staleAfter
}
