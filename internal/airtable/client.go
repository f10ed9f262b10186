// Package airtable is the record-store client. Records are opaque
// id + field maps; pagination happens internally so callers always see
// the full result set.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/framegraph/framegraph/internal/retry"
)

// DefaultBaseURL is the public Airtable API endpoint.
const DefaultBaseURL = "https://api.airtable.com/v0"

// Record is one row from the record store.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Config holds the connection details for one base/table.
type Config struct {
	BaseURL  string
	APIKey   string
	BaseID   string
	Table    string
	MinDelay time.Duration
}

// Client talks to one Airtable table. Calls are rate limited by a
// minimum delay between requests and retried per the policy.
type Client struct {
	httpClient *http.Client
	config     Config
	policy     retry.Policy
	logger     *slog.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// NewClient builds a Client. A zero MinDelay disables rate limiting.
func NewClient(config Config, policy retry.Policy, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     config,
		policy:     policy,
		logger:     logger,
	}
}

func (c *Client) tableURL() string {
	return fmt.Sprintf("%s/%s/%s", c.config.BaseURL, c.config.BaseID, url.PathEscape(c.config.Table))
}

// throttle enforces the minimum delay between calls to the record
// store. Plain sleeping, no locking held while waiting on the API.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	wait := c.config.MinDelay - now.Sub(c.lastCall)
	if wait < 0 {
		wait = 0
	}
	c.lastCall = now.Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// FindRecords returns every record matching the filter formula,
// following pagination offsets until the store is exhausted.
func (c *Client) FindRecords(ctx context.Context, filter string) ([]Record, error) {
	var all []Record
	offset := ""
	for {
		page, next, err := c.fetchPage(ctx, filter, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		offset = next
	}
}

func (c *Client) fetchPage(ctx context.Context, filter, offset string) ([]Record, string, error) {
	var result listResponse
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		if err := c.throttle(ctx); err != nil {
			return err
		}

		query := url.Values{}
		if filter != "" {
			query.Set("filterByFormula", filter)
		}
		if offset != "" {
			query.Set("offset", offset)
		}
		reqURL := c.tableURL()
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("record store request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("record store returned status %d: %s", resp.StatusCode, body)
		}

		result = listResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode record store response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return result.Records, result.Offset, nil
}

// UpdateRecord patches the given fields on one record.
func (c *Client) UpdateRecord(ctx context.Context, id string, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("failed to marshal record update: %w", err)
	}

	return c.policy.Do(ctx, func(ctx context.Context) error {
		if err := c.throttle(ctx); err != nil {
			return err
		}

		reqURL := c.tableURL() + "/" + url.PathEscape(id)
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, reqURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("record store update failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("record store returned status %d: %s", resp.StatusCode, body)
		}
		c.logger.Debug("record updated", "record_id", id)
		return nil
	})
}
