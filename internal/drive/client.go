// Package drive is the file-store client: download raw bytes by id.
package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/framegraph/framegraph/internal/retry"
)

// DefaultBaseURL is the Google Drive v3 files endpoint.
const DefaultBaseURL = "https://www.googleapis.com/drive/v3/files"

// Config holds the file-store connection details.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client downloads file contents from the file store.
type Client struct {
	httpClient *http.Client
	config     Config
	policy     retry.Policy
}

// NewClient builds a Client.
func NewClient(config Config, policy retry.Policy) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		config:     config,
		policy:     policy,
	}
}

// Download fetches the raw bytes of one file.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s/%s?alt=media", c.config.BaseURL, url.PathEscape(fileID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("file store request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("file store returned status %d: %s", resp.StatusCode, body)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", fileID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
