// Package render is the client side of the page render gateway: an external
// headless-browser service that turns a profile URL into a raster snapshot.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxSnapshotBytes = 32 * 1024 * 1024

// Client calls the screenshot service over HTTP.
type Client struct {
	serviceURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a render gateway client with a bounded per-call timeout.
func NewClient(serviceURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serviceURL: serviceURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type snapshotRequest struct {
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FullPage bool   `json:"fullPage"`
}

// Snapshot renders the page at url and returns the raw encoded screenshot.
// Any error here is a transient infrastructure fault, not a verdict on the
// page content.
func (c *Client) Snapshot(ctx context.Context, url string) ([]byte, error) {
	body, err := json.Marshal(snapshotRequest{URL: url, Width: 1920, Height: 1080})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("render %s: empty snapshot", url)
	}
	return data, nil
}
