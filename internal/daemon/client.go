package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client queries a running daemon's status server.
type Client struct {
	addr       string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the daemon listening on addr, e.g.
// ":9310" or "http://node1:9310".
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		if strings.HasPrefix(base, ":") {
			base = "localhost" + base
		}
		base = "http://" + base
	}

	return &Client{
		addr:    addr,
		baseURL: strings.TrimRight(base, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Status gets the current status from the daemon.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var result StatusResponse
	if err := c.get(ctx, "/status", true, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health gets the daemon health. A degraded daemon answers 503 with a
// body, which is returned without error.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var result HealthStatus
	if err := c.get(ctx, "/health", false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks if the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

func (c *Client) get(ctx context.Context, path string, requireOK bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon at %s: %w", c.addr, err)
	}
	defer resp.Body.Close()

	if requireOK && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
