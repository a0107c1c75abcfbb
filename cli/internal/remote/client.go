package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pikaboard/pikausage/internal/model"
)

// Client fetches usage reports from a running pikausage-server
type Client struct {
	server     string
	apiKey     string
	httpClient *http.Client
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a new report client
func NewClient(server, apiKey string) *Client {
	return &Client{
		server: strings.TrimRight(server, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Report fetches the current report
func (c *Client) Report(ctx context.Context) (*model.UsageReport, error) {
	var report model.UsageReport
	if err := c.do(ctx, http.MethodGet, "/usage", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Refresh asks the server to recompute and returns the new report
func (c *Client) Refresh(ctx context.Context) (*model.UsageReport, error) {
	var report model.UsageReport
	if err := c.do(ctx, http.MethodPost, "/usage/refresh?wait=true", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Diagnostics fetches the diagnostics of the server's last scan
func (c *Client) Diagnostics(ctx context.Context) (*model.ScanDiagnostics, error) {
	var diag model.ScanDiagnostics
	if err := c.do(ctx, http.MethodGet, "/usage/diagnostics", &diag); err != nil {
		return nil, err
	}
	return &diag, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.server+path, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
