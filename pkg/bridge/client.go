// Package bridge speaks to the local token-bridge server, which holds
// the authenticated browser session and proxies platform API calls.
// Everything network-facing lives here; the rest of the system sees
// only collaborator functions.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mikesmullin/slack/pkg/logger"
)

// Client calls the bridge's HTTP API.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     logger.Logger
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		log:     logger.Component("bridge"),
	}
}

// Status is the bridge's readiness report.
type Status struct {
	Ready         bool   `json:"ready"`
	Authenticated bool   `json:"authenticated"`
	HasToken      bool   `json:"has_token"`
	URL           string `json:"url"`
}

type apiRequest struct {
	Endpoint string         `json:"endpoint"`
	Params   map[string]any `json:"params,omitempty"`
}

// Call proxies one platform API call through the bridge and returns
// the raw response body. A response with ok=false is an error carrying
// the platform's error code.
func (c *Client) Call(ctx context.Context, endpoint string, params map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(apiRequest{Endpoint: endpoint, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge call %s: status %d", endpoint, resp.StatusCode)
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("bridge call %s: parse response: %w", endpoint, err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("bridge call %s: %s", endpoint, envelope.Error)
	}
	return data, nil
}

// Status reports whether the bridge is up and authenticated.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}
