// Package apiclient is the consolectl side of the console HTTP API.
package apiclient

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

	"github.com/vpnconsole/vpnconsole/internal/logs"
	"github.com/vpnconsole/vpnconsole/internal/service"
	"github.com/vpnconsole/vpnconsole/internal/sessions"
)

// Client talks to a consoled instance.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client for baseURL (e.g. "http://127.0.0.1:5000"). Actions
// may take up to the daemon's action timeout per service, so the default
// HTTP timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Status is the /api/status response.
type Status struct {
	Success    bool                             `json:"success"`
	Timestamp  string                           `json:"timestamp"`
	Containers map[string]service.ServiceStatus `json:"containers"`
	Health     json.RawMessage                  `json:"health"`
	System     struct {
		Uptime    string `json:"uptime"`
		Timestamp string `json:"timestamp"`
	} `json:"system"`
}

// ActionResult is the /api/service/action response.
type ActionResult struct {
	Success      bool              `json:"success"`
	AllSucceeded bool              `json:"all_succeeded"`
	Message      string            `json:"message"`
	Error        *string           `json:"error"`
	Outcomes     []service.Outcome `json:"outcomes"`
}

// Logs is the /api/logs response.
type Logs struct {
	Success  bool           `json:"success"`
	Logs     string         `json:"logs"`
	Sections []logs.Section `json:"sections"`
}

// Clients is the /api/clients response.
type Clients struct {
	Success bool                     `json:"success"`
	Clients []sessions.ClientSession `json:"clients"`
	Count   int                      `json:"count"`
}

// CreateRequest is the /api/client/create request body.
type CreateRequest struct {
	Name    string `json:"name"`
	Android bool   `json:"android"`
	Inline  bool   `json:"inline"`
}

// Created is the /api/client/create response.
type Created struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ClientName string `json:"client_name"`
	ConfigPath string `json:"config_path"`
}

// Health is the /api/health response.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Status fetches the service status snapshot.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	return &out, c.do(ctx, http.MethodGet, "/api/status", nil, &out)
}

// Action applies action to target ("all" or a service id).
func (c *Client) Action(ctx context.Context, action, target string) (*ActionResult, error) {
	var out ActionResult
	body := map[string]string{"action": action, "service": target}
	return &out, c.do(ctx, http.MethodPost, "/api/service/action", body, &out)
}

// Logs fetches the last lines of target's logs. lines <= 0 uses the
// server default.
func (c *Client) Logs(ctx context.Context, target string, lines int) (*Logs, error) {
	q := url.Values{}
	if target != "" {
		q.Set("service", target)
	}
	if lines > 0 {
		q.Set("lines", strconv.Itoa(lines))
	}
	path := "/api/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out Logs
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Clients lists connected VPN clients.
func (c *Client) Clients(ctx context.Context) (*Clients, error) {
	var out Clients
	return &out, c.do(ctx, http.MethodGet, "/api/clients", nil, &out)
}

// CreateClient generates a client profile.
func (c *Client) CreateClient(ctx context.Context, req CreateRequest) (*Created, error) {
	var out Created
	return &out, c.do(ctx, http.MethodPost, "/api/client/create", req, &out)
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	return &out, c.do(ctx, http.MethodGet, "/api/health", nil, &out)
}

// do sends one request and decodes the JSON response into out. Responses
// carrying success=false are returned as errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("API call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var envelope struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("API error: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode >= 300 || (envelope.Success != nil && !*envelope.Success) {
		if envelope.Error != "" {
			return fmt.Errorf("API error: %s", envelope.Error)
		}
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
