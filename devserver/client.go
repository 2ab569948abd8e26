// Package devserver provides the HTTP client for the local flag dev server's
// polling protocol: project discovery, snapshot fetches, and override
// mutations.
package devserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Project identifies one project served by the dev server.
type Project struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// FlagState is one flag's evaluated state in a snapshot.
type FlagState struct {
	Value     any  `json:"value"`
	Version   int  `json:"version,omitempty"`
	Variation *int `json:"variation,omitempty"`
}

// Override is a server-side override entry in a snapshot.
type Override struct {
	Value  any  `json:"value"`
	Active bool `json:"active"`
}

// Variation is one selectable value of a flag.
type Variation struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value"`
}

// Snapshot is the dev server's full response for one project.
type Snapshot struct {
	FlagsState           map[string]FlagState   `json:"flagsState"`
	Overrides            map[string]Override    `json:"overrides"`
	AvailableVariations  map[string][]Variation `json:"availableVariations"`
	SourceEnvironmentKey string                 `json:"sourceEnvironmentKey"`
	LastSyncedFromSource int64                  `json:"_lastSyncedFromSource"`
}

// APIError is returned when the dev server responds with an HTTP error
// status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("devserver: HTTP %d: %s", e.StatusCode, e.Message)
}

// Config holds configuration for the dev server client.
type Config struct {
	// BaseURL is the dev server's base URL, e.g. "http://localhost:8765".
	BaseURL string
	// HTTPClient is optional; defaults to a client with an
	// OpenTelemetry-instrumented transport.
	HTTPClient *http.Client
}

// Client talks to the dev server. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a new dev server client.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
	}
}

// Projects lists the projects the dev server is serving.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.get(ctx, "/api/projects", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ProjectSnapshot fetches the current flag snapshot for one project.
func (c *Client) ProjectSnapshot(ctx context.Context, projectKey string) (Snapshot, error) {
	var snap Snapshot
	if err := c.get(ctx, "/api/projects/"+projectKey, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// PutOverride sets a server-side override for one flag.
func (c *Client) PutOverride(ctx context.Context, projectKey, flagKey string, value any) error {
	body, err := sonic.Marshal(map[string]any{"value": value})
	if err != nil {
		return fmt.Errorf("devserver: marshal override: %w", err)
	}
	return c.do(ctx, http.MethodPut, c.overridePath(projectKey, flagKey), body, nil)
}

// DeleteOverride removes the server-side override for one flag.
func (c *Client) DeleteOverride(ctx context.Context, projectKey, flagKey string) error {
	return c.do(ctx, http.MethodDelete, c.overridePath(projectKey, flagKey), nil, nil)
}

// ClearOverrides removes every server-side override for the project.
func (c *Client) ClearOverrides(ctx context.Context, projectKey string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+projectKey+"/overrides", nil, nil)
}

func (c *Client) overridePath(projectKey, flagKey string) string {
	return "/api/projects/" + projectKey + "/overrides/" + flagKey
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("devserver: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("devserver: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("devserver: read response: %w", err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("devserver: decode response: %w", err)
	}
	return nil
}
