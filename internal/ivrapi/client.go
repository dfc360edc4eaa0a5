package ivrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmaisinchop/ivr-frontend-sub000/internal/agent"
	"github.com/jmaisinchop/ivr-frontend-sub000/internal/supervisor"
	"github.com/rs/zerolog"
)

// Client talks to the IVR REST API. Request/response shapes are fixed by the
// backend; this client only moves them across the wire.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a REST client with the given bearer token
func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "ivrapi").Logger(),
	}
}

// MyState retrieves the agent's current server-side state. A 404 means
// there is no active session yet.
func (c *Client) MyState(ctx context.Context) (*agent.Snapshot, error) {
	var snap agent.Snapshot
	if err := c.do(ctx, http.MethodGet, "/agent/me/state", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RequestBreak asks the server to place the agent on break
func (c *Client) RequestBreak(ctx context.Context, reason string) (agent.ActionResult, error) {
	var res agent.ActionResult
	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, "/agent/me/break", body, &res); err != nil {
		return agent.ActionResult{}, err
	}
	return res, nil
}

// ClearBreak asks the server to end the agent's break
func (c *Client) ClearBreak(ctx context.Context) (agent.ActionResult, error) {
	var res agent.ActionResult
	if err := c.do(ctx, http.MethodDelete, "/agent/me/break", nil, &res); err != nil {
		return agent.ActionResult{}, err
	}
	return res, nil
}

// Roster retrieves the control-desk agent projection
func (c *Client) Roster(ctx context.Context) ([]supervisor.Agent, error) {
	var agents []supervisor.Agent
	if err := c.do(ctx, http.MethodGet, "/supervisor/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// Queue retrieves the control-desk waiting-call projection
func (c *Client) Queue(ctx context.Context) ([]supervisor.QueueEntry, error) {
	var entries []supervisor.QueueEntry
	if err := c.do(ctx, http.MethodGet, "/supervisor/queue", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: unexpected status code %d, body: %s",
			method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
