// Package evcc fetches completed charging sessions from a local EVCC
// controller over its REST API.
package evcc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to an EVCC instance.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates an EVCC client for the given base URL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:7070"
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// sessionsEnvelope covers the wrapped response shape newer EVCC versions
// return.
type sessionsEnvelope struct {
	Result json.RawMessage `json:"result"`
}

// Sessions returns the raw session objects from /api/sessions. The endpoint
// returns either a bare JSON array or a {"result": [...]} wrapper depending
// on the EVCC version; both are handled. Each element is passed through
// undecoded so the parser sees exactly what the controller sent.
func (c *Client) Sessions(ctx context.Context) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/api/sessions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling evcc API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("evcc API error (status %d): %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var sessions []json.RawMessage
	if err := json.Unmarshal(body, &sessions); err == nil {
		return sessions, nil
	}

	var envelope sessionsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Result == nil {
		return nil, fmt.Errorf("decoding sessions response: %s", snippet(body))
	}
	if err := json.Unmarshal(envelope.Result, &sessions); err != nil {
		return nil, fmt.Errorf("decoding sessions result: %w", err)
	}
	return sessions, nil
}

func snippet(body []byte) string {
	if len(body) > 120 {
		body = body[:120]
	}
	return string(body)
}
