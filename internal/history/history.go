// Package history fetches persisted session messages from the backend's REST
// API. The returned window may be context-limited rather than full history;
// callers must merge it into what they hold, never replace.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/samsaffron/agentwire/internal/timeline"
)

// Client talks to the history endpoint.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a history client for the given base URL (http:// or https://).
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// envelope accepts either {"messages": [...]} or a bare array body.
type envelope struct {
	Messages []json.RawMessage `json:"messages"`
}

// Fetch returns the persisted messages for a session, normalized to the
// canonical model. ids mints ids for records that arrive without one.
func (c *Client) Fetch(ctx context.Context, sessionID string, ids *timeline.IDGen) ([]timeline.Message, error) {
	u, err := url.JoinPath(c.baseURL, "api", "sessions", sessionID, "messages")
	if err != nil {
		return nil, fmt.Errorf("history url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch history: %s: %s", resp.Status, body)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Messages == nil {
		var bare []json.RawMessage
		if err := json.Unmarshal(data, &bare); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		env.Messages = bare
	}
	return timeline.Normalize(env.Messages, ids), nil
}
