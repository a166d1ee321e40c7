package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
)

// Session title format: teams::<team>::agent::<agentId>::role::<role>.
// External consumers correlate sessions to agents through this.
func SessionTitle(team, agentID, role string) string {
	return fmt.Sprintf("teams::%s::agent::%s::role::%s", team, agentID, role)
}

const (
	promptVerifyTimeout = 5 * time.Second
	promptVerifyTick    = 500 * time.Millisecond
	promptRetryDelay    = 2 * time.Second
	promptMaxAttempts   = 3
)

// Client speaks the opencode SDK HTTP surface for one server.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errdefs.Unavailablef("opencode server: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errdefs.Unavailablef("opencode server: %s %s: %s", path, resp.Status, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errdefs.Unavailablef("opencode server: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errdefs.Unavailablef("opencode server: %s %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateSession opens a session titled for team/agent correlation and
// returns its id (SDK session.new).
func (c *Client) CreateSession(ctx context.Context, title, directory string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.postJSON(ctx, "/session", map[string]any{
		"title":     title,
		"directory": directory,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errdefs.Unavailablef("opencode server returned empty session id")
	}
	return resp.ID, nil
}

// MessageCount returns how many messages the session holds
// (SDK session.messages).
func (c *Client) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var msgs []json.RawMessage
	if err := c.getJSON(ctx, "/session/"+sessionID+"/message", &msgs); err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// Prompt posts a text prompt to the session (SDK session.prompt).
func (c *Client) Prompt(ctx context.Context, sessionID, text, modelID, providerID string) error {
	body := map[string]any{
		"parts": []map[string]any{{"type": "text", "text": text}},
	}
	if modelID != "" {
		body["modelID"] = modelID
	}
	if providerID != "" {
		body["providerID"] = providerID
	}
	return c.postJSON(ctx, "/session/"+sessionID+"/message", body, nil)
}

// PromptResult reports the outcome of SendPromptReliable.
type PromptResult struct {
	Success  bool `json:"success"`
	Attempts int  `json:"attempts"`
}

// SendPromptReliable delivers a prompt with verification: it samples the
// session's message count, posts, then polls until the count strictly
// increases. Up to three attempts with a 2 s pause between them. A
// terminal failure returns Success=false without an error so the caller
// can leave the agent in spawning for manual recovery.
func (c *Client) SendPromptReliable(ctx context.Context, sessionID, text, modelID, providerID string) (PromptResult, error) {
	for attempt := 1; attempt <= promptMaxAttempts; attempt++ {
		before, err := c.MessageCount(ctx, sessionID)
		if err != nil {
			return PromptResult{Attempts: attempt}, err
		}
		if err := c.Prompt(ctx, sessionID, text, modelID, providerID); err != nil {
			return PromptResult{Attempts: attempt}, err
		}
		deadline := time.Now().Add(promptVerifyTimeout)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return PromptResult{Attempts: attempt}, ctx.Err()
			case <-time.After(promptVerifyTick):
			}
			after, err := c.MessageCount(ctx, sessionID)
			if err != nil {
				continue
			}
			if after > before {
				return PromptResult{Success: true, Attempts: attempt}, nil
			}
		}
		if attempt < promptMaxAttempts {
			select {
			case <-ctx.Done():
				return PromptResult{Attempts: attempt}, ctx.Err()
			case <-time.After(promptRetryDelay):
			}
		}
	}
	return PromptResult{Success: false, Attempts: promptMaxAttempts}, nil
}
