package opencode

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// SSE event types surfaced by the opencode server.
const (
	SSESessionIdle      = "session.idle"
	SSESessionUpdated   = "session.updated"
	SSESessionError     = "session.error"
	SSEToolExecuteAfter = "tool.execute.after"
)

// StreamEvent is one server-sent event from event.list().
type StreamEvent struct {
	Type       string `json:"type"`
	Properties struct {
		SessionID string          `json:"sessionID"`
		Error     json.RawMessage `json:"error,omitempty"`
	} `json:"properties"`
}

// StreamHandler consumes one decoded event.
type StreamHandler func(ctx context.Context, ev StreamEvent)

// Consumer follows a server's SSE stream, reconnecting until ctx ends.
// Reconnects are paced by a rate limiter so a flapping server is not
// hammered.
type Consumer struct {
	baseURL string
	limiter *rate.Limiter
}

func NewConsumer(baseURL string) *Consumer {
	return &Consumer{
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Run blocks consuming the stream, invoking handler per event, until ctx
// is cancelled. Stream errors trigger reconnects, never a return.
func (c *Consumer) Run(ctx context.Context, handler StreamHandler) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.consumeOnce(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("event stream interrupted, reconnecting", "url", c.baseURL, "error", err)
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, handler StreamHandler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var ev StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			slog.Debug("unparseable stream event", "payload", payload, "error", err)
			continue
		}
		handler(ctx, ev)
	}
	return scanner.Err()
}
