package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/opencode-teams/internal/opencode"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/tmux"
)

// captureLines is how much pane scrollback is carried into the
// continuation prompt on session rotation.
const captureLines = 200

// contextLimitMarkers identify session.error payloads caused by the
// model hitting its context window.
var contextLimitMarkers = []string{"context_length", "context limit", "maximum context", "prompt is too long"}

func isContextLimit(errPayload string) bool {
	lower := strings.ToLower(errPayload)
	for _, marker := range contextLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// handleSessionError routes session.error events. Context-limit errors
// rotate the session; anything else is recorded on the agent.
func (m *Manager) handleSessionError(ctx context.Context, agent *state.AgentState, errPayload string) {
	if !isContextLimit(errPayload) {
		m.registry.Mutate(agent.ID, func(a *state.AgentState) error {
			a.LastError = errPayload
			return nil
		})
		return
	}
	if err := m.RotateSession(ctx, agent.ID); err != nil {
		slog.Error("context-limit session rotation failed", "agent", agent.ID, "error", err)
	}
}

// RotateSession recovers a context-limited agent: capture recent pane
// output, open a fresh session, re-attach the pane, and continue with
// the captured context folded into the prompt.
func (m *Manager) RotateSession(ctx context.Context, agentID string) error {
	agent, err := m.registry.Get(agentID)
	if err != nil {
		return err
	}
	info, err := m.server.EnsureRunning(ctx, agent.Cwd)
	if err != nil {
		return err
	}
	client := opencode.NewClient(info.BaseURL())

	var captured string
	if agent.PaneID != "" {
		captured, err = m.tmux.CapturePane(ctx, agent.PaneID, captureLines)
		if err != nil {
			slog.Warn("pane capture failed, continuing without context", "agent", agentID, "error", err)
		}
	}

	sessionID, err := client.CreateSession(ctx,
		opencode.SessionTitle(agent.TeamName, agent.ID, agent.Role), agent.Cwd)
	if err != nil {
		return err
	}

	if _, err := m.registry.Mutate(agentID, func(a *state.AgentState) error {
		a.SessionID = sessionID
		a.SessionRotationCount++
		a.LastError = ""
		return nil
	}); err != nil {
		return err
	}

	if agent.PaneID != "" {
		attach := fmt.Sprintf("opencode attach --session %s %s", sessionID, info.BaseURL())
		if err := m.tmux.SendKeys(ctx, agent.PaneID, attach); err != nil {
			return err
		}
		if err := m.tmux.SetPaneOption(ctx, agent.PaneID, tmux.SessionIDOption, sessionID); err != nil {
			slog.Warn("pane session option update failed", "pane", agent.PaneID, "error", err)
		}
	}

	prompt := "Your previous session ran out of context. Continue your work."
	if captured != "" {
		prompt = fmt.Sprintf("%s\n\nRecent terminal output before the reset:\n%s", prompt, captured)
	}
	res, err := client.SendPromptReliable(ctx, sessionID, prompt, agent.Model, agent.ProviderID)
	if err != nil {
		return err
	}
	if !res.Success {
		slog.Warn("continuation prompt not confirmed", "agent", agentID, "attempts", res.Attempts)
	}
	return nil
}
