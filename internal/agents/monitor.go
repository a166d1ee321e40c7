package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/opencode"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// RunSweep loops the stale sweep every SweepInterval until ctx ends.
func (m *Manager) RunSweep(ctx context.Context) error {
	ticker := time.NewTicker(m.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.SweepOnce(ctx)
		}
	}
}

// SweepOnce applies the liveness policy to every active agent: a
// heartbeat older than StaleThreshold counts one miss; at MaxMisses the
// agent is declared dead, its tasks reassigned, and its leader notified.
func (m *Manager) SweepOnce(ctx context.Context) {
	all, err := m.registry.List()
	if err != nil {
		slog.Warn("stale sweep: agent list failed", "error", err)
		return
	}
	now := time.Now()
	for _, a := range all {
		if a.Status != state.AgentActive && a.Status != state.AgentIdle {
			continue
		}
		if now.Sub(a.HeartbeatTs) <= m.StaleThreshold {
			continue
		}
		updated, err := m.registry.Mutate(a.ID, func(ag *state.AgentState) error {
			ag.ConsecutiveMisses++
			if ag.ConsecutiveMisses >= MaxMisses {
				ag.Status = state.AgentInactive
			}
			return nil
		})
		if err != nil {
			slog.Warn("stale sweep: mutate failed", "agent", a.ID, "error", err)
			continue
		}
		if updated.Status != state.AgentInactive {
			continue
		}
		slog.Info("agent declared dead", "agent", a.ID, "team", a.TeamName,
			"lastHeartbeat", a.HeartbeatTs)
		m.recoverDeadAgent(ctx, updated)
	}
}

func (m *Manager) recoverDeadAgent(ctx context.Context, a *state.AgentState) {
	ids, err := m.reassign(ctx, a.TeamName, a.ID)
	if err != nil {
		slog.Warn("dead agent task reassignment failed", "agent", a.ID, "error", err)
	}
	team, err := m.teams.Get(a.TeamName)
	if err != nil {
		return
	}
	body := fmt.Sprintf("agent %s (%s) went silent and was marked inactive; %d task(s) reassigned",
		a.Name, a.ID, len(ids))
	if err := m.sendTyped(a.TeamName, team.LeaderID, body, state.MsgPlain, a.ID); err != nil {
		slog.Warn("leader notification failed", "team", a.TeamName, "error", err)
	}
}

// HandleStreamEvent feeds one SSE event into passive liveness: idle
// sessions heartbeat and park the agent, activity wakes it, errors go
// to recovery.
func (m *Manager) HandleStreamEvent(ctx context.Context, ev opencode.StreamEvent) {
	sessionID := ev.Properties.SessionID
	if sessionID == "" {
		return
	}
	agent, err := m.registry.FindBySession(sessionID)
	if err != nil {
		return
	}
	switch ev.Type {
	case opencode.SSESessionIdle:
		if _, err := m.registry.Heartbeat(agent.ID, "", SourceSDKSessionIdle); err != nil {
			return
		}
		if agent.Status == state.AgentActive {
			if _, err := m.registry.Transition(agent.ID, state.AgentIdle); err == nil {
				m.bus.Emit(ctx, bus.NewEvent(bus.EventAgentIdle, agent.TeamName, map[string]any{
					"agentId": agent.ID,
				}))
			}
		}
		m.bus.Emit(ctx, bus.NewEvent(bus.EventSessionIdle, agent.TeamName, map[string]any{
			"agentId":   agent.ID,
			"sessionId": sessionID,
		}))
	case opencode.SSESessionUpdated, opencode.SSEToolExecuteAfter:
		if _, err := m.registry.Heartbeat(agent.ID, "", SourceSDKActivity); err != nil {
			return
		}
		if agent.Status == state.AgentIdle {
			m.registry.Transition(agent.ID, state.AgentActive)
		}
	case opencode.SSESessionError:
		m.handleSessionError(ctx, agent, string(ev.Properties.Error))
	}
}
