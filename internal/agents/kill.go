package agents

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// shutdownGrace bounds the graceful negotiation wait.
const shutdownGrace = 5 * time.Second

// Kill terminates an agent. Graceful mode negotiates through the
// shutdown protocol; force skips it. The leader cannot kill itself
// through this path.
func (m *Manager) Kill(ctx context.Context, teamName, targetID, callerID string, force bool) error {
	team, err := m.teams.Get(teamName)
	if err != nil {
		return err
	}
	if callerID != "" && callerID != team.LeaderID {
		return errdefs.Permissionf("only the team leader may kill agents")
	}
	if targetID == team.LeaderID {
		return errdefs.Preconditionf("leader cannot be killed through kill-agent")
	}
	target, err := m.registry.Get(targetID)
	if err != nil {
		return err
	}
	if target.Status == state.AgentTerminated {
		return errdefs.Preconditionf("agent %s is already terminated", targetID)
	}

	if !force {
		if target.Status != state.AgentActive && target.Status != state.AgentIdle {
			return errdefs.Preconditionf("agent %s is not active (status %s)", targetID, target.Status)
		}
		if err := m.sendTyped(teamName, targetID, "please shut down", state.MsgShutdownRequest, callerID); err != nil {
			return err
		}
		if _, err := m.registry.Transition(targetID, state.AgentShuttingDown); err != nil {
			return err
		}
		m.awaitApproval(ctx, teamName, targetID)
	}

	return m.finalize(ctx, teamName, target)
}

// awaitApproval polls the team's approvals set until the target shows up
// or the grace period lapses. A silent target is terminated anyway.
func (m *Manager) awaitApproval(ctx context.Context, teamName, targetID string) {
	deadline := time.Now().Add(shutdownGrace)
	for time.Now().Before(deadline) {
		team, err := m.teams.Get(teamName)
		if err == nil {
			for _, id := range team.ShutdownApprovals {
				if id == targetID {
					return
				}
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
	slog.Warn("shutdown approval timed out, terminating anyway", "agent", targetID)
}

// finalize reassigns the agent's tasks, tears down its pane and color,
// marks it terminated, removes it from the team, and reaps the server
// when the last session is gone.
func (m *Manager) finalize(ctx context.Context, teamName string, target *state.AgentState) error {
	if ids, err := m.reassign(ctx, teamName, target.ID); err != nil {
		slog.Warn("task reassignment failed during kill", "agent", target.ID, "error", err)
	} else if len(ids) > 0 {
		slog.Info("reassigned tasks from terminated agent", "agent", target.ID, "tasks", ids)
	}

	if target.PaneID != "" {
		if err := m.tmux.KillPane(ctx, target.PaneID); err != nil {
			slog.Warn("pane cleanup failed", "pane", target.PaneID, "error", err)
		}
	}
	if err := m.colors.Release(target.ID); err != nil {
		slog.Warn("color release failed", "agent", target.ID, "error", err)
	}

	if _, err := m.registry.Mutate(target.ID, func(a *state.AgentState) error {
		a.Status = state.AgentTerminated
		now := time.Now().UTC()
		a.TerminatedAt = &now
		return nil
	}); err != nil {
		return err
	}
	if err := m.teams.Leave(teamName, target.ID); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("member removal failed", "agent", target.ID, "error", err)
	}

	if remaining, err := m.server.AdjustSessions(target.Cwd, -1); err == nil && remaining == 0 {
		if err := m.server.Stop(ctx, target.Cwd); err != nil {
			slog.Warn("server reap failed", "project", target.Cwd, "error", err)
		}
	}

	m.bus.Emit(ctx, bus.NewEvent(bus.EventAgentTerminated, teamName, map[string]any{
		"agentId": target.ID,
	}))
	return nil
}
