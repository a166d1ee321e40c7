package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/colors"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/opencode"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
	"github.com/nextlevelbuilder/opencode-teams/internal/tmux"
)

// Manager orchestrates agent lifecycle against the multiplexer and the
// backing opencode server.
type Manager struct {
	paths    *state.Paths
	registry *Registry
	teams    *teams.Store
	colors   *colors.Pool
	tmux     *tmux.Controller
	server   *opencode.Controller
	bus      *bus.Bus

	// tasks reassignment and leader messaging are injected to keep the
	// package free of upward dependencies.
	reassign  func(ctx context.Context, team, agentID string) ([]string, error)
	sendTyped func(team, toAgent, body, msgType, fromAgent string) error

	// Liveness tunables, overridable from config before Start.
	SweepInterval  time.Duration
	StaleThreshold time.Duration
}

func NewManager(
	paths *state.Paths,
	registry *Registry,
	teamStore *teams.Store,
	colorPool *colors.Pool,
	mux *tmux.Controller,
	server *opencode.Controller,
	b *bus.Bus,
	reassign func(ctx context.Context, team, agentID string) ([]string, error),
	sendTyped func(team, toAgent, body, msgType, fromAgent string) error,
) *Manager {
	return &Manager{
		paths:          paths,
		registry:       registry,
		teams:          teamStore,
		colors:         colorPool,
		tmux:           mux,
		server:         server,
		bus:            b,
		reassign:       reassign,
		sendTyped:      sendTyped,
		SweepInterval:  SweepInterval,
		StaleThreshold: StaleThreshold,
	}
}

// Registry exposes the underlying state registry.
func (m *Manager) Registry() *Registry { return m.registry }

// SpawnParams configures one agent spawn.
type SpawnParams struct {
	Team          string
	Name          string
	Role          string // default worker
	Model         string
	ProviderID    string
	Cwd           string
	InitialPrompt string
}

// Spawn runs the full orchestration: team check, multiplexer, server,
// session, color, pane, registration, reliable prompt, activation.
// Failures before registration release the color and kill the pane;
// failures after registration leave the agent in spawning for manual
// recovery.
func (m *Manager) Spawn(ctx context.Context, p SpawnParams) (*state.AgentState, error) {
	if p.Role == "" {
		p.Role = state.RoleWorker
	}
	team, err := m.teams.Get(p.Team)
	if err != nil {
		return nil, err
	}
	if !tmux.Inside() && !tmux.Available() {
		return nil, errdefs.Unavailablef("tmux is not installed and not running")
	}
	if err := m.tmux.EnsureSession(ctx); err != nil {
		return nil, errdefs.Unavailablef("multiplexer session: %v", err)
	}

	info, err := m.server.EnsureRunning(ctx, p.Cwd)
	if err != nil {
		return nil, err
	}
	client := opencode.NewClient(info.BaseURL())

	agentID := uuid.NewString()
	sessionID, err := client.CreateSession(ctx, opencode.SessionTitle(p.Team, agentID, p.Role), p.Cwd)
	if err != nil {
		return nil, err
	}

	color, err := m.colors.Allocate(agentID)
	if err != nil {
		return nil, err
	}
	cleanupPreRegister := func(paneID string) {
		if paneID != "" {
			if kerr := m.tmux.KillPane(ctx, paneID); kerr != nil {
				slog.Warn("spawn cleanup: kill pane failed", "pane", paneID, "error", kerr)
			}
		}
		if cerr := m.colors.Release(agentID); cerr != nil {
			slog.Warn("spawn cleanup: color release failed", "agent", agentID, "error", cerr)
		}
	}

	paneID, err := m.tmux.SplitWindow(ctx, p.Cwd)
	if err != nil {
		cleanupPreRegister("")
		return nil, errdefs.Unavailablef("split pane: %v", err)
	}
	attach := fmt.Sprintf("opencode attach --session %s %s", sessionID, info.BaseURL())
	if err := m.tmux.SendKeys(ctx, paneID, attach); err != nil {
		cleanupPreRegister(paneID)
		return nil, errdefs.Unavailablef("attach session to pane: %v", err)
	}
	title := fmt.Sprintf("%s/%s", p.Team, p.Name)
	if err := m.tmux.SetPaneTitle(ctx, paneID, title); err != nil {
		slog.Warn("set pane title failed", "pane", paneID, "error", err)
	}
	if err := m.tmux.SetPaneOption(ctx, paneID, tmux.SessionIDOption, sessionID); err != nil {
		slog.Warn("set pane session option failed", "pane", paneID, "error", err)
	}
	if err := m.tmux.SelectLayout(ctx, ""); err != nil {
		slog.Warn("relayout failed", "error", err)
	}

	agent := &state.AgentState{
		ID:            agentID,
		Name:          p.Name,
		TeamName:      p.Team,
		Role:          p.Role,
		Model:         p.Model,
		ProviderID:    p.ProviderID,
		SessionID:     sessionID,
		PaneID:        paneID,
		ServerPort:    info.Port,
		Cwd:           p.Cwd,
		InitialPrompt: p.InitialPrompt,
		Color:         color,
		Status:        state.AgentSpawning,
		CreatedAt:     time.Now().UTC(),
		HeartbeatTs:   time.Now().UTC(),
	}
	if err := m.registry.Register(agent); err != nil {
		cleanupPreRegister(paneID)
		return nil, err
	}
	if _, err := m.teams.Join(team.Name, state.Member{
		AgentID: agentID,
		Name:    p.Name,
		Type:    p.Role,
	}); err != nil {
		cleanupPreRegister(paneID)
		m.registry.Remove(agentID)
		return nil, err
	}
	if _, err := m.server.AdjustSessions(p.Cwd, +1); err != nil {
		slog.Warn("session count bump failed", "error", err)
	}

	// Past this point the agent is registered: failures keep it in
	// spawning so the leader can retry the prompt.
	if p.InitialPrompt != "" {
		res, err := client.SendPromptReliable(ctx, sessionID, p.InitialPrompt, p.Model, p.ProviderID)
		if err != nil || !res.Success {
			if err != nil {
				slog.Error("initial prompt delivery failed", "agent", agentID, "error", err)
			} else {
				slog.Error("initial prompt delivery exhausted retries", "agent", agentID, "attempts", res.Attempts)
			}
			m.registry.Mutate(agentID, func(a *state.AgentState) error {
				a.LastError = "initial prompt delivery failed"
				return nil
			})
			return agent, nil
		}
	}

	activated, err := m.registry.Transition(agentID, state.AgentActive)
	if err != nil {
		return agent, err
	}
	return activated, nil
}
