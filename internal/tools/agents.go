package tools

import (
	"context"
	"os"

	"github.com/nextlevelbuilder/opencode-teams/internal/agents"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/permissions"
)

type SpawnAgentRequest struct {
	TeamName      string `json:"teamName"`
	Name          string `json:"name"`
	Role          string `json:"role,omitempty"`
	Model         string `json:"model,omitempty"`
	Provider      string `json:"provider,omitempty"`
	Cwd           string `json:"cwd,omitempty"` // default: current directory
	InitialPrompt string `json:"initialPrompt,omitempty"`
}

type KillAgentRequest struct {
	TeamName string `json:"teamName"`
	AgentID  string `json:"agentId"`
	Force    bool   `json:"force,omitempty"`
}

type HeartbeatRequest struct {
	AgentID string `json:"agentId,omitempty"` // default: caller
	Status  string `json:"status,omitempty"`  // optional status update
}

type AgentStatusRequest struct {
	AgentID string `json:"agentId,omitempty"`
}

func (s *Service) agentOps() []Operation {
	return []Operation{
		op(s, "spawn-agent", "Spawn an agent into a team with its own pane and session",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "name", Type: "string", Required: true},
				{Name: "role", Type: "string", Description: "worker, reviewer, task-manager"},
				{Name: "model", Type: "string"},
				{Name: "provider", Type: "string"},
				{Name: "cwd", Type: "string", Description: "project directory, defaults to cwd"},
				{Name: "initialPrompt", Type: "string"},
			},
			func(r SpawnAgentRequest) string { return r.TeamName }, s.spawnAgent),
		op(s, "kill-agent", "Terminate an agent, gracefully unless forced",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "agentId", Type: "string", Required: true},
				{Name: "force", Type: "boolean", Description: "skip the shutdown negotiation"},
			},
			func(r KillAgentRequest) string { return r.TeamName },
			func(ctx context.Context, r KillAgentRequest) (any, error) {
				caller := permissions.CallerID()
				if err := s.co.Agents.Kill(ctx, r.TeamName, r.AgentID, caller, r.Force); err != nil {
					return nil, err
				}
				return map[string]any{"terminated": r.AgentID}, nil
			}),
		op(s, "heartbeat", "Record an agent heartbeat, optionally updating status",
			[]Param{
				{Name: "agentId", Type: "string", Description: "defaults to the caller"},
				{Name: "status", Type: "string", Description: "active or idle"},
			},
			nil,
			func(ctx context.Context, r HeartbeatRequest) (any, error) {
				id := callerOr(r.AgentID)
				if id == "" {
					return nil, errdefs.Validationf("agentId is required for unscoped callers")
				}
				a, err := s.co.Registry.Heartbeat(id, r.Status, agents.SourceExplicit)
				if err != nil {
					return nil, err
				}
				// Advertise the expected cadence so agents self-tune.
				return map[string]any{
					"agent":           a,
					"intervalSeconds": int(s.co.Config.Agents.HeartbeatInterval.Seconds()),
				}, nil
			}),
		op(s, "get-agent-status", "Agent state with derived heartbeat staleness",
			[]Param{{Name: "agentId", Type: "string", Description: "defaults to the caller"}},
			nil,
			func(ctx context.Context, r AgentStatusRequest) (any, error) {
				id := callerOr(r.AgentID)
				if id == "" {
					return nil, errdefs.Validationf("agentId is required for unscoped callers")
				}
				return s.co.Registry.StatusOf(id)
			}),
	}
}

func (s *Service) spawnAgent(ctx context.Context, r SpawnAgentRequest) (any, error) {
	cwd := r.Cwd
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	model := r.Model
	if model == "" {
		model = s.co.Config.Agents.Model
	}
	provider := r.Provider
	if provider == "" {
		provider = s.co.Config.Agents.Provider
	}
	agent, err := s.co.Agents.Spawn(ctx, agents.SpawnParams{
		Team:          r.TeamName,
		Name:          r.Name,
		Role:          r.Role,
		Model:         model,
		ProviderID:    provider,
		Cwd:           cwd,
		InitialPrompt: r.InitialPrompt,
	})
	if err != nil {
		return nil, err
	}
	if err := s.co.WatchServer(ctx, cwd); err != nil {
		// The agent is up; liveness just degrades to explicit heartbeats.
		return agent, nil
	}
	return agent, nil
}
