package tools

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/tasks"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
)

type SpawnTeamRequest struct {
	TeamName    string `json:"teamName"`
	Description string `json:"description,omitempty"`
	Topology    string `json:"topology,omitempty"`
	LeaderID    string `json:"leaderId,omitempty"`   // default: caller, else generated
	LeaderName  string `json:"leaderName,omitempty"` // default: "leader"
	Template    string `json:"template,omitempty"`
}

type JoinTeamRequest struct {
	TeamName string `json:"teamName"`
	AgentID  string `json:"agentId,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
}

type TeamNameRequest struct {
	TeamName string `json:"teamName"`
}

func (s *Service) teamOps() []Operation {
	return []Operation{
		op(s, "spawn-team", "Create a new team, optionally from a template",
			[]Param{
				{Name: "teamName", Type: "string", Required: true, Description: "unique team name"},
				{Name: "description", Type: "string"},
				{Name: "topology", Type: "string", Description: "flat or hierarchical"},
				{Name: "leaderId", Type: "string", Description: "leader agent id, defaults to the caller"},
				{Name: "leaderName", Type: "string"},
				{Name: "template", Type: "string", Description: "template name to spawn from"},
			},
			func(r SpawnTeamRequest) string { return r.TeamName }, s.spawnTeam),
		op(s, "discover-teams", "List all teams with member counts",
			nil, nil,
			func(ctx context.Context, _ struct{}) (any, error) {
				return s.co.Teams.Discover()
			}),
		op(s, "join-team", "Add an agent to a team",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "agentId", Type: "string", Description: "defaults to the caller"},
				{Name: "name", Type: "string"},
				{Name: "role", Type: "string", Description: "worker, reviewer, task-manager"},
			},
			func(r JoinTeamRequest) string { return r.TeamName },
			func(ctx context.Context, r JoinTeamRequest) (any, error) {
				id := callerOr(r.AgentID)
				if id == "" {
					return nil, errdefs.Validationf("agentId is required for unscoped callers")
				}
				return s.co.Teams.Join(r.TeamName, state.Member{
					AgentID: id,
					Name:    r.Name,
					Type:    r.Role,
				})
			}),
		op(s, "get-team-info", "Full team configuration including members and roles",
			[]Param{{Name: "teamName", Type: "string", Required: true}},
			func(r TeamNameRequest) string { return r.TeamName },
			func(ctx context.Context, r TeamNameRequest) (any, error) {
				team, err := s.co.Teams.Get(r.TeamName)
				if err != nil {
					return nil, err
				}
				// Dispatch log reads newest-first.
				slices.Reverse(team.DispatchLog)
				return team, nil
			}),
		op(s, "delete-team", "Delete a team and its tasks",
			[]Param{{Name: "teamName", Type: "string", Required: true}},
			func(r TeamNameRequest) string { return r.TeamName },
			s.deleteTeam),
	}
}

func (s *Service) spawnTeam(ctx context.Context, r SpawnTeamRequest) (any, error) {
	leaderID := callerOr(r.LeaderID)
	if leaderID == "" {
		leaderID = uuid.NewString()
	}
	leaderName := r.LeaderName
	if leaderName == "" {
		leaderName = "leader"
	}
	in := teams.CreateInput{
		Name:        r.TeamName,
		Description: r.Description,
		Topology:    r.Topology,
		Leader:      state.Member{AgentID: leaderID, Name: leaderName, Type: state.RoleLeader},
	}

	var defaultTasks []state.TemplateTask
	if r.Template != "" {
		tpl, _, err := s.co.Templates.Get(r.Template)
		if err != nil {
			return nil, err
		}
		in.Topology = tpl.Topology
		in.Roles = tpl.Roles
		in.Template = tpl.Name
		if tpl.Workflow != nil {
			wf := *tpl.Workflow
			in.Workflow = &wf
		}
		if r.Description == "" {
			in.Description = tpl.Description
		}
		defaultTasks = tpl.DefaultTasks
	}

	team, err := s.co.Teams.Spawn(ctx, in)
	if err != nil {
		return nil, err
	}
	for _, dt := range defaultTasks {
		if _, err := s.co.Tasks.Create(ctx, team.Name, tasks.CreateInput{
			Title:       dt.Title,
			Description: dt.Description,
			Priority:    dt.Priority,
		}); err != nil {
			return nil, fmt.Errorf("seed template task %q: %w", dt.Title, err)
		}
	}
	return team, nil
}

func (s *Service) deleteTeam(ctx context.Context, r TeamNameRequest) (any, error) {
	team, err := s.co.Teams.Get(r.TeamName)
	if err != nil {
		return nil, err
	}
	var live []string
	for _, m := range team.Members {
		a, err := s.co.Registry.Get(m.AgentID)
		if err != nil {
			continue
		}
		if a.Status == state.AgentActive || a.Status == state.AgentIdle {
			live = append(live, m.AgentID)
		}
	}
	if err := s.co.Teams.Delete(r.TeamName); err != nil {
		return nil, err
	}
	out := map[string]any{"deleted": r.TeamName}
	if len(live) > 0 {
		out["warning"] = fmt.Sprintf("%d agent(s) were still active: %v", len(live), live)
	}
	return out, nil
}
