package tools

import (
	"context"

	"github.com/nextlevelbuilder/opencode-teams/internal/permissions"
)

type SaveTemplateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TeamName    string `json:"teamName"` // team to snapshot
	Global      bool   `json:"global,omitempty"`
}

type DeleteTemplateRequest struct {
	Name   string `json:"name"`
	Global bool   `json:"global,omitempty"`
}

type CheckPermissionRequest struct {
	TeamName string `json:"teamName,omitempty"`
	AgentID  string `json:"agentId,omitempty"` // default: caller
	Tool     string `json:"tool"`
}

func (s *Service) templateOps() []Operation {
	return []Operation{
		op(s, "save-template", "Snapshot a team's shape as a reusable template",
			[]Param{
				{Name: "name", Type: "string", Required: true},
				{Name: "description", Type: "string"},
				{Name: "teamName", Type: "string", Required: true, Description: "team to snapshot"},
				{Name: "global", Type: "boolean", Description: "save user-globally instead of project-local"},
			},
			func(r SaveTemplateRequest) string { return r.TeamName },
			func(ctx context.Context, r SaveTemplateRequest) (any, error) {
				team, err := s.co.Teams.Get(r.TeamName)
				if err != nil {
					return nil, err
				}
				return s.co.Templates.SaveFromTeam(team, r.Name, r.Description, r.Global)
			}),
		op(s, "list-templates", "List templates across project, user and builtin scopes",
			nil, nil,
			func(ctx context.Context, _ struct{}) (any, error) {
				return s.co.Templates.List()
			}),
		op(s, "delete-template", "Delete a stored template; builtins cannot be deleted",
			[]Param{
				{Name: "name", Type: "string", Required: true},
				{Name: "global", Type: "boolean"},
			},
			nil,
			func(ctx context.Context, r DeleteTemplateRequest) (any, error) {
				if err := s.co.Templates.Delete(r.Name, r.Global); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": r.Name}, nil
			}),
	}
}

func (s *Service) permissionOps() []Operation {
	return []Operation{
		op(s, "check-permission", "Decide whether an agent may invoke a tool",
			[]Param{
				{Name: "teamName", Type: "string"},
				{Name: "agentId", Type: "string", Description: "defaults to the caller"},
				{Name: "tool", Type: "string", Required: true},
			},
			nil,
			func(ctx context.Context, r CheckPermissionRequest) (any, error) {
				id := r.AgentID
				if id == "" {
					id = permissions.CallerID()
				}
				return s.co.Permissions.Check(r.TeamName, id, r.Tool)
			}),
	}
}
