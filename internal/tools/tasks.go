package tools

import (
	"context"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/tasks"
)

type CreateTaskRequest struct {
	TeamName     string   `json:"teamName"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Priority     string   `json:"priority,omitempty"` // high | normal | low
	Dependencies []string `json:"dependencies,omitempty"`
}

type GetTasksRequest struct {
	TeamName string `json:"teamName"`
	Status   string `json:"status,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

type ClaimTaskRequest struct {
	TeamName string `json:"teamName"`
	TaskID   string `json:"taskId"`
	AgentID  string `json:"agentId,omitempty"` // default: caller
}

type UpdateTaskRequest struct {
	TeamName     string    `json:"teamName"`
	TaskID       string    `json:"taskId"`
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Priority     *string   `json:"priority,omitempty"`
	Status       *string   `json:"status,omitempty"`
	Dependencies *[]string `json:"dependencies,omitempty"`
}

func (s *Service) taskOps() []Operation {
	return []Operation{
		op(s, "create-task", "Create a task with optional dependencies",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "title", Type: "string", Required: true},
				{Name: "description", Type: "string"},
				{Name: "priority", Type: "string", Description: "high, normal or low"},
				{Name: "dependencies", Type: "array", Description: "task ids this task depends on"},
			},
			func(r CreateTaskRequest) string { return r.TeamName },
			func(ctx context.Context, r CreateTaskRequest) (any, error) {
				return s.co.Tasks.Create(ctx, r.TeamName, tasks.CreateInput{
					Title:        r.Title,
					Description:  r.Description,
					Priority:     r.Priority,
					Dependencies: r.Dependencies,
				})
			}),
		op(s, "get-tasks", "List tasks, optionally filtered by status or owner",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "status", Type: "string"},
				{Name: "owner", Type: "string"},
			},
			func(r GetTasksRequest) string { return r.TeamName },
			func(ctx context.Context, r GetTasksRequest) (any, error) {
				return s.co.Tasks.List(r.TeamName, tasks.Filter{Status: r.Status, Owner: r.Owner})
			}),
		op(s, "claim-task", "Claim a pending task for an agent",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "taskId", Type: "string", Required: true},
				{Name: "agentId", Type: "string", Description: "defaults to the caller"},
			},
			func(r ClaimTaskRequest) string { return r.TeamName },
			func(ctx context.Context, r ClaimTaskRequest) (any, error) {
				id := callerOr(r.AgentID)
				if id == "" {
					return nil, errdefs.Validationf("agentId is required for unscoped callers")
				}
				return s.co.Tasks.Claim(ctx, r.TeamName, r.TaskID, id)
			}),
		op(s, "update-task", "Partially update a task; status moves forward only",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "taskId", Type: "string", Required: true},
				{Name: "title", Type: "string"},
				{Name: "description", Type: "string"},
				{Name: "priority", Type: "string"},
				{Name: "status", Type: "string", Description: "pending, in_progress or completed"},
				{Name: "dependencies", Type: "array"},
			},
			func(r UpdateTaskRequest) string { return r.TeamName },
			func(ctx context.Context, r UpdateTaskRequest) (any, error) {
				return s.co.Tasks.Apply(ctx, r.TeamName, r.TaskID, tasks.Update{
					Title:        r.Title,
					Description:  r.Description,
					Priority:     r.Priority,
					Status:       r.Status,
					Dependencies: r.Dependencies,
				})
			}),
	}
}
