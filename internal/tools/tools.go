// Package tools exposes the coordination operations as a uniform
// name-addressed surface: every operation decodes a typed request,
// passes the caller through the permission gate, and returns a Result
// envelope. The same registry backs the MCP server and the CLI.
package tools

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/opencode-teams/internal/coordinator"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/permissions"
)

// Result is the uniform tool envelope.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func OK(data any) Result { return Result{Success: true, Data: data} }

func Fail(err error) Result { return Result{Success: false, Error: err.Error()} }

// Service binds the registry to one coordinator.
type Service struct {
	co *coordinator.Coordinator
}

func NewService(co *coordinator.Coordinator) *Service {
	return &Service{co: co}
}

// Param describes one operation argument for schema generation.
type Param struct {
	Name        string
	Type        string // string | number | boolean | array
	Required    bool
	Description string
}

// Operation is one named tool.
type Operation struct {
	Name        string
	Description string
	Params      []Param
	Invoke      func(ctx context.Context, args json.RawMessage) Result
}

// op builds an Operation around a typed handler. teamOf scopes the
// permission check; nil means the operation is not team-scoped.
func op[T any](s *Service, name, desc string, params []Param,
	teamOf func(T) string, fn func(ctx context.Context, req T) (any, error)) Operation {
	return Operation{
		Name:        name,
		Description: desc,
		Params:      params,
		Invoke: func(ctx context.Context, args json.RawMessage) Result {
			var req T
			if len(args) > 0 {
				if err := json.Unmarshal(args, &req); err != nil {
					return Fail(errdefs.Validationf("invalid arguments: %v", err))
				}
			}
			if name != "check-permission" {
				team := ""
				if teamOf != nil {
					team = teamOf(req)
				}
				dec, err := s.co.Permissions.Check(team, permissions.CallerID(), name)
				if err != nil {
					return Fail(err)
				}
				if !dec.Allowed {
					return Fail(errdefs.Permissionf("%s", dec.Reason))
				}
			}
			data, err := fn(ctx, req)
			if err != nil {
				return Fail(err)
			}
			return OK(data)
		},
	}
}

// Registry returns every operation, stable-ordered.
func (s *Service) Registry() []Operation {
	var ops []Operation
	ops = append(ops, s.teamOps()...)
	ops = append(ops, s.taskOps()...)
	ops = append(ops, s.messagingOps()...)
	ops = append(ops, s.agentOps()...)
	ops = append(ops, s.templateOps()...)
	ops = append(ops, s.permissionOps()...)
	return ops
}

// Lookup finds one operation by name.
func (s *Service) Lookup(name string) (Operation, bool) {
	for _, o := range s.Registry() {
		if o.Name == name {
			return o, true
		}
	}
	return Operation{}, false
}

// callerOr falls back to the process's agent identity.
func callerOr(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return permissions.CallerID()
}
