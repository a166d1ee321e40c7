// Package permissions gates tool operations by the caller's role.
// Callers are identified by OPENCODE_AGENT_ID; an unscoped caller (no
// env, typically a human at the CLI) is always allowed. Team role
// definitions override the built-in defaults; deny wins over allow.
package permissions

import (
	"os"
	"strings"

	"github.com/nextlevelbuilder/opencode-teams/internal/agents"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
)

// AgentIDEnv scopes a process to an agent identity.
const AgentIDEnv = "OPENCODE_AGENT_ID"

// CallerID returns the agent identity of the current process, empty for
// unscoped callers.
func CallerID() string {
	return os.Getenv(AgentIDEnv)
}

// defaultRoles are the built-in role policies. Leaders coordinate and
// never claim work themselves; workers cannot manage the team or mint
// tasks; reviewers get a read-and-comment whitelist; task managers are
// workers who also run the board.
var defaultRoles = map[string]state.RoleDef{
	state.RoleLeader: {
		Name:        state.RoleLeader,
		DeniedTools: []string{"claim-task"},
	},
	state.RoleWorker: {
		Name: state.RoleWorker,
		DeniedTools: []string{
			"spawn-team", "delete-team", "spawn-agent", "kill-agent",
			"save-template", "delete-template", "create-task",
		},
	},
	state.RoleTaskManager: {
		Name: state.RoleTaskManager,
		DeniedTools: []string{
			"spawn-team", "delete-team", "spawn-agent", "kill-agent",
			"save-template", "delete-template",
		},
	},
	state.RoleReviewer: {
		Name: state.RoleReviewer,
		AllowedTools: []string{
			"get-tasks", "update-task",
			"send-message", "broadcast-message", "read-messages", "poll-inbox",
			"get-team-info", "discover-teams",
			"heartbeat", "get-agent-status", "check-permission",
		},
	},
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Role    string `json:"role,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Checker resolves roles against the agent registry and team config.
type Checker struct {
	teams    *teams.Store
	registry *agents.Registry
}

func NewChecker(teamStore *teams.Store, registry *agents.Registry) *Checker {
	return &Checker{teams: teamStore, registry: registry}
}

// Check decides whether agentID may invoke tool within team. An empty
// agentID is an unscoped caller and is always allowed.
func (c *Checker) Check(team, agentID, tool string) (Decision, error) {
	if agentID == "" {
		return Decision{Allowed: true, Reason: "unscoped caller"}, nil
	}
	role := c.resolveRole(team, agentID)
	def := c.roleDef(team, role)
	return evaluate(def, role, tool), nil
}

// resolveRole prefers the agent record, falls back to the team member
// entry, and defaults to worker.
func (c *Checker) resolveRole(team, agentID string) string {
	if a, err := c.registry.Get(agentID); err == nil && a.Role != "" {
		return a.Role
	}
	if team != "" {
		if t, err := c.teams.Get(team); err == nil {
			if m, ok := t.FindMember(agentID); ok && m.Type != "" {
				return m.Type
			}
		}
	}
	return state.RoleWorker
}

// roleDef returns the team's override for role when one exists, else the
// built-in default. Unknown roles without an override behave as worker.
func (c *Checker) roleDef(team, role string) state.RoleDef {
	if team != "" {
		if t, err := c.teams.Get(team); err == nil {
			if def, ok := t.FindRole(role); ok {
				return def
			}
		}
	}
	if def, ok := defaultRoles[role]; ok {
		return def
	}
	def := defaultRoles[state.RoleWorker]
	def.Name = role
	return def
}

// evaluate applies deny-then-allow: a deny match rejects; otherwise a
// non-empty allow list must match.
func evaluate(def state.RoleDef, role, tool string) Decision {
	for _, pat := range def.DeniedTools {
		if matchTool(pat, tool) {
			return Decision{Allowed: false, Role: role,
				Reason: "tool " + tool + " is denied for role " + role}
		}
	}
	if len(def.AllowedTools) > 0 {
		for _, pat := range def.AllowedTools {
			if matchTool(pat, tool) {
				return Decision{Allowed: true, Role: role}
			}
		}
		return Decision{Allowed: false, Role: role,
			Reason: "tool " + tool + " is not in the allow list for role " + role}
	}
	return Decision{Allowed: true, Role: role}
}

// matchTool supports exact names, "*", and trailing-star prefixes like
// "get-*".
func matchTool(pattern, tool string) bool {
	if pattern == "*" || pattern == tool {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(tool, prefix)
	}
	return false
}
