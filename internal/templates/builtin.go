package templates

import "github.com/nextlevelbuilder/opencode-teams/internal/state"

// builtins ship with the binary and sit at the bottom of the resolution
// order.
var builtins = map[string]state.TeamTemplate{
	"code-review": {
		Name:        "code-review",
		Description: "Flat review team: everyone reviews, nobody manages",
		Topology:    state.TopologyFlat,
		Roles: []state.RoleDef{
			{
				Name: state.RoleReviewer,
				AllowedTools: []string{
					"get-tasks", "claim-task", "update-task",
					"send-message", "broadcast-message", "read-messages", "poll-inbox",
					"get-team-info", "heartbeat", "get-agent-status", "check-permission",
				},
			},
		},
		DefaultTasks: []state.TemplateTask{
			{Title: "Review correctness", Description: "Logic errors, edge cases, race conditions", Priority: state.PriorityHigh},
			{Title: "Review style", Description: "Naming, structure, idiom", Priority: state.PriorityNormal},
			{Title: "Review test coverage", Description: "Missing cases, brittle assertions", Priority: state.PriorityNormal},
		},
	},
	"leader-workers": {
		Name:        "leader-workers",
		Description: "Hierarchical team: leader assigns, workers execute",
		Topology:    state.TopologyHierarchical,
		Workflow: &state.WorkflowConfig{
			Enabled:      true,
			MinBacklog:   3,
			BacklogRatio: 2.0,
		},
	},
	"swarm": {
		Name:        "swarm",
		Description: "Flat self-organizing team: agents claim freely",
		Topology:    state.TopologyFlat,
	},
}
