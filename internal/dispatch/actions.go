package dispatch

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// execute runs a rule's action and reports (success, details) for the
// audit log.
func (e *Engine) execute(ctx context.Context, team *state.Team, rule state.DispatchRule, ev bus.Event) (bool, string) {
	switch rule.Action.Kind {
	case state.ActionAssignTask:
		return e.assignTask(ctx, team)
	case state.ActionNotifyLeader:
		msg := rule.Action.Message
		if msg == "" {
			msg = fmt.Sprintf("dispatch rule %s fired on %s", rule.ID, ev.Type)
		}
		if err := e.messaging.SendTyped(team.Name, team.LeaderID, msg, state.MsgPlain, EngineAgentID); err != nil {
			return false, fmt.Sprintf("notify leader failed: %v", err)
		}
		return true, "leader notified"
	case state.ActionLog:
		return true, rule.Action.Message
	default:
		return false, fmt.Sprintf("unknown action kind %q", rule.Action.Kind)
	}
}

// assignTask pairs the first idle member with the best unblocked pending
// task and claims it on the member's behalf.
func (e *Engine) assignTask(ctx context.Context, team *state.Team) (bool, string) {
	idle := e.firstIdleMember(team)
	if idle == "" {
		return false, "no idle agent available"
	}
	ready, err := e.unblockedTasks(team.Name)
	if err != nil {
		return false, fmt.Sprintf("task scan failed: %v", err)
	}
	if len(ready) == 0 {
		return false, "no unblocked pending task"
	}
	task := ready[0]
	if _, err := e.tasks.Claim(ctx, team.Name, task.ID, idle); err != nil {
		return false, fmt.Sprintf("claim of %s for %s failed: %v", task.ID, idle, err)
	}
	return true, fmt.Sprintf("assigned task %s to %s", task.ID, idle)
}

// firstIdleMember returns the first team member whose agent record is
// idle, in member order. The leader is skipped.
func (e *Engine) firstIdleMember(team *state.Team) string {
	for _, m := range team.Members {
		if m.AgentID == team.LeaderID {
			continue
		}
		a, err := e.registry.Get(m.AgentID)
		if err != nil {
			continue
		}
		if a.Status == state.AgentIdle {
			return m.AgentID
		}
	}
	return ""
}
