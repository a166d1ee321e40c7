// Package dispatch evaluates per-team dispatch rules against bus events
// and executes their actions: automatic task assignment, leader
// notification, and audit logging. The audit log is capped per team.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opencode-teams/internal/agents"
	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/messaging"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/tasks"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
)

// EngineAgentID is the pseudo-agent the engine sends messages as.
const EngineAgentID = "dispatch-engine"

// Engine subscribes to the full event taxonomy and runs matching rules.
type Engine struct {
	teams     *teams.Store
	tasks     *tasks.Engine
	registry  *agents.Registry
	messaging *messaging.Store
	bus       *bus.Bus
}

func NewEngine(teamStore *teams.Store, taskEngine *tasks.Engine, registry *agents.Registry, msg *messaging.Store, b *bus.Bus) *Engine {
	return &Engine{teams: teamStore, tasks: taskEngine, registry: registry, messaging: msg, bus: b}
}

// Attach subscribes the engine to every taxonomy event and returns the
// unsubscribe closure.
func (e *Engine) Attach() func() {
	return e.bus.SubscribeAll(e.handle)
}

func (e *Engine) handle(ctx context.Context, ev bus.Event) {
	if ev.TeamName == "" {
		return
	}
	team, err := e.teams.Get(ev.TeamName)
	if err != nil {
		return
	}

	var matched []state.DispatchRule
	for _, r := range team.DispatchRules {
		if r.Enabled && r.EventType == ev.Type {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority < matched[j].Priority })

	var entries []state.DispatchLogEntry
	for _, rule := range matched {
		if rule.Condition != nil {
			ok, err := e.evalCondition(team, rule.Condition, ev)
			if err != nil {
				entries = append(entries, logEntry(rule, ev, false, fmt.Sprintf("condition error: %v", err)))
				continue
			}
			if !ok {
				continue
			}
		}
		success, details := e.execute(ctx, team, rule, ev)
		entries = append(entries, logEntry(rule, ev, success, details))
	}
	if len(entries) == 0 {
		return
	}
	if _, err := e.teams.Mutate(ev.TeamName, func(t *state.Team) error {
		for _, entry := range entries {
			t.AppendDispatchLog(entry)
		}
		return nil
	}); err != nil {
		slog.Warn("dispatch log append failed", "team", ev.TeamName, "error", err)
	}
}

func logEntry(rule state.DispatchRule, ev bus.Event, success bool, details string) state.DispatchLogEntry {
	return state.DispatchLogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		RuleID:    rule.ID,
		EventType: ev.Type,
		Success:   success,
		Details:   details,
	}
}

// evalCondition resolves a rule condition against the event payload and
// the live world state.
func (e *Engine) evalCondition(team *state.Team, c *state.Condition, ev bus.Event) (bool, error) {
	switch c.Kind {
	case state.CondSimpleMatch:
		val, ok := lookupPath(ev.Payload, c.Field)
		if !ok {
			return false, nil
		}
		return compare(val, c.Operator, c.Value)
	case state.CondResourceCount:
		count, err := e.resourceCount(team, c.Resource)
		if err != nil {
			return false, err
		}
		return compare(count, c.Operator, c.Value)
	default:
		return false, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

func (e *Engine) resourceCount(team *state.Team, resource string) (int, error) {
	switch resource {
	case state.ResourceUnblockedTasks:
		unblocked, err := e.unblockedTasks(team.Name)
		return len(unblocked), err
	case state.ResourceActiveAgents:
		// Workers only: the leader coordinates rather than executes.
		return len(team.Members) - 1, nil
	default:
		return 0, fmt.Errorf("unknown resource %q", resource)
	}
}

// unblockedTasks returns pending tasks whose dependencies are all
// completed, best-first (priority, then age).
func (e *Engine) unblockedTasks(team string) ([]state.Task, error) {
	all, err := e.tasks.List(team, tasks.Filter{})
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]string, len(all))
	for _, t := range all {
		statuses[t.ID] = t.Status
	}
	var out []state.Task
	for _, t := range all {
		if t.Status != state.TaskPending {
			continue
		}
		ready := true
		for _, dep := range t.Dependencies {
			if statuses[dep] != state.TaskCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := state.PriorityRank(out[i].Priority), state.PriorityRank(out[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// lookupPath resolves a dotted path into nested payload maps.
func lookupPath(payload map[string]any, path string) (any, bool) {
	cur := any(payload)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// compare applies op between left and right: numerically when right is
// numeric, lexicographically otherwise.
func compare(left any, op string, right any) (bool, error) {
	if rn, ok := asFloat(right); ok {
		ln, ok := asFloat(left)
		if !ok {
			return false, nil
		}
		switch op {
		case state.OpEq:
			return ln == rn, nil
		case state.OpNeq:
			return ln != rn, nil
		case state.OpGt:
			return ln > rn, nil
		case state.OpLt:
			return ln < rn, nil
		case state.OpGte:
			return ln >= rn, nil
		case state.OpLte:
			return ln <= rn, nil
		}
		return false, fmt.Errorf("unknown operator %q", op)
	}
	ls, rs := fmt.Sprintf("%v", left), fmt.Sprintf("%v", right)
	switch op {
	case state.OpEq:
		return ls == rs, nil
	case state.OpNeq:
		return ls != rs, nil
	case state.OpGt:
		return ls > rs, nil
	case state.OpLt:
		return ls < rs, nil
	case state.OpGte:
		return ls >= rs, nil
	case state.OpLte:
		return ls <= rs, nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
