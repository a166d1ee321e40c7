package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Workflow monitor defaults.
const (
	DefaultMinBacklog      = 3
	DefaultBacklogRatio    = 2.0
	DefaultCooldownSeconds = 300
)

// Monitor watches task completions and suggests extra workers to the
// leader when the unblocked backlog outgrows the active worker pool.
type Monitor struct {
	engine *Engine
}

func NewMonitor(e *Engine) *Monitor {
	return &Monitor{engine: e}
}

// Attach subscribes the monitor to task completions and returns the
// unsubscribe closure.
func (m *Monitor) Attach() func() {
	return m.engine.bus.Subscribe(bus.EventTaskCompleted, m.onTaskCompleted)
}

func (m *Monitor) onTaskCompleted(ctx context.Context, ev bus.Event) {
	if ev.TeamName == "" {
		return
	}
	team, err := m.engine.teams.Get(ev.TeamName)
	if err != nil || team.Workflow == nil || !team.Workflow.Enabled {
		return
	}
	wf := team.Workflow

	cooldown := time.Duration(wf.CooldownSeconds) * time.Second
	if wf.CooldownSeconds == 0 {
		cooldown = DefaultCooldownSeconds * time.Second
	}
	if !wf.LastSuggestionAt.IsZero() && time.Since(wf.LastSuggestionAt) < cooldown {
		return
	}

	minBacklog := wf.MinBacklog
	if minBacklog == 0 {
		minBacklog = DefaultMinBacklog
	}
	ratio := wf.BacklogRatio
	if ratio == 0 {
		ratio = DefaultBacklogRatio
	}

	unblocked, err := m.engine.unblockedTasks(team.Name)
	if err != nil {
		slog.Warn("workflow monitor: task scan failed", "team", team.Name, "error", err)
		return
	}
	workers := m.activeWorkers(team)
	if len(unblocked) < minBacklog {
		return
	}
	if workers > 0 && float64(len(unblocked))/float64(workers) <= ratio {
		return
	}

	body := fmt.Sprintf("backlog alert: %d unblocked task(s) for %d active worker(s); consider spawning another worker",
		len(unblocked), workers)
	if err := m.engine.messaging.SendTyped(team.Name, team.LeaderID, body, state.MsgTaskAssignment, EngineAgentID); err != nil {
		slog.Warn("workflow monitor: leader notification failed", "team", team.Name, "error", err)
		return
	}
	if _, err := m.engine.teams.Mutate(team.Name, func(t *state.Team) error {
		if t.Workflow == nil {
			return nil
		}
		t.Workflow.LastSuggestionAt = time.Now().UTC()
		return nil
	}); err != nil {
		slog.Warn("workflow monitor: cooldown stamp failed", "team", team.Name, "error", err)
	}
}

// activeWorkers counts non-leader members whose agent record is active
// or idle. Members without a record still count; they may be external
// sessions that never registered.
func (m *Monitor) activeWorkers(team *state.Team) int {
	n := 0
	for _, mem := range team.Members {
		if mem.AgentID == team.LeaderID {
			continue
		}
		a, err := m.engine.registry.Get(mem.AgentID)
		if err != nil {
			n++
			continue
		}
		if a.Status == state.AgentActive || a.Status == state.AgentIdle {
			n++
		}
	}
	return n
}
