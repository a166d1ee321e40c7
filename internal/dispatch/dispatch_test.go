package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opencode-teams/internal/agents"
	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/messaging"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/tasks"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
)

type world struct {
	bus      *bus.Bus
	teams    *teams.Store
	tasks    *tasks.Engine
	registry *agents.Registry
	msgs     *messaging.Store
	engine   *Engine
	workerID string
	leaderID string
}

func newWorld(t *testing.T, rules []state.DispatchRule) *world {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	paths := state.NewPaths(dir)
	b := bus.New()

	w := &world{
		bus:      b,
		teams:    teams.NewStore(paths, b),
		tasks:    tasks.NewEngine(paths, b),
		registry: agents.NewRegistry(paths),
		msgs:     messaging.NewStore(paths),
		leaderID: uuid.NewString(),
		workerID: uuid.NewString(),
	}
	w.engine = NewEngine(w.teams, w.tasks, w.registry, w.msgs, b)

	if _, err := w.teams.Spawn(context.Background(), teams.CreateInput{
		Name:   "alpha",
		Leader: state.Member{AgentID: w.leaderID, Name: "lead"},
		Rules:  rules,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.teams.Join("alpha", state.Member{AgentID: w.workerID, Name: "worker"}); err != nil {
		t.Fatal(err)
	}
	if err := w.registry.Register(&state.AgentState{
		ID:          w.workerID,
		Name:        "worker",
		TeamName:    "alpha",
		Role:        state.RoleWorker,
		Status:      state.AgentIdle,
		CreatedAt:   time.Now().UTC(),
		HeartbeatTs: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	return w
}

func assignRule(priority int, cond *state.Condition) state.DispatchRule {
	return state.DispatchRule{
		ID:        uuid.NewString(),
		EventType: bus.EventTaskUnblocked,
		Condition: cond,
		Action:    state.Action{Kind: state.ActionAssignTask},
		Priority:  priority,
		Enabled:   true,
	}
}

func TestAssignTaskOnUnblock(t *testing.T) {
	w := newWorld(t, []state.DispatchRule{assignRule(0, nil)})
	defer w.engine.Attach()()
	ctx := context.Background()

	a, _ := w.tasks.Create(ctx, "alpha", tasks.CreateInput{Title: "a"})
	dep, _ := w.tasks.Create(ctx, "alpha", tasks.CreateInput{
		Title:        "dep",
		Priority:     state.PriorityHigh,
		Dependencies: []string{a.ID},
	})

	if _, err := w.tasks.Claim(ctx, "alpha", a.ID, w.workerID); err != nil {
		t.Fatal(err)
	}
	done := state.TaskCompleted
	if _, err := w.tasks.Apply(ctx, "alpha", a.ID, tasks.Update{Status: &done}); err != nil {
		t.Fatal(err)
	}

	got, err := w.tasks.Get("alpha", dep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != state.TaskInProgress || got.Owner != w.workerID {
		t.Fatalf("unblocked task = %s/%q, want in_progress owned by the idle worker", got.Status, got.Owner)
	}

	team, _ := w.teams.Get("alpha")
	if len(team.DispatchLog) != 1 {
		t.Fatalf("dispatch log has %d entries, want 1", len(team.DispatchLog))
	}
	entry := team.DispatchLog[0]
	if !entry.Success || entry.EventType != bus.EventTaskUnblocked {
		t.Fatalf("log entry = %+v", entry)
	}
}

func TestDisabledRuleIgnored(t *testing.T) {
	rule := assignRule(0, nil)
	rule.Enabled = false
	w := newWorld(t, []state.DispatchRule{rule})
	defer w.engine.Attach()()
	ctx := context.Background()

	a, _ := w.tasks.Create(ctx, "alpha", tasks.CreateInput{Title: "a"})
	dep, _ := w.tasks.Create(ctx, "alpha", tasks.CreateInput{Title: "dep", Dependencies: []string{a.ID}})
	w.tasks.Claim(ctx, "alpha", a.ID, w.workerID)
	done := state.TaskCompleted
	w.tasks.Apply(ctx, "alpha", a.ID, tasks.Update{Status: &done})

	got, _ := w.tasks.Get("alpha", dep.ID)
	if got.Status != state.TaskPending {
		t.Fatalf("disabled rule still assigned the task: %s", got.Status)
	}
	team, _ := w.teams.Get("alpha")
	if len(team.DispatchLog) != 0 {
		t.Fatalf("disabled rule wrote %d log entries", len(team.DispatchLog))
	}
}

func TestConditionGatesExecution(t *testing.T) {
	cond := &state.Condition{
		Kind:     state.CondResourceCount,
		Resource: state.ResourceUnblockedTasks,
		Operator: state.OpGte,
		Value:    5, // never satisfied in this scenario
	}
	w := newWorld(t, []state.DispatchRule{assignRule(0, cond)})
	defer w.engine.Attach()()
	ctx := context.Background()

	a, _ := w.tasks.Create(ctx, "alpha", tasks.CreateInput{Title: "a"})
	dep, _ := w.tasks.Create(ctx, "alpha", tasks.CreateInput{Title: "dep", Dependencies: []string{a.ID}})
	w.tasks.Claim(ctx, "alpha", a.ID, w.workerID)
	done := state.TaskCompleted
	w.tasks.Apply(ctx, "alpha", a.ID, tasks.Update{Status: &done})

	got, _ := w.tasks.Get("alpha", dep.ID)
	if got.Status != state.TaskPending {
		t.Fatal("unsatisfied condition must not assign")
	}
}

func TestNotifyLeaderAction(t *testing.T) {
	rule := state.DispatchRule{
		ID:        uuid.NewString(),
		EventType: bus.EventTaskCreated,
		Action:    state.Action{Kind: state.ActionNotifyLeader, Message: "new work arrived"},
		Enabled:   true,
	}
	w := newWorld(t, []state.DispatchRule{rule})
	defer w.engine.Attach()()

	if _, err := w.tasks.Create(context.Background(), "alpha", tasks.CreateInput{Title: "a"}); err != nil {
		t.Fatal(err)
	}

	inbox, err := w.msgs.Peek("alpha", w.leaderID)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 1 || inbox[0].Body != "new work arrived" || inbox[0].From != EngineAgentID {
		t.Fatalf("leader inbox = %+v", inbox)
	}
}

func TestSimpleMatchCondition(t *testing.T) {
	cases := []struct {
		name  string
		cond  state.Condition
		event bus.Event
		want  bool
	}{
		{
			"string equality",
			state.Condition{Kind: state.CondSimpleMatch, Field: "owner", Operator: state.OpEq, Value: "w1"},
			bus.NewEvent(bus.EventTaskCompleted, "alpha", map[string]any{"owner": "w1"}),
			true,
		},
		{
			"nested path",
			state.Condition{Kind: state.CondSimpleMatch, Field: "task.priority", Operator: state.OpEq, Value: "high"},
			bus.NewEvent(bus.EventTaskCreated, "alpha", map[string]any{"task": map[string]any{"priority": "high"}}),
			true,
		},
		{
			"numeric comparison",
			state.Condition{Kind: state.CondSimpleMatch, Field: "count", Operator: state.OpGt, Value: 2},
			bus.NewEvent(bus.EventTaskCreated, "alpha", map[string]any{"count": 3}),
			true,
		},
		{
			"missing field",
			state.Condition{Kind: state.CondSimpleMatch, Field: "absent", Operator: state.OpEq, Value: "x"},
			bus.NewEvent(bus.EventTaskCreated, "alpha", nil),
			false,
		},
	}
	w := newWorld(t, nil)
	team, _ := w.teams.Get("alpha")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := w.engine.evalCondition(team, &tc.cond, tc.event)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("evalCondition = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWorkflowMonitorSuggestsWorker(t *testing.T) {
	w := newWorld(t, nil)
	monitor := NewMonitor(w.engine)
	defer monitor.Attach()()
	ctx := context.Background()

	if _, err := w.teams.Mutate("alpha", func(tm *state.Team) error {
		tm.Workflow = &state.WorkflowConfig{Enabled: true, MinBacklog: 2, BacklogRatio: 1.0}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	seed, _ := w.tasks.Create(ctx, "alpha", tasks.CreateInput{Title: "seed"})
	for _, title := range []string{"b1", "b2", "b3"} {
		if _, err := w.tasks.Create(ctx, "alpha", tasks.CreateInput{Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.tasks.Claim(ctx, "alpha", seed.ID, w.workerID); err != nil {
		t.Fatal(err)
	}
	done := state.TaskCompleted
	if _, err := w.tasks.Apply(ctx, "alpha", seed.ID, tasks.Update{Status: &done}); err != nil {
		t.Fatal(err)
	}

	inbox, err := w.msgs.Peek("alpha", w.leaderID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, m := range inbox {
		if m.Type == state.MsgTaskAssignment && m.From == EngineAgentID {
			found = true
		}
	}
	if !found {
		t.Fatalf("no backlog suggestion in leader inbox: %+v", inbox)
	}

	team, _ := w.teams.Get("alpha")
	if team.Workflow.LastSuggestionAt.IsZero() {
		t.Fatal("cooldown stamp not persisted")
	}
}
