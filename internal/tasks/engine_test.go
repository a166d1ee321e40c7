package tasks

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
)

func newTestEngine(t *testing.T, topology string) (*Engine, *bus.Bus) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	paths := state.NewPaths(dir)
	b := bus.New()
	store := teams.NewStore(paths, b)
	if _, err := store.Spawn(context.Background(), teams.CreateInput{
		Name:     "alpha",
		Topology: topology,
		Leader:   state.Member{AgentID: "leader-1", Name: "lead"},
	}); err != nil {
		t.Fatalf("spawn team: %v", err)
	}
	if _, err := store.Join("alpha", state.Member{AgentID: "w1", Name: "worker one"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Join("alpha", state.Member{AgentID: "w2", Name: "worker two"}); err != nil {
		t.Fatal(err)
	}
	return NewEngine(paths, b), b
}

func strp(s string) *string { return &s }

func TestCreateMaintainsBlocksSymmetry(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()

	a, err := e.Create(ctx, "alpha", CreateInput{Title: "a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Create(ctx, "alpha", CreateInput{Title: "b", Dependencies: []string{a.ID}})
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.Get("alpha", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Blocks) != 1 || got.Blocks[0] != b.ID {
		t.Fatalf("a.blocks = %v, want [%s]", got.Blocks, b.ID)
	}
}

func TestCreateRejectsMissingDependency(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	_, err := e.Create(context.Background(), "alpha", CreateInput{
		Title:        "b",
		Dependencies: []string{"nope"},
	})
	if !errdefs.IsNotFound(err) {
		t.Fatalf("want NotFound for missing dependency, got %v", err)
	}
}

func TestUpdateRejectsDependencyCycle(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()
	a, _ := e.Create(ctx, "alpha", CreateInput{Title: "a"})
	b, err := e.Create(ctx, "alpha", CreateInput{Title: "b", Dependencies: []string{a.ID}})
	if err != nil {
		t.Fatal(err)
	}

	deps := []string{b.ID}
	_, err = e.Apply(ctx, "alpha", a.ID, Update{Dependencies: &deps})
	if err == nil {
		t.Fatal("want cycle rejection for a -> b -> a")
	}
}

func TestCompletionCascadesUnblock(t *testing.T) {
	e, b := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()

	var events []bus.Event
	b.SubscribeAll(func(ctx context.Context, ev bus.Event) {
		events = append(events, ev)
	})

	a, _ := e.Create(ctx, "alpha", CreateInput{Title: "a"})
	dep1, _ := e.Create(ctx, "alpha", CreateInput{Title: "dep1", Dependencies: []string{a.ID}})
	dep2, _ := e.Create(ctx, "alpha", CreateInput{Title: "dep2", Dependencies: []string{a.ID, dep1.ID}})

	if _, err := e.Claim(ctx, "alpha", a.ID, "w1"); err != nil {
		t.Fatal(err)
	}
	events = events[:0]
	if _, err := e.Apply(ctx, "alpha", a.ID, Update{Status: strp(state.TaskCompleted)}); err != nil {
		t.Fatal(err)
	}

	// dep1 lost its only dependency and is now unblocked; dep2 still
	// waits on dep1.
	d1, _ := e.Get("alpha", dep1.ID)
	if len(d1.Dependencies) != 0 {
		t.Fatalf("dep1 dependencies = %v, want empty", d1.Dependencies)
	}
	d2, _ := e.Get("alpha", dep2.ID)
	if len(d2.Dependencies) != 1 || d2.Dependencies[0] != dep1.ID {
		t.Fatalf("dep2 dependencies = %v, want [%s]", d2.Dependencies, dep1.ID)
	}
	done, _ := e.Get("alpha", a.ID)
	if len(done.Blocks) != 0 {
		t.Fatalf("completed task blocks = %v, want empty", done.Blocks)
	}

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []string{bus.EventTaskCompleted, bus.EventTaskUnblocked}
	if len(types) != len(want) || types[0] != want[0] || types[1] != want[1] {
		t.Fatalf("events = %v, want %v", types, want)
	}
	if got := events[1].Payload["taskId"]; got != dep1.ID {
		t.Fatalf("unblocked payload taskId = %v, want %s", got, dep1.ID)
	}
}

func TestStatusTransitions(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()

	cases := []struct {
		name string
		from string
		to   string
		ok   bool
	}{
		{"pending to in_progress", state.TaskPending, state.TaskInProgress, true},
		{"pending straight to completed", state.TaskPending, state.TaskCompleted, false},
		{"in_progress to completed", state.TaskInProgress, state.TaskCompleted, true},
		{"in_progress back to pending", state.TaskInProgress, state.TaskPending, false},
		{"completed to in_progress", state.TaskCompleted, state.TaskInProgress, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task, err := e.Create(ctx, "alpha", CreateInput{Title: tc.name})
			if err != nil {
				t.Fatal(err)
			}
			// Walk the task to the starting status.
			if tc.from != state.TaskPending {
				if _, err := e.Claim(ctx, "alpha", task.ID, "w1"); err != nil {
					t.Fatal(err)
				}
			}
			if tc.from == state.TaskCompleted {
				if _, err := e.Apply(ctx, "alpha", task.ID, Update{Status: strp(state.TaskCompleted)}); err != nil {
					t.Fatal(err)
				}
			}

			_, err = e.Apply(ctx, "alpha", task.ID, Update{Status: strp(tc.to)})
			if tc.ok && err != nil {
				t.Fatalf("transition %s -> %s: %v", tc.from, tc.to, err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("transition %s -> %s must be rejected", tc.from, tc.to)
				}
				want := "Invalid status transition: " + tc.from + " -> " + tc.to
				if !strings.Contains(err.Error(), want) {
					t.Fatalf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestSameStatusUpdateIsNoOp(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()
	task, _ := e.Create(ctx, "alpha", CreateInput{Title: "t"})
	if _, err := e.Apply(ctx, "alpha", task.ID, Update{Status: strp(state.TaskPending)}); err != nil {
		t.Fatalf("same-status update must succeed: %v", err)
	}
}

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()
	task, _ := e.Create(ctx, "alpha", CreateInput{Title: "contested"})

	const claimers = 16
	var wg sync.WaitGroup
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Claim(ctx, "alpha", task.ID, "w1")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !strings.Contains(err.Error(), "not available") {
			t.Errorf("loser error %q does not mention availability", err)
		}
	}
	if wins != 1 {
		t.Fatalf("want exactly 1 winning claim, got %d", wins)
	}
}

func TestSoftBlockingClaimWarnsAndClears(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()

	a, _ := e.Create(ctx, "alpha", CreateInput{Title: "a"})
	b, _ := e.Create(ctx, "alpha", CreateInput{Title: "b", Dependencies: []string{a.ID}})

	claimed, err := e.Claim(ctx, "alpha", b.ID, "w1")
	if err != nil {
		t.Fatalf("soft-blocked claim must succeed: %v", err)
	}
	if !strings.Contains(claimed.Warning, "dependencies are not met") {
		t.Fatalf("warning = %q, want unmet-dependencies warning", claimed.Warning)
	}

	if _, err := e.Claim(ctx, "alpha", a.ID, "w2"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply(ctx, "alpha", a.ID, Update{Status: strp(state.TaskCompleted)}); err != nil {
		t.Fatal(err)
	}

	got, _ := e.Get("alpha", b.ID)
	if got.Warning != "" {
		t.Fatalf("warning not cleared after last dependency completed: %q", got.Warning)
	}
}

func TestHierarchicalClaimRestrictions(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyHierarchical)
	ctx := context.Background()

	t1, _ := e.Create(ctx, "alpha", CreateInput{Title: "t1"})
	if _, err := e.Claim(ctx, "alpha", t1.ID, "w1"); !errdefs.IsPrecondition(err) {
		t.Fatalf("worker claim in hierarchical topology: want PreconditionFailed, got %v", err)
	}
	if _, err := e.Claim(ctx, "alpha", t1.ID, "leader-1"); err != nil {
		t.Fatalf("leader claim: %v", err)
	}
}

func TestReassignResetsInProgressTasks(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()

	t1, _ := e.Create(ctx, "alpha", CreateInput{Title: "t1"})
	t2, _ := e.Create(ctx, "alpha", CreateInput{Title: "t2"})
	if _, err := e.Claim(ctx, "alpha", t1.ID, "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Claim(ctx, "alpha", t2.ID, "w2"); err != nil {
		t.Fatal(err)
	}

	ids, err := e.Reassign(ctx, "alpha", "w1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != t1.ID {
		t.Fatalf("reassigned = %v, want [%s]", ids, t1.ID)
	}

	got, _ := e.Get("alpha", t1.ID)
	if got.Status != state.TaskPending || got.Owner != "" {
		t.Fatalf("reassigned task = %s/%q, want pending with no owner", got.Status, got.Owner)
	}
	if want := "Reassigned: previous owner w1 terminated"; got.Warning != want {
		t.Fatalf("warning = %q, want %q", got.Warning, want)
	}
	other, _ := e.Get("alpha", t2.ID)
	if other.Owner != "w2" {
		t.Fatalf("unrelated task owner = %q, want w2", other.Owner)
	}
}

func TestDeleteRefusedWhileDependedOn(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()
	a, _ := e.Create(ctx, "alpha", CreateInput{Title: "a"})
	if _, err := e.Create(ctx, "alpha", CreateInput{Title: "b", Dependencies: []string{a.ID}}); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete("alpha", a.ID); !errdefs.IsConflict(err) {
		t.Fatalf("want Conflict deleting a depended-on task, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	e, _ := newTestEngine(t, state.TopologyFlat)
	ctx := context.Background()
	t1, _ := e.Create(ctx, "alpha", CreateInput{Title: "t1"})
	e.Create(ctx, "alpha", CreateInput{Title: "t2"})
	if _, err := e.Claim(ctx, "alpha", t1.ID, "w1"); err != nil {
		t.Fatal(err)
	}

	byStatus, err := e.List("alpha", Filter{Status: state.TaskInProgress})
	if err != nil {
		t.Fatal(err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != t1.ID {
		t.Fatalf("status filter returned %d tasks", len(byStatus))
	}
	byOwner, err := e.List("alpha", Filter{Owner: "w1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byOwner) != 1 || byOwner[0].ID != t1.ID {
		t.Fatalf("owner filter returned %d tasks", len(byOwner))
	}
}
