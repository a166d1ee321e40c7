package agents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
)

type sweepWorld struct {
	mgr        *Manager
	registry   *Registry
	leaderID   string
	reassigned []string
	notified   []string
}

func newSweepWorld(t *testing.T) *sweepWorld {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	paths := state.NewPaths(dir)
	b := bus.New()

	w := &sweepWorld{
		registry: NewRegistry(paths),
		leaderID: uuid.NewString(),
	}
	teamStore := teams.NewStore(paths, b)
	if _, err := teamStore.Spawn(context.Background(), teams.CreateInput{
		Name:   "alpha",
		Leader: state.Member{AgentID: w.leaderID, Name: "lead"},
	}); err != nil {
		t.Fatal(err)
	}
	w.mgr = NewManager(paths, w.registry, teamStore, nil, nil, nil, b,
		func(ctx context.Context, team, agentID string) ([]string, error) {
			w.reassigned = append(w.reassigned, agentID)
			return nil, nil
		},
		func(team, toAgent, body, msgType, fromAgent string) error {
			w.notified = append(w.notified, toAgent)
			return nil
		})
	return w
}

func TestSweepHonorsConfiguredThreshold(t *testing.T) {
	w := newSweepWorld(t)
	id := uuid.NewString()
	if err := w.registry.Register(&state.AgentState{
		ID:          id,
		Name:        "w",
		TeamName:    "alpha",
		Role:        state.RoleWorker,
		Status:      state.AgentActive,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		HeartbeatTs: time.Now().UTC().Add(-10 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	// A generous threshold keeps the silent agent alive.
	w.mgr.StaleThreshold = time.Hour
	w.mgr.SweepOnce(context.Background())
	a, _ := w.registry.Get(id)
	if a.ConsecutiveMisses != 0 {
		t.Fatalf("misses = %d under a 1h threshold", a.ConsecutiveMisses)
	}

	// A tight threshold counts misses and declares death at MaxMisses.
	w.mgr.StaleThreshold = time.Minute
	w.mgr.SweepOnce(context.Background())
	a, _ = w.registry.Get(id)
	if a.ConsecutiveMisses != 1 || a.Status != state.AgentActive {
		t.Fatalf("after first sweep: misses=%d status=%s", a.ConsecutiveMisses, a.Status)
	}

	w.mgr.SweepOnce(context.Background())
	a, _ = w.registry.Get(id)
	if a.Status != state.AgentInactive {
		t.Fatalf("status = %s, want inactive after %d misses", a.Status, MaxMisses)
	}
	if len(w.reassigned) != 1 || w.reassigned[0] != id {
		t.Fatalf("reassigned = %v, want the dead agent's tasks", w.reassigned)
	}
	if len(w.notified) != 1 || w.notified[0] != w.leaderID {
		t.Fatalf("notified = %v, want the leader", w.notified)
	}
}

func TestStatusOfHonorsConfiguredThreshold(t *testing.T) {
	r := newTestRegistry(t)
	a := register(t, r, state.AgentActive)
	if _, err := r.Mutate(a.ID, func(ag *state.AgentState) error {
		ag.HeartbeatTs = time.Now().Add(-2 * time.Minute)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	r.StaleThreshold = time.Hour
	st, err := r.StatusOf(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Stale {
		t.Fatal("2 min silence stale under a 1h threshold")
	}

	r.StaleThreshold = time.Minute
	st, _ = r.StatusOf(a.ID)
	if !st.Stale {
		t.Fatal("2 min silence not stale under a 1m threshold")
	}
}
