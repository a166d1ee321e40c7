package teams

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	return NewStore(state.NewPaths(dir), bus.New())
}

func spawnAlpha(t *testing.T, s *Store) *state.Team {
	t.Helper()
	team, err := s.Spawn(context.Background(), CreateInput{
		Name:   "alpha",
		Leader: state.Member{AgentID: "leader-1", Name: "lead"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return team
}

func TestSpawnDefaults(t *testing.T) {
	s := newTestStore(t)
	team := spawnAlpha(t, s)

	if team.Topology != state.TopologyFlat {
		t.Fatalf("topology = %q, want flat default", team.Topology)
	}
	if team.LeaderID != "leader-1" || len(team.Members) != 1 {
		t.Fatalf("leader not registered as sole member: %+v", team)
	}
	if team.Members[0].Type != state.RoleLeader {
		t.Fatalf("leader member type = %q", team.Members[0].Type)
	}
}

func TestSpawnDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	spawnAlpha(t, s)
	_, err := s.Spawn(context.Background(), CreateInput{
		Name:   "alpha",
		Leader: state.Member{AgentID: "other"},
	})
	if !errdefs.IsConflict(err) {
		t.Fatalf("want Conflict on duplicate spawn, got %v", err)
	}
}

func TestSpawnInvalidName(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "has space", "slash/name", "dot.dot"} {
		if _, err := s.Spawn(context.Background(), CreateInput{
			Name:   name,
			Leader: state.Member{AgentID: "x"},
		}); !errdefs.IsValidation(err) {
			t.Errorf("name %q: want Validation, got %v", name, err)
		}
	}
}

func TestJoinAndLeave(t *testing.T) {
	s := newTestStore(t)
	spawnAlpha(t, s)

	team, err := s.Join("alpha", state.Member{AgentID: "w1", Name: "worker"})
	if err != nil {
		t.Fatal(err)
	}
	if len(team.Members) != 2 {
		t.Fatalf("member count = %d, want 2", len(team.Members))
	}
	if team.Members[1].Type != state.RoleWorker {
		t.Fatalf("joined member type = %q, want worker default", team.Members[1].Type)
	}

	if _, err := s.Join("alpha", state.Member{AgentID: "w1"}); !errdefs.IsConflict(err) {
		t.Fatalf("duplicate join: want Conflict, got %v", err)
	}

	if err := s.Leave("alpha", "leader-1"); !errdefs.IsPrecondition(err) {
		t.Fatalf("removing leader: want PreconditionFailed, got %v", err)
	}
	if err := s.Leave("alpha", "w1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Leave("alpha", "w1"); !errdefs.IsNotFound(err) {
		t.Fatalf("second leave: want NotFound, got %v", err)
	}
}

func TestDiscover(t *testing.T) {
	s := newTestStore(t)
	if teams, err := s.Discover(); err != nil || len(teams) != 0 {
		t.Fatalf("empty discover = %v, %v", teams, err)
	}
	spawnAlpha(t, s)
	if _, err := s.Spawn(context.Background(), CreateInput{
		Name:     "beta",
		Topology: state.TopologyHierarchical,
		Leader:   state.Member{AgentID: "leader-2"},
	}); err != nil {
		t.Fatal(err)
	}

	teams, err := s.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if len(teams) != 2 {
		t.Fatalf("discover found %d teams, want 2", len(teams))
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("ghost"); !errdefs.IsNotFound(err) {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestDeleteRemovesTeam(t *testing.T) {
	s := newTestStore(t)
	spawnAlpha(t, s)
	if err := s.Delete("alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("alpha"); !errdefs.IsNotFound(err) {
		t.Fatalf("team still readable after delete: %v", err)
	}
	if err := s.Delete("alpha"); !errdefs.IsNotFound(err) {
		t.Fatalf("second delete: want NotFound, got %v", err)
	}
}

func TestDispatchLogCap(t *testing.T) {
	s := newTestStore(t)
	spawnAlpha(t, s)

	team, err := s.Mutate("alpha", func(tm *state.Team) error {
		for i := 0; i < state.MaxDispatchLog+25; i++ {
			tm.AppendDispatchLog(state.DispatchLogEntry{
				ID:        "e",
				RuleID:    "r",
				EventType: "task.created",
			})
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(team.DispatchLog) != state.MaxDispatchLog {
		t.Fatalf("dispatch log length = %d, want cap %d", len(team.DispatchLog), state.MaxDispatchLog)
	}
}
