package templates

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	s := NewStore(state.NewPaths(dir))
	s.userDir = t.TempDir() // never touch the real home directory
	return s
}

func TestBuiltinsResolve(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"code-review", "leader-workers", "swarm"} {
		tpl, source, err := s.Get(name)
		if err != nil {
			t.Fatalf("builtin %s: %v", name, err)
		}
		if source != SourceBuiltin {
			t.Fatalf("builtin %s resolved from %s", name, source)
		}
		if err := tpl.Validate(); err != nil {
			t.Fatalf("builtin %s invalid: %v", name, err)
		}
	}
	if _, _, err := s.Get("nope"); !errdefs.IsNotFound(err) {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestProjectShadowsUserShadowsBuiltin(t *testing.T) {
	s := newTestStore(t)

	userTpl := &state.TeamTemplate{Name: "swarm", Description: "user copy", Topology: state.TopologyFlat}
	if err := s.Save(userTpl, true); err != nil {
		t.Fatal(err)
	}
	if _, source, _ := s.Get("swarm"); source != SourceUser {
		t.Fatalf("resolved from %s, want user", source)
	}

	projTpl := &state.TeamTemplate{Name: "swarm", Description: "project copy", Topology: state.TopologyFlat}
	if err := s.Save(projTpl, false); err != nil {
		t.Fatal(err)
	}
	tpl, source, err := s.Get("swarm")
	if err != nil {
		t.Fatal(err)
	}
	if source != SourceProject || tpl.Description != "project copy" {
		t.Fatalf("resolved %q from %s, want project copy", tpl.Description, source)
	}
}

func TestListMergesScopes(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(&state.TeamTemplate{Name: "mine", Topology: state.TopologyFlat}, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(&state.TeamTemplate{Name: "swarm", Description: "shadowed", Topology: state.TopologyFlat}, false); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Template.Name] = e
	}
	if len(byName) != 4 { // 3 builtins, one shadowed, plus "mine"
		t.Fatalf("list returned %d unique names, want 4", len(byName))
	}
	if byName["swarm"].Source != SourceProject {
		t.Fatalf("shadowed builtin listed from %s", byName["swarm"].Source)
	}
	if byName["code-review"].Source != SourceBuiltin {
		t.Fatalf("untouched builtin listed from %s", byName["code-review"].Source)
	}
}

func TestSaveFromTeam(t *testing.T) {
	s := newTestStore(t)
	team := &state.Team{
		Name:      "alpha",
		CreatedAt: time.Now().UTC(),
		LeaderID:  "leader-1",
		Members:   []state.Member{{AgentID: "leader-1"}},
		Topology:  state.TopologyHierarchical,
		Roles:     []state.RoleDef{{Name: "worker", DeniedTools: []string{"delete-team"}}},
		Workflow:  &state.WorkflowConfig{Enabled: true, LastSuggestionAt: time.Now()},
	}

	tpl, err := s.SaveFromTeam(team, "from-alpha", "snapshot", false)
	if err != nil {
		t.Fatal(err)
	}
	if tpl.Topology != state.TopologyHierarchical || len(tpl.Roles) != 1 {
		t.Fatalf("template = %+v", tpl)
	}
	if !tpl.Workflow.LastSuggestionAt.IsZero() {
		t.Fatal("cooldown stamp must not be carried into the template")
	}

	got, source, err := s.Get("from-alpha")
	if err != nil {
		t.Fatal(err)
	}
	if source != SourceProject || got.Description != "snapshot" {
		t.Fatalf("round trip = %+v from %s", got, source)
	}
}

func TestDeleteRules(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(&state.TeamTemplate{Name: "doomed", Topology: state.TopologyFlat}, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("doomed", false); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get("doomed"); !errdefs.IsNotFound(err) {
		t.Fatal("template survives delete")
	}

	if err := s.Delete("swarm", false); !errdefs.IsPrecondition(err) {
		t.Fatalf("deleting a builtin: want PreconditionFailed, got %v", err)
	}
	if err := s.Delete("ghost", false); !errdefs.IsNotFound(err) {
		t.Fatalf("deleting unknown: want NotFound, got %v", err)
	}
}
