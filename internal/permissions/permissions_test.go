package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opencode-teams/internal/agents"
	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
)

func newChecker(t *testing.T) (*Checker, *teams.Store, *agents.Registry) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	paths := state.NewPaths(dir)
	ts := teams.NewStore(paths, bus.New())
	reg := agents.NewRegistry(paths)
	return NewChecker(ts, reg), ts, reg
}

func registerAgent(t *testing.T, reg *agents.Registry, role string) string {
	t.Helper()
	id := uuid.NewString()
	if err := reg.Register(&state.AgentState{
		ID:          id,
		TeamName:    "alpha",
		Role:        role,
		Status:      state.AgentActive,
		CreatedAt:   time.Now().UTC(),
		HeartbeatTs: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	return id
}

func spawnTeam(t *testing.T, ts *teams.Store, leaderID string, roles []state.RoleDef) {
	t.Helper()
	if _, err := ts.Spawn(context.Background(), teams.CreateInput{
		Name:   "alpha",
		Leader: state.Member{AgentID: leaderID},
		Roles:  roles,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestUnscopedCallerAllowed(t *testing.T) {
	c, _, _ := newChecker(t)
	dec, err := c.Check("alpha", "", "delete-team")
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatal("unscoped caller must be allowed")
	}
}

func TestDefaultRolePolicies(t *testing.T) {
	c, ts, reg := newChecker(t)
	leader := registerAgent(t, reg, state.RoleLeader)
	worker := registerAgent(t, reg, state.RoleWorker)
	reviewer := registerAgent(t, reg, state.RoleReviewer)
	manager := registerAgent(t, reg, state.RoleTaskManager)
	spawnTeam(t, ts, leader, nil)

	cases := []struct {
		name  string
		agent string
		tool  string
		want  bool
	}{
		{"leader cannot claim", leader, "claim-task", false},
		{"leader may kill", leader, "kill-agent", true},
		{"worker may claim", worker, "claim-task", true},
		{"worker cannot spawn agents", worker, "spawn-agent", false},
		{"worker cannot create tasks", worker, "create-task", false},
		{"task manager may create tasks", manager, "create-task", true},
		{"task manager cannot delete team", manager, "delete-team", false},
		{"reviewer may update tasks", reviewer, "update-task", true},
		{"reviewer may message", reviewer, "send-message", true},
		{"reviewer cannot create tasks", reviewer, "create-task", false},
		{"reviewer cannot kill", reviewer, "kill-agent", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec, err := c.Check("alpha", tc.agent, tc.tool)
			if err != nil {
				t.Fatal(err)
			}
			if dec.Allowed != tc.want {
				t.Fatalf("allowed = %v (reason %q), want %v", dec.Allowed, dec.Reason, tc.want)
			}
		})
	}
}

func TestTeamRoleOverride(t *testing.T) {
	c, ts, reg := newChecker(t)
	worker := registerAgent(t, reg, state.RoleWorker)
	leader := registerAgent(t, reg, state.RoleLeader)
	// This team lets workers mint tasks but never touch messaging.
	spawnTeam(t, ts, leader, []state.RoleDef{{
		Name:        state.RoleWorker,
		DeniedTools: []string{"send-message"},
	}})

	if dec, _ := c.Check("alpha", worker, "create-task"); !dec.Allowed {
		t.Fatal("override dropped the create-task denial, claim must pass")
	}
	if dec, _ := c.Check("alpha", worker, "send-message"); dec.Allowed {
		t.Fatal("override denial ignored")
	}
}

func TestUnknownAgentDefaultsToWorker(t *testing.T) {
	c, ts, reg := newChecker(t)
	leader := registerAgent(t, reg, state.RoleLeader)
	spawnTeam(t, ts, leader, nil)

	dec, err := c.Check("alpha", uuid.NewString(), "spawn-team")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Fatal("unknown agent must get the worker policy")
	}
	if dec.Role != state.RoleWorker {
		t.Fatalf("resolved role = %q, want worker", dec.Role)
	}
}

func TestMemberTypeFallback(t *testing.T) {
	c, ts, _ := newChecker(t)
	leader := uuid.NewString()
	spawnTeam(t, ts, leader, nil)
	if _, err := ts.Join("alpha", state.Member{AgentID: "member-only", Type: state.RoleTaskManager}); err != nil {
		t.Fatal(err)
	}

	// No registry record: the team member entry supplies the role.
	dec, err := c.Check("alpha", "member-only", "create-task")
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed || dec.Role != state.RoleTaskManager {
		t.Fatalf("decision = %+v, want task-manager allow", dec)
	}
}

func TestWildcardPatterns(t *testing.T) {
	def := state.RoleDef{Name: "observer", AllowedTools: []string{"get-*", "read-messages"}}
	if d := evaluate(def, "observer", "get-tasks"); !d.Allowed {
		t.Fatal("prefix pattern must match get-tasks")
	}
	if d := evaluate(def, "observer", "claim-task"); d.Allowed {
		t.Fatal("claim-task must miss the allow list")
	}
	deny := state.RoleDef{Name: "none", DeniedTools: []string{"*"}}
	if d := evaluate(deny, "none", "heartbeat"); d.Allowed {
		t.Fatal("star deny must block everything")
	}
}
