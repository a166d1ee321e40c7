// Package teams manages team configuration files: creation, discovery,
// membership, and deletion. All mutations run under the team's lock.
package teams

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Store performs team config operations.
type Store struct {
	paths *state.Paths
	bus   *bus.Bus
}

func NewStore(paths *state.Paths, b *bus.Bus) *Store {
	return &Store{paths: paths, bus: b}
}

// CreateInput configures Spawn.
type CreateInput struct {
	Name        string
	Description string
	Topology    string // default flat
	Leader      state.Member
	Roles       []state.RoleDef
	Workflow    *state.WorkflowConfig
	Rules       []state.DispatchRule
	Template    string // templateSource, informational
}

// Spawn creates a new team. Not idempotent: a duplicate name fails.
func (s *Store) Spawn(ctx context.Context, in CreateInput) (*state.Team, error) {
	if !state.ValidTeamName(in.Name) {
		return nil, errdefs.Validationf("invalid team name %q", in.Name)
	}
	if in.Leader.AgentID == "" {
		return nil, errdefs.Validationf("team %s needs a leader agent id", in.Name)
	}
	if in.Topology == "" {
		in.Topology = state.TopologyFlat
	}
	if _, err := os.Stat(s.paths.TeamConfig(in.Name)); err == nil {
		return nil, errdefs.Conflictf("team %s already exists", in.Name)
	}

	if in.Leader.JoinedAt.IsZero() {
		in.Leader.JoinedAt = time.Now().UTC()
	}
	if in.Leader.Type == "" {
		in.Leader.Type = state.RoleLeader
	}
	team := &state.Team{
		Name:           in.Name,
		CreatedAt:      time.Now().UTC(),
		LeaderID:       in.Leader.AgentID,
		Members:        []state.Member{in.Leader},
		Description:    in.Description,
		Topology:       in.Topology,
		Roles:          in.Roles,
		Workflow:       in.Workflow,
		DispatchRules:  in.Rules,
		TemplateSource: in.Template,
	}

	err := lockfile.WithLock(s.paths.TeamLock(in.Name), true, func() error {
		// Re-check under the lock: two concurrent spawns race to here.
		if _, err := os.Stat(s.paths.TeamConfig(in.Name)); err == nil {
			return errdefs.Conflictf("team %s already exists", in.Name)
		}
		return lockfile.WriteAtomic(s.paths.TeamConfig(in.Name), team)
	})
	if err != nil {
		return nil, err
	}

	s.bus.Emit(ctx, bus.NewEvent(bus.EventTeamCreated, in.Name, map[string]any{
		"leaderId": team.LeaderID,
		"topology": team.Topology,
	}))
	return team, nil
}

// Get reads a team config under a shared lock.
func (s *Store) Get(name string) (*state.Team, error) {
	var team state.Team
	err := lockfile.WithLock(s.paths.TeamLock(name), false, func() error {
		if err := lockfile.ReadValidated(s.paths.TeamConfig(name), &team); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("team %s not found", name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// Summary is a discovery record for one team.
type Summary struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Topology    string    `json:"topology"`
	LeaderID    string    `json:"leaderId"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Discover lists all teams. Unreadable configs are logged and skipped.
func (s *Store) Discover() ([]Summary, error) {
	entries, err := os.ReadDir(s.paths.TeamsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read teams dir: %w", err)
	}
	var out []Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		team, err := s.Get(entry.Name())
		if err != nil {
			slog.Warn("skipping unreadable team", "team", entry.Name(), "error", err)
			continue
		}
		out = append(out, Summary{
			Name:        team.Name,
			Description: team.Description,
			Topology:    team.Topology,
			LeaderID:    team.LeaderID,
			MemberCount: len(team.Members),
			CreatedAt:   team.CreatedAt,
		})
	}
	return out, nil
}

// Join adds a member. Fails on a duplicate agent id.
func (s *Store) Join(name string, m state.Member) (*state.Team, error) {
	if m.AgentID == "" {
		return nil, errdefs.Validationf("member agent id is required")
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	if m.Type == "" {
		m.Type = state.RoleWorker
	}
	var team state.Team
	err := lockfile.LockedUpdate(s.paths.TeamLock(name), s.paths.TeamConfig(name), &team, func() error {
		if team.IsMember(m.AgentID) {
			return errdefs.Conflictf("agent %s is already a member of team %s", m.AgentID, name)
		}
		team.Members = append(team.Members, m)
		return nil
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, errdefs.NotFoundf("team %s not found", name)
		}
		return nil, err
	}
	return &team, nil
}

// Leave removes a member. Removing the leader is refused.
func (s *Store) Leave(name, agentID string) error {
	var team state.Team
	err := lockfile.LockedUpdate(s.paths.TeamLock(name), s.paths.TeamConfig(name), &team, func() error {
		if agentID == team.LeaderID {
			return errdefs.Preconditionf("cannot remove leader %s from team %s", agentID, name)
		}
		i := slices.IndexFunc(team.Members, func(m state.Member) bool { return m.AgentID == agentID })
		if i < 0 {
			return errdefs.NotFoundf("agent %s is not a member of team %s", agentID, name)
		}
		team.Members = slices.Delete(team.Members, i, i+1)
		return nil
	})
	return err
}

// Mutate applies fn to the team config under its lock.
func (s *Store) Mutate(name string, fn func(*state.Team) error) (*state.Team, error) {
	var team state.Team
	err := lockfile.LockedUpdate(s.paths.TeamLock(name), s.paths.TeamConfig(name), &team, func() error {
		return fn(&team)
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, errdefs.NotFoundf("team %s not found", name)
		}
		return nil, err
	}
	return &team, nil
}

// Delete removes the team directory and its task directory. Deletion is
// unconditional; callers that care about live agents check first.
func (s *Store) Delete(name string) error {
	if _, err := os.Stat(s.paths.TeamConfig(name)); err != nil {
		return errdefs.NotFoundf("team %s not found", name)
	}
	if err := os.RemoveAll(s.paths.TeamDir(name)); err != nil {
		return fmt.Errorf("delete team dir: %w", err)
	}
	if err := os.RemoveAll(s.paths.TaskDir(name)); err != nil {
		return fmt.Errorf("delete task dir: %w", err)
	}
	return nil
}
