package messaging

import (
	"slices"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// RequestShutdown records agentID's wish to shut the team down. A
// non-leader requester also notifies the leader with a typed message.
// Requests from non-members are rejected.
func (s *Store) RequestShutdown(team, agentID string) error {
	return lockfile.WithLock(s.paths.TeamLock(team), true, func() error {
		cfg := &state.Team{}
		if err := lockfile.ReadValidated(s.paths.TeamConfig(team), cfg); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("team %s not found", team)
			}
			return err
		}
		if !cfg.IsMember(agentID) {
			return errdefs.NotFoundf("agent %s is not a member of team %s", agentID, team)
		}
		if !slices.Contains(cfg.ShutdownApprovals, agentID) {
			cfg.ShutdownApprovals = append(cfg.ShutdownApprovals, agentID)
			if err := lockfile.WriteAtomic(s.paths.TeamConfig(team), cfg); err != nil {
				return err
			}
		}
		if agentID != cfg.LeaderID {
			msg := state.Message{
				From:      agentID,
				To:        cfg.LeaderID,
				Body:      "shutdown requested",
				Type:      state.MsgShutdownRequest,
				Timestamp: time.Now().UTC(),
			}
			return s.appendLocked(team, cfg.LeaderID, msg)
		}
		return nil
	})
}

// ApproveShutdown records the approver and notifies every prior
// requester with a shutdown_approved message. Idempotent on the
// approvals set.
func (s *Store) ApproveShutdown(team, agentID string) error {
	return lockfile.WithLock(s.paths.TeamLock(team), true, func() error {
		cfg := &state.Team{}
		if err := lockfile.ReadValidated(s.paths.TeamConfig(team), cfg); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("team %s not found", team)
			}
			return err
		}
		if !cfg.IsMember(agentID) {
			return errdefs.NotFoundf("agent %s is not a member of team %s", agentID, team)
		}
		requesters := slices.Clone(cfg.ShutdownApprovals)
		if !slices.Contains(cfg.ShutdownApprovals, agentID) {
			cfg.ShutdownApprovals = append(cfg.ShutdownApprovals, agentID)
			if err := lockfile.WriteAtomic(s.paths.TeamConfig(team), cfg); err != nil {
				return err
			}
		}
		for _, requester := range requesters {
			if requester == agentID {
				continue
			}
			msg := state.Message{
				From:      agentID,
				To:        requester,
				Body:      "shutdown approved",
				Type:      state.MsgShutdownApproved,
				Timestamp: time.Now().UTC(),
			}
			if err := s.appendLocked(team, requester, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// ShouldShutdown is true once the leader has approved, or every member
// has.
func (s *Store) ShouldShutdown(team string) (bool, error) {
	cfg, err := s.readTeam(team)
	if err != nil {
		return false, err
	}
	if slices.Contains(cfg.ShutdownApprovals, cfg.LeaderID) {
		return true, nil
	}
	for _, m := range cfg.Members {
		if !slices.Contains(cfg.ShutdownApprovals, m.AgentID) {
			return false, nil
		}
	}
	return len(cfg.Members) > 0, nil
}
