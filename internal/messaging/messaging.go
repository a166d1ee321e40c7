// Package messaging implements per-agent append-only inboxes with typed
// messages, read-tracking retrieval, and pull-based long polling. Inbox
// files live under the team directory and share the team lock.
package messaging

import (
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Store performs inbox operations. PollTick may be overridden before
// use (config pollTickMs).
type Store struct {
	paths *state.Paths

	PollTick time.Duration
}

func NewStore(paths *state.Paths) *Store {
	return &Store{paths: paths, PollTick: DefaultPollTick}
}

func (s *Store) readTeam(team string) (*state.Team, error) {
	var cfg state.Team
	if err := lockfile.ReadValidated(s.paths.TeamConfig(team), &cfg); err != nil {
		if errdefs.IsNotFound(err) {
			return nil, errdefs.NotFoundf("team %s not found", team)
		}
		return nil, err
	}
	return &cfg, nil
}

// Write appends a plain message to one member's inbox.
func (s *Store) Write(team, toAgent, body, fromAgent string) error {
	return s.SendTyped(team, toAgent, body, state.MsgPlain, fromAgent)
}

// SendTyped appends a message with an explicit type to one member's
// inbox, creating the inbox file on first delivery.
func (s *Store) SendTyped(team, toAgent, body, msgType, fromAgent string) error {
	if msgType == "" {
		msgType = state.MsgPlain
	}
	return lockfile.WithLock(s.paths.TeamLock(team), true, func() error {
		cfg := state.Team{}
		if err := lockfile.ReadValidated(s.paths.TeamConfig(team), &cfg); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("team %s not found", team)
			}
			return err
		}
		if !cfg.IsMember(toAgent) {
			return errdefs.NotFoundf("agent %s is not a member of team %s", toAgent, team)
		}
		msg := state.Message{
			From:      fromAgent,
			To:        toAgent,
			Body:      body,
			Type:      msgType,
			Timestamp: time.Now().UTC(),
		}
		return s.appendLocked(team, toAgent, msg)
	})
}

// Broadcast delivers a copy of the message to every member's inbox
// except the sender's. The stored messages carry to="broadcast" and the
// full recipient list.
func (s *Store) Broadcast(team, body, fromAgent string) ([]string, error) {
	var recipients []string
	err := lockfile.WithLock(s.paths.TeamLock(team), true, func() error {
		cfg := state.Team{}
		if err := lockfile.ReadValidated(s.paths.TeamConfig(team), &cfg); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("team %s not found", team)
			}
			return err
		}
		all := make([]string, 0, len(cfg.Members))
		for _, m := range cfg.Members {
			all = append(all, m.AgentID)
		}
		msg := state.Message{
			From:       fromAgent,
			To:         state.BroadcastRecipient,
			Body:       body,
			Type:       state.MsgPlain,
			Timestamp:  time.Now().UTC(),
			Recipients: all,
		}
		for _, m := range cfg.Members {
			if m.AgentID == fromAgent {
				continue
			}
			if err := s.appendLocked(team, m.AgentID, msg); err != nil {
				return err
			}
			recipients = append(recipients, m.AgentID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recipients, nil
}

// appendLocked appends to an inbox file, creating it when absent.
// Caller holds the team lock.
func (s *Store) appendLocked(team, agentID string, msg state.Message) error {
	inbox := &state.Inbox{}
	path := s.paths.Inbox(team, agentID)
	if err := lockfile.ReadValidated(path, inbox); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	inbox.Messages = append(inbox.Messages, msg)
	return lockfile.WriteAtomic(path, inbox)
}

// Peek returns an inbox's messages without flipping read flags. Used by
// observers like the dashboard.
func (s *Store) Peek(team, agentID string) ([]state.Message, error) {
	inbox := &state.Inbox{}
	err := lockfile.WithLock(s.paths.TeamLock(team), false, func() error {
		if err := lockfile.ReadValidated(s.paths.Inbox(team, agentID), inbox); err != nil {
			if errdefs.IsNotFound(err) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range inbox.Messages {
		inbox.Messages[i].Type = inbox.Messages[i].EffectiveType()
	}
	return inbox.Messages, nil
}

// Read returns the agent's messages newer than since (all when since is
// zero), flipping their read flags. Filtered-out older messages keep
// their flags untouched.
func (s *Store) Read(team, agentID string, since time.Time) ([]state.Message, error) {
	var out []state.Message
	err := lockfile.WithLock(s.paths.TeamLock(team), true, func() error {
		inbox := &state.Inbox{}
		path := s.paths.Inbox(team, agentID)
		if err := lockfile.ReadValidated(path, inbox); err != nil {
			if errdefs.IsNotFound(err) {
				return nil
			}
			return err
		}
		changed := false
		for i := range inbox.Messages {
			m := &inbox.Messages[i]
			if !since.IsZero() && !m.Timestamp.After(since) {
				continue
			}
			cp := *m
			cp.Type = cp.EffectiveType()
			out = append(out, cp)
			if !m.Read {
				m.Read = true
				changed = true
			}
		}
		if changed {
			return lockfile.WriteAtomic(path, inbox)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
