// Package agents implements agent lifecycle: state registry, spawn
// orchestration, heartbeat monitoring with stale detection, graceful
// and forced termination, and context-limit session rotation.
package agents

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Liveness thresholds. Heartbeats are expected every 30 s; an agent is
// counted stale after 60 s of silence, and declared dead after two
// consecutive stale windows (75-90 s effective detection).
const (
	HeartbeatInterval = 30 * time.Second
	StaleThreshold    = 60 * time.Second
	MaxMisses         = 2
	SweepInterval     = 15 * time.Second
)

// Registry persists AgentState files under the agents lock.
// StaleThreshold may be overridden before use (config staleSeconds).
type Registry struct {
	paths *state.Paths

	StaleThreshold time.Duration
}

func NewRegistry(paths *state.Paths) *Registry {
	return &Registry{paths: paths, StaleThreshold: StaleThreshold}
}

// Register writes a fresh agent state file.
func (r *Registry) Register(a *state.AgentState) error {
	return lockfile.WithLock(r.paths.AgentLock(), true, func() error {
		if _, err := os.Stat(r.paths.AgentFile(a.ID)); err == nil {
			return errdefs.Conflictf("agent %s already registered", a.ID)
		}
		return lockfile.WriteAtomic(r.paths.AgentFile(a.ID), a)
	})
}

// Get reads one agent state.
func (r *Registry) Get(id string) (*state.AgentState, error) {
	a := &state.AgentState{}
	err := lockfile.WithLock(r.paths.AgentLock(), false, func() error {
		if err := lockfile.ReadValidated(r.paths.AgentFile(id), a); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("agent %s not found", id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns every agent state, skipping unreadable files.
func (r *Registry) List() ([]state.AgentState, error) {
	var out []state.AgentState
	err := lockfile.WithLock(r.paths.AgentLock(), false, func() error {
		entries, err := os.ReadDir(r.paths.AgentDir())
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("read agent dir: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".json") {
				continue
			}
			a := state.AgentState{}
			path := filepath.Join(r.paths.AgentDir(), name)
			if err := lockfile.ReadValidated(path, &a); err != nil {
				slog.Warn("skipping unreadable agent file", "path", path, "error", err)
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindBySession resolves the agent attached to an opencode session id.
func (r *Registry) FindBySession(sessionID string) (*state.AgentState, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].SessionID == sessionID {
			return &all[i], nil
		}
	}
	return nil, errdefs.NotFoundf("no agent for session %s", sessionID)
}

// Mutate applies fn to the agent state under the agents lock.
func (r *Registry) Mutate(id string, fn func(*state.AgentState) error) (*state.AgentState, error) {
	a := &state.AgentState{}
	err := lockfile.LockedUpdate(r.paths.AgentLock(), r.paths.AgentFile(id), a, func() error {
		if err := fn(a); err != nil {
			return err
		}
		now := time.Now().UTC()
		a.UpdatedAt = &now
		a.DeriveActive()
		return nil
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, errdefs.NotFoundf("agent %s not found", id)
		}
		return nil, err
	}
	return a, nil
}

// Transition moves the agent through the status machine, rejecting
// unsanctioned moves.
func (r *Registry) Transition(id, to string) (*state.AgentState, error) {
	return r.Mutate(id, func(a *state.AgentState) error {
		if !state.ValidAgentTransition(a.Status, to) {
			return errdefs.Conflictf("invalid agent status transition: %s -> %s", a.Status, to)
		}
		a.Status = to
		if to == state.AgentTerminated {
			now := time.Now().UTC()
			a.TerminatedAt = &now
		}
		return nil
	})
}

// HeartbeatSource labels where a heartbeat came from.
const (
	SourceExplicit       = "explicit"
	SourceSDKSessionIdle = "sdk_session_idle"
	SourceSDKActivity    = "sdk_activity"
)

// Heartbeat refreshes liveness: heartbeatTs=now, misses reset, optional
// status update. Idempotent.
func (r *Registry) Heartbeat(id, status, source string) (*state.AgentState, error) {
	a, err := r.Mutate(id, func(a *state.AgentState) error {
		a.HeartbeatTs = time.Now().UTC()
		a.ConsecutiveMisses = 0
		if status != "" && status != a.Status {
			if !state.ValidAgentTransition(a.Status, status) {
				return errdefs.Conflictf("invalid agent status transition: %s -> %s", a.Status, status)
			}
			a.Status = status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("heartbeat", "agent", id, "source", source, "status", a.Status)
	return a, nil
}

// Remove deletes a terminated agent's state file.
func (r *Registry) Remove(id string) error {
	return lockfile.WithLock(r.paths.AgentLock(), true, func() error {
		return os.Remove(r.paths.AgentFile(id))
	})
}

// Status reports effective liveness for get-agent-status.
type Status struct {
	Agent        state.AgentState `json:"agent"`
	HeartbeatAge time.Duration    `json:"heartbeatAgeMs"`
	Stale        bool             `json:"stale"`
}

// StatusOf augments the stored state with derived staleness.
func (r *Registry) StatusOf(id string) (*Status, error) {
	a, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	age := time.Since(a.HeartbeatTs)
	return &Status{
		Agent:        *a,
		HeartbeatAge: age,
		Stale:        a.IsActive && age > r.StaleThreshold,
	}, nil
}
