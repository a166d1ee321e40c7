package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Claim atomically takes ownership of a pending task. Exactly one of any
// set of concurrent claims on the same task succeeds; the rest fail with
// a "not available" conflict. Claims on tasks with unmet dependencies
// succeed but carry a warning (soft blocking).
func (e *Engine) Claim(ctx context.Context, team, id, agentID string) (*state.Task, error) {
	if agentID == "" {
		return nil, errdefs.Validationf("agentId is required to claim a task")
	}
	var task state.Task
	err := lockfile.WithLock(e.paths.TaskLock(team), true, func() error {
		if err := lockfile.ReadValidated(e.paths.TaskFile(team, id), &task); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("task %s not found in team %s", id, team)
			}
			return err
		}
		if task.Status != state.TaskPending {
			return errdefs.Conflictf("task %s is not available for claiming (status %s)", id, task.Status)
		}
		if err := e.checkClaimAllowed(team, agentID); err != nil {
			return err
		}

		unmet := false
		for _, dep := range task.Dependencies {
			d, err := e.stat(team, dep)
			if err != nil || d.Status != state.TaskCompleted {
				unmet = true
				break
			}
		}
		if unmet {
			task.Warning = UnmetDepsWarning
		}

		now := time.Now().UTC()
		task.Status = state.TaskInProgress
		task.Owner = agentID
		task.ClaimedAt = &now
		task.UpdatedAt = &now
		return lockfile.WriteAtomic(e.paths.TaskFile(team, id), &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// checkClaimAllowed enforces hierarchical topology: only the leader or
// agents with a leader/task-manager role may claim. Flat topology allows
// anyone. Caller holds the task lock; team config and agent state are
// read without their locks (point-in-time reads are fine here).
func (e *Engine) checkClaimAllowed(team, agentID string) error {
	var cfg state.Team
	if err := lockfile.ReadValidated(e.paths.TeamConfig(team), &cfg); err != nil {
		return err
	}
	if cfg.Topology != state.TopologyHierarchical {
		return nil
	}
	if agentID == cfg.LeaderID {
		return nil
	}
	var agent state.AgentState
	if err := lockfile.ReadValidated(e.paths.AgentFile(agentID), &agent); err == nil {
		if agent.Role == state.RoleLeader || agent.Role == state.RoleTaskManager {
			return nil
		}
	}
	if m, ok := cfg.FindMember(agentID); ok {
		if m.Type == state.RoleLeader || m.Type == state.RoleTaskManager {
			return nil
		}
	}
	return errdefs.Preconditionf("hierarchical topology: agent %s may not claim tasks directly", agentID)
}

// Reassign resets every in_progress task owned by agentID back to
// pending. This is the single sanctioned backward transition, reserved
// for agent-death recovery. Returns the reassigned task ids.
func (e *Engine) Reassign(ctx context.Context, team, agentID string) ([]string, error) {
	var reassigned []string
	err := lockfile.WithLock(e.paths.TaskLock(team), true, func() error {
		tasks, err := e.readAll(team)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.Status != state.TaskInProgress || t.Owner != agentID {
				continue
			}
			t.Status = state.TaskPending
			t.Owner = ""
			t.ClaimedAt = nil
			t.Warning = fmt.Sprintf("Reassigned: previous owner %s terminated", agentID)
			now := time.Now().UTC()
			t.UpdatedAt = &now
			if err := lockfile.WriteAtomic(e.paths.TaskFile(team, t.ID), &t); err != nil {
				return err
			}
			reassigned = append(reassigned, t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reassigned, nil
}
