package tasks

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Update is a partial task update; nil fields are left untouched.
type Update struct {
	Title        *string
	Description  *string
	Priority     *string
	Status       *string
	Dependencies *[]string
}

// Apply mutates the task, rebalancing blocks on dependency changes and
// enforcing the forward-only status machine. On a transition into
// completed it cascades: the completed id is removed from every other
// task's dependencies and blocks, warnings are cleared when the last
// dependency goes away, and task.unblocked fires for each pending task
// whose dependency set just emptied.
func (e *Engine) Apply(ctx context.Context, team, id string, up Update) (*state.Task, error) {
	var task state.Task
	var events []bus.Event

	err := lockfile.WithLock(e.paths.TaskLock(team), true, func() error {
		if err := lockfile.ReadValidated(e.paths.TaskFile(team, id), &task); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("task %s not found in team %s", id, team)
			}
			return err
		}

		if up.Title != nil {
			task.Title = *up.Title
		}
		if up.Description != nil {
			task.Description = *up.Description
		}
		if up.Priority != nil {
			task.Priority = *up.Priority
		}

		if up.Dependencies != nil {
			newDeps := slices.Clone(*up.Dependencies)
			for _, dep := range newDeps {
				if dep == id {
					return errdefs.Conflictf("circular dependency detected involving task %s", id)
				}
				if _, err := e.stat(team, dep); err != nil {
					return errdefs.NotFoundf("dependency task %s not found", dep)
				}
			}
			if err := e.checkCycle(team, id, newDeps); err != nil {
				return err
			}
			if err := e.rebalanceBlocks(team, id, task.Dependencies, newDeps); err != nil {
				return err
			}
			task.Dependencies = newDeps
		}

		completed := false
		if up.Status != nil && *up.Status != task.Status {
			if !slices.Contains(validTransitions[task.Status], *up.Status) {
				return errdefs.Conflictf("Invalid status transition: %s -> %s", task.Status, *up.Status)
			}
			task.Status = *up.Status
			if task.Status == state.TaskCompleted {
				now := time.Now().UTC()
				task.CompletedAt = &now
				completed = true
			}
		}

		now := time.Now().UTC()
		task.UpdatedAt = &now
		if err := lockfile.WriteAtomic(e.paths.TaskFile(team, id), &task); err != nil {
			return err
		}

		if completed {
			events = append(events, bus.NewEvent(bus.EventTaskCompleted, team, map[string]any{
				"taskId": task.ID,
				"owner":  task.Owner,
			}))
			unblocked, err := e.cascadeUnblock(team, id)
			if err != nil {
				return err
			}
			task.Blocks = []string{}
			if err := lockfile.WriteAtomic(e.paths.TaskFile(team, id), &task); err != nil {
				return err
			}
			for _, uid := range unblocked {
				events = append(events, bus.NewEvent(bus.EventTaskUnblocked, team, map[string]any{
					"taskId": uid,
				}))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		e.bus.Emit(ctx, ev)
	}
	return &task, nil
}

func (e *Engine) stat(team, id string) (*state.Task, error) {
	var t state.Task
	if err := lockfile.ReadValidated(e.paths.TaskFile(team, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// rebalanceBlocks updates reverse pointers on the symmetric difference
// of the old and new dependency sets. Caller holds the task lock.
func (e *Engine) rebalanceBlocks(team, id string, oldDeps, newDeps []string) error {
	for _, dep := range oldDeps {
		if slices.Contains(newDeps, dep) {
			continue
		}
		var d state.Task
		if err := lockfile.ReadValidated(e.paths.TaskFile(team, dep), &d); err != nil {
			slog.Warn("skipping blocks removal on unreadable dependency", "task", dep, "error", err)
			continue
		}
		if i := slices.Index(d.Blocks, id); i >= 0 {
			d.Blocks = slices.Delete(d.Blocks, i, i+1)
			if err := lockfile.WriteAtomic(e.paths.TaskFile(team, dep), &d); err != nil {
				return err
			}
		}
	}
	for _, dep := range newDeps {
		if slices.Contains(oldDeps, dep) {
			continue
		}
		var d state.Task
		if err := lockfile.ReadValidated(e.paths.TaskFile(team, dep), &d); err != nil {
			return err
		}
		if !slices.Contains(d.Blocks, id) {
			d.Blocks = append(d.Blocks, id)
			if err := lockfile.WriteAtomic(e.paths.TaskFile(team, dep), &d); err != nil {
				return err
			}
		}
	}
	return nil
}

// cascadeUnblock removes completedID from every other task's
// dependencies and blocks. Returns ids of pending tasks whose dependency
// set just reached zero. Individual failures are skipped (best effort)
// so one bad file cannot stall completion. Caller holds the task lock.
func (e *Engine) cascadeUnblock(team, completedID string) ([]string, error) {
	tasks, err := e.readAll(team)
	if err != nil {
		return nil, err
	}
	var unblocked []string
	for _, t := range tasks {
		if t.ID == completedID {
			continue
		}
		changed := false
		if i := slices.Index(t.Dependencies, completedID); i >= 0 {
			t.Dependencies = slices.Delete(t.Dependencies, i, i+1)
			changed = true
			if len(t.Dependencies) == 0 {
				if strings.Contains(t.Warning, UnmetDepsWarning) {
					t.Warning = ""
				}
				if t.Status == state.TaskPending {
					unblocked = append(unblocked, t.ID)
				}
			}
		}
		if i := slices.Index(t.Blocks, completedID); i >= 0 {
			t.Blocks = slices.Delete(t.Blocks, i, i+1)
			changed = true
		}
		if !changed {
			continue
		}
		if err := lockfile.WriteAtomic(e.paths.TaskFile(team, t.ID), &t); err != nil {
			slog.Warn("cascade unblock skipped dependent task", "task", t.ID, "error", err)
		}
	}
	return unblocked, nil
}
