// Package tasks implements the dependency-ordered task engine: creation,
// filtered listing, forward-only status updates with cascade unblock,
// race-free claiming, and the reassignment path used by agent-death
// recovery. All mutations run under the team's task-dir lock; events are
// emitted only after the lock is released.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// UnmetDepsWarning is attached on soft-blocked claims and cleared when
// the last dependency completes.
const UnmetDepsWarning = "dependencies are not met"

// validTransitions is the forward-only status machine. Same-state
// updates are no-ops.
var validTransitions = map[string][]string{
	state.TaskPending:    {state.TaskInProgress},
	state.TaskInProgress: {state.TaskCompleted},
	state.TaskCompleted:  {},
}

// Engine performs all task operations for all teams.
type Engine struct {
	paths *state.Paths
	bus   *bus.Bus
}

func NewEngine(paths *state.Paths, b *bus.Bus) *Engine {
	return &Engine{paths: paths, bus: b}
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Title        string
	Description  string
	Priority     string
	Dependencies []string
}

// Create validates dependencies, rejects cycles, writes the new task,
// and appends its id to each dependency's blocks list.
func (e *Engine) Create(ctx context.Context, team string, in CreateInput) (*state.Task, error) {
	if _, err := os.Stat(e.paths.TeamConfig(team)); err != nil {
		return nil, errdefs.NotFoundf("team %s not found", team)
	}
	if in.Title == "" {
		return nil, errdefs.Validationf("task title is required")
	}
	if in.Priority == "" {
		in.Priority = state.PriorityNormal
	}

	task := &state.Task{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		Priority:     in.Priority,
		Status:       state.TaskPending,
		CreatedAt:    time.Now().UTC(),
		Dependencies: slices.Clone(in.Dependencies),
		Blocks:       []string{},
	}
	if task.Dependencies == nil {
		task.Dependencies = []string{}
	}

	err := lockfile.WithLock(e.paths.TaskLock(team), true, func() error {
		for _, dep := range task.Dependencies {
			if _, err := os.Stat(e.paths.TaskFile(team, dep)); err != nil {
				return errdefs.NotFoundf("dependency task %s not found", dep)
			}
		}
		if err := e.checkCycle(team, task.ID, task.Dependencies); err != nil {
			return err
		}
		if err := lockfile.WriteAtomic(e.paths.TaskFile(team, task.ID), task); err != nil {
			return err
		}
		for _, dep := range task.Dependencies {
			var d state.Task
			if err := lockfile.ReadValidated(e.paths.TaskFile(team, dep), &d); err != nil {
				return err
			}
			if !slices.Contains(d.Blocks, task.ID) {
				d.Blocks = append(d.Blocks, task.ID)
				if err := lockfile.WriteAtomic(e.paths.TaskFile(team, dep), &d); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.bus.Emit(ctx, bus.NewEvent(bus.EventTaskCreated, team, map[string]any{
		"taskId":   task.ID,
		"title":    task.Title,
		"priority": task.Priority,
	}))
	return task, nil
}

// checkCycle walks breadth-first from the candidate task's dependencies
// over stored dependency lists. Surfacing the candidate id means the new
// edge set would close a cycle. Caller holds the task lock.
func (e *Engine) checkCycle(team, candidateID string, deps []string) error {
	queue := slices.Clone(deps)
	visited := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == candidateID {
			return errdefs.Conflictf("circular dependency detected involving task %s", candidateID)
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		var t state.Task
		if err := lockfile.ReadValidated(e.paths.TaskFile(team, id), &t); err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return err
		}
		queue = append(queue, t.Dependencies...)
	}
	return nil
}

// Get reads one task under a shared lock.
func (e *Engine) Get(team, id string) (*state.Task, error) {
	var task state.Task
	err := lockfile.WithLock(e.paths.TaskLock(team), false, func() error {
		if err := lockfile.ReadValidated(e.paths.TaskFile(team, id), &task); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("task %s not found in team %s", id, team)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Filter narrows List results with exact matches.
type Filter struct {
	Status string
	Owner  string
}

// List returns the team's tasks under a shared lock. Corrupted files are
// logged and skipped so one bad file does not block the listing. Order
// is not guaranteed.
func (e *Engine) List(team string, f Filter) ([]state.Task, error) {
	var out []state.Task
	err := lockfile.WithLock(e.paths.TaskLock(team), false, func() error {
		tasks, err := e.readAll(team)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if f.Status != "" && t.Status != f.Status {
				continue
			}
			if f.Owner != "" && t.Owner != f.Owner {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readAll loads every task file in the team dir, skipping corrupted
// ones. Caller holds the task lock.
func (e *Engine) readAll(team string) ([]state.Task, error) {
	entries, err := os.ReadDir(e.paths.TaskDir(team))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task dir: %w", err)
	}
	var tasks []state.Task
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		var t state.Task
		path := filepath.Join(e.paths.TaskDir(team), name)
		if err := lockfile.ReadValidated(path, &t); err != nil {
			slog.Warn("skipping unreadable task file", "path", path, "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Delete removes a task. Refused while any other task depends on it.
func (e *Engine) Delete(team, id string) error {
	return lockfile.WithLock(e.paths.TaskLock(team), true, func() error {
		var task state.Task
		if err := lockfile.ReadValidated(e.paths.TaskFile(team, id), &task); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.NotFoundf("task %s not found in team %s", id, team)
			}
			return err
		}
		tasks, err := e.readAll(team)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.ID != id && slices.Contains(t.Dependencies, id) {
				return errdefs.Conflictf("cannot delete task %s: task %s depends on it", id, t.ID)
			}
		}
		for _, dep := range task.Dependencies {
			var d state.Task
			if err := lockfile.ReadValidated(e.paths.TaskFile(team, dep), &d); err != nil {
				slog.Warn("skipping blocks cleanup on unreadable dependency", "task", dep, "error", err)
				continue
			}
			if i := slices.Index(d.Blocks, id); i >= 0 {
				d.Blocks = slices.Delete(d.Blocks, i, i+1)
				if err := lockfile.WriteAtomic(e.paths.TaskFile(team, dep), &d); err != nil {
					return err
				}
			}
		}
		return os.Remove(e.paths.TaskFile(team, id))
	})
}
