package state

import (
	"fmt"
	"time"
)

// Task status values. Transitions are forward-only; the sole sanctioned
// backward move is the reassignment reset in the task engine.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Task is one unit of work, stored as tasks/<team>/<id>.json.
// Dependencies and Blocks are dual lists: A.Dependencies contains B iff
// B.Blocks contains A across the team's task set.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Priority     string     `json:"priority"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
	ClaimedAt    *time.Time `json:"claimedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	Dependencies []string   `json:"dependencies"`
	Blocks       []string   `json:"blocks"`
	Warning      string     `json:"warning,omitempty"`
}

func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has no id")
	}
	if t.Title == "" {
		return fmt.Errorf("task %s has no title", t.ID)
	}
	switch t.Priority {
	case PriorityHigh, PriorityNormal, PriorityLow:
	default:
		return fmt.Errorf("task %s: invalid priority %q", t.ID, t.Priority)
	}
	switch t.Status {
	case TaskPending, TaskInProgress, TaskCompleted:
	default:
		return fmt.Errorf("task %s: invalid status %q", t.ID, t.Status)
	}
	for _, d := range t.Dependencies {
		if d == t.ID {
			return fmt.Errorf("task %s depends on itself", t.ID)
		}
	}
	return nil
}

// PriorityRank orders priorities for scheduling (lower is more urgent).
func PriorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}
