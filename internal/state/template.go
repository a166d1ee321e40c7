package state

import (
	"fmt"
	"time"
)

// TemplateTask is a task pre-created when a team spawns from a template.
type TemplateTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"` // default normal
}

// TeamTemplate is a blueprint for team creation. Project-local templates
// shadow user-global ones; builtins ship compiled in.
type TeamTemplate struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Topology     string          `json:"topology"`
	Roles        []RoleDef       `json:"roles,omitempty"`
	Workflow     *WorkflowConfig `json:"workflow,omitempty"`
	DefaultTasks []TemplateTask  `json:"defaultTasks,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (t *TeamTemplate) Validate() error {
	if !ValidTeamName(t.Name) {
		return fmt.Errorf("invalid template name %q", t.Name)
	}
	switch t.Topology {
	case TopologyFlat, TopologyHierarchical:
	default:
		return fmt.Errorf("template %s: invalid topology %q", t.Name, t.Topology)
	}
	for i, task := range t.DefaultTasks {
		if task.Title == "" {
			return fmt.Errorf("template %s: default task %d has no title", t.Name, i)
		}
		switch task.Priority {
		case "", PriorityHigh, PriorityNormal, PriorityLow:
		default:
			return fmt.Errorf("template %s: default task %d: invalid priority %q", t.Name, i, task.Priority)
		}
	}
	return nil
}
