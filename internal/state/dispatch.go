package state

import (
	"fmt"
	"time"
)

// Condition kinds.
const (
	CondSimpleMatch   = "simple_match"
	CondResourceCount = "resource_count"
)

// Countable resources for resource_count conditions.
const (
	ResourceUnblockedTasks = "unblocked_tasks"
	ResourceActiveAgents   = "active_agents"
)

// Comparison operators shared by both condition kinds.
const (
	OpEq  = "eq"
	OpNeq = "neq"
	OpGt  = "gt"
	OpLt  = "lt"
	OpGte = "gte"
	OpLte = "lte"
)

// Action kinds.
const (
	ActionAssignTask   = "assign_task"
	ActionNotifyLeader = "notify_leader"
	ActionLog          = "log"
)

// Condition guards a dispatch rule. Exactly one kind is used:
// simple_match compares a dotted payload field; resource_count compares
// a live count of world state.
type Condition struct {
	Kind     string `json:"kind"`
	Field    string `json:"field,omitempty"`    // simple_match: dotted path into payload
	Resource string `json:"resource,omitempty"` // resource_count: unblocked_tasks | active_agents
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

func (c *Condition) Validate() error {
	switch c.Operator {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte:
	default:
		return fmt.Errorf("invalid operator %q", c.Operator)
	}
	switch c.Kind {
	case CondSimpleMatch:
		if c.Field == "" {
			return fmt.Errorf("simple_match condition has no field")
		}
	case CondResourceCount:
		if c.Resource != ResourceUnblockedTasks && c.Resource != ResourceActiveAgents {
			return fmt.Errorf("invalid resource %q", c.Resource)
		}
	default:
		return fmt.Errorf("invalid condition kind %q", c.Kind)
	}
	return nil
}

// Action is what a matched rule executes.
type Action struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"` // notify_leader / log payload
}

func (a *Action) Validate() error {
	switch a.Kind {
	case ActionAssignTask, ActionNotifyLeader, ActionLog:
		return nil
	default:
		return fmt.Errorf("invalid action kind %q", a.Kind)
	}
}

// DispatchRule reacts to one event type. Lower priority runs first.
type DispatchRule struct {
	ID        string     `json:"id"`
	EventType string     `json:"eventType"`
	Condition *Condition `json:"condition,omitempty"`
	Action    Action     `json:"action"`
	Priority  int        `json:"priority"`
	Enabled   bool       `json:"enabled"`
}

func (r *DispatchRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule has no id")
	}
	if r.EventType == "" {
		return fmt.Errorf("rule %s has no event type", r.ID)
	}
	if r.Condition != nil {
		if err := r.Condition.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	if err := r.Action.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}

// DispatchLogEntry is one audit record of a rule execution.
type DispatchLogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RuleID    string    `json:"ruleId"`
	EventType string    `json:"eventType"`
	Success   bool      `json:"success"`
	Details   string    `json:"details,omitempty"`
}
