package state

import (
	"fmt"
	"regexp"
	"time"
)

// Palette is the fixed set of agent colors, assigned in order.
var Palette = []string{
	"#e06c75", "#98c379", "#e5c07b", "#61afef", "#c678dd",
	"#56b6c2", "#d19a66", "#abb2bf", "#ef596f", "#89ca78",
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ColorPool maps agent ids to their assigned pane colors. A single file
// under its own lock. AssignedAt records when each assignment was made
// so exhaustion can steal from the least recently assigned inactive
// holder; entries may be absent for pools written before the field
// existed.
type ColorPool struct {
	Assignments map[string]string    `json:"assignments"`
	AssignedAt  map[string]time.Time `json:"assignedAt,omitempty"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

func (c *ColorPool) Validate() error {
	for agentID, color := range c.Assignments {
		if agentID == "" {
			return fmt.Errorf("color assigned to empty agent id")
		}
		if !hexColorRe.MatchString(color) {
			return fmt.Errorf("agent %s: invalid color %q", agentID, color)
		}
	}
	return nil
}
