package state

import (
	"fmt"
	"regexp"
	"slices"
	"time"
)

// Topology controls who may claim tasks.
const (
	TopologyFlat         = "flat"
	TopologyHierarchical = "hierarchical"
)

var teamNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidTeamName reports whether name is usable as a team directory name.
func ValidTeamName(name string) bool { return teamNameRe.MatchString(name) }

// Member is one agent's membership record. Immutable once added;
// removal rewrites the team config.
type Member struct {
	AgentID  string    `json:"agentId"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RoleDef is a team-local role with tool allow/deny lists.
type RoleDef struct {
	Name         string   `json:"name"`
	AllowedTools []string `json:"allowedTools,omitempty"`
	DeniedTools  []string `json:"deniedTools,omitempty"`
}

// WorkflowConfig tunes the backlog monitor that suggests extra workers.
type WorkflowConfig struct {
	Enabled          bool      `json:"enabled"`
	MinBacklog       int       `json:"minBacklog,omitempty"`      // default 3
	BacklogRatio     float64   `json:"backlogRatio,omitempty"`    // unblocked/workers, default 2.0
	CooldownSeconds  int       `json:"cooldownSeconds,omitempty"` // default 300
	LastSuggestionAt time.Time `json:"lastSuggestionAt,omitempty"`
}

// Team is the persisted team configuration. One file per team, guarded
// by the team's .lock.
type Team struct {
	Name              string             `json:"name"`
	CreatedAt         time.Time          `json:"createdAt"`
	LeaderID          string             `json:"leaderId"`
	Members           []Member           `json:"members"`
	Description       string             `json:"description,omitempty"`
	Topology          string             `json:"topology"`
	Roles             []RoleDef          `json:"roles,omitempty"`
	Workflow          *WorkflowConfig    `json:"workflow,omitempty"`
	TemplateSource    string             `json:"templateSource,omitempty"`
	DispatchRules     []DispatchRule     `json:"dispatchRules,omitempty"`
	DispatchLog       []DispatchLogEntry `json:"dispatchLog,omitempty"`
	ShutdownApprovals []string           `json:"shutdownApprovals,omitempty"`
}

// MaxDispatchLog caps the per-team audit log; oldest entries evicted.
const MaxDispatchLog = 500

func (t *Team) Validate() error {
	if !ValidTeamName(t.Name) {
		return fmt.Errorf("invalid team name %q", t.Name)
	}
	switch t.Topology {
	case TopologyFlat, TopologyHierarchical:
	default:
		return fmt.Errorf("invalid topology %q", t.Topology)
	}
	if t.LeaderID == "" {
		return fmt.Errorf("team %s has no leader", t.Name)
	}
	if !t.IsMember(t.LeaderID) {
		return fmt.Errorf("leader %s is not a member of team %s", t.LeaderID, t.Name)
	}
	seen := make(map[string]bool, len(t.Members))
	for _, m := range t.Members {
		if m.AgentID == "" {
			return fmt.Errorf("member with empty agent id in team %s", t.Name)
		}
		if seen[m.AgentID] {
			return fmt.Errorf("duplicate member %s in team %s", m.AgentID, t.Name)
		}
		seen[m.AgentID] = true
	}
	if len(t.DispatchLog) > MaxDispatchLog {
		return fmt.Errorf("dispatch log exceeds %d entries", MaxDispatchLog)
	}
	for i := range t.DispatchRules {
		if err := t.DispatchRules[i].Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// IsMember reports whether agentID belongs to the team.
func (t *Team) IsMember(agentID string) bool {
	return slices.ContainsFunc(t.Members, func(m Member) bool { return m.AgentID == agentID })
}

// FindMember returns the membership record for agentID, if any.
func (t *Team) FindMember(agentID string) (Member, bool) {
	for _, m := range t.Members {
		if m.AgentID == agentID {
			return m, true
		}
	}
	return Member{}, false
}

// FindRole returns the team-local role definition named name, if any.
func (t *Team) FindRole(name string) (RoleDef, bool) {
	for _, r := range t.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return RoleDef{}, false
}

// AppendDispatchLog appends an entry, evicting the oldest past the cap.
func (t *Team) AppendDispatchLog(e DispatchLogEntry) {
	t.DispatchLog = append(t.DispatchLog, e)
	if n := len(t.DispatchLog); n > MaxDispatchLog {
		t.DispatchLog = t.DispatchLog[n-MaxDispatchLog:]
	}
}
