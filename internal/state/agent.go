package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agent roles.
const (
	RoleLeader      = "leader"
	RoleWorker      = "worker"
	RoleReviewer    = "reviewer"
	RoleTaskManager = "task-manager"
)

// Agent status values.
const (
	AgentSpawning     = "spawning"
	AgentActive       = "active"
	AgentIdle         = "idle"
	AgentInactive     = "inactive"
	AgentShuttingDown = "shutting_down"
	AgentTerminated   = "terminated"
)

// agentTransitions is the forward status machine; any state may also be
// forced to terminated.
var agentTransitions = map[string][]string{
	AgentSpawning:     {AgentActive, AgentTerminated},
	AgentActive:       {AgentIdle, AgentShuttingDown, AgentInactive, AgentTerminated},
	AgentIdle:         {AgentActive, AgentShuttingDown, AgentInactive, AgentTerminated},
	AgentInactive:     {AgentTerminated},
	AgentShuttingDown: {AgentTerminated},
	AgentTerminated:   {},
}

// ValidAgentTransition reports whether from -> to is sanctioned.
// Same-state is a no-op and always valid.
func ValidAgentTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range agentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AgentState is the persisted record for one subprocess-backed agent,
// stored as agents/<id>.json under the agents lock.
type AgentState struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	TeamName             string     `json:"teamName"`
	Role                 string     `json:"role"`
	Model                string     `json:"model"`
	ProviderID           string     `json:"providerId,omitempty"`
	SessionID            string     `json:"sessionId"`
	PaneID               string     `json:"paneId,omitempty"`
	ServerPort           int        `json:"serverPort"`
	Cwd                  string     `json:"cwd"`
	InitialPrompt        string     `json:"initialPrompt,omitempty"`
	Color                string     `json:"color"`
	Status               string     `json:"status"`
	IsActive             bool       `json:"isActive"`
	CreatedAt            time.Time  `json:"createdAt"`
	HeartbeatTs          time.Time  `json:"heartbeatTs"`
	UpdatedAt            *time.Time `json:"updatedAt,omitempty"`
	TerminatedAt         *time.Time `json:"terminatedAt,omitempty"`
	ConsecutiveMisses    int        `json:"consecutiveMisses"`
	LastError            string     `json:"lastError,omitempty"`
	SessionRotationCount int        `json:"sessionRotationCount"`
}

func (a *AgentState) Validate() error {
	if _, err := uuid.Parse(a.ID); err != nil {
		return fmt.Errorf("agent id %q is not a UUID: %w", a.ID, err)
	}
	if a.TeamName == "" {
		return fmt.Errorf("agent %s has no team", a.ID)
	}
	switch a.Role {
	case RoleLeader, RoleWorker, RoleReviewer, RoleTaskManager:
	default:
		return fmt.Errorf("agent %s: invalid role %q", a.ID, a.Role)
	}
	switch a.Status {
	case AgentSpawning, AgentActive, AgentIdle, AgentInactive, AgentShuttingDown, AgentTerminated:
	default:
		return fmt.Errorf("agent %s: invalid status %q", a.ID, a.Status)
	}
	if a.ConsecutiveMisses < 0 {
		return fmt.Errorf("agent %s: negative consecutiveMisses", a.ID)
	}
	return nil
}

// DeriveActive recomputes the isActive flag from status.
func (a *AgentState) DeriveActive() {
	a.IsActive = a.Status == AgentActive || a.Status == AgentIdle
}
