package state

import (
	"fmt"
	"time"
)

// Server port range: 28000 + (first 16 bits of MD5(project path) mod 1000).
const (
	ServerPortBase  = 28000
	ServerPortRange = 1000
)

// DefaultHostname is where the backing opencode server binds.
const DefaultHostname = "127.0.0.1"

// ServerInfo records the one backing opencode server per project,
// stored as servers/<project-hash>/server.json.
type ServerInfo struct {
	ProjectPath     string     `json:"projectPath"`
	ProjectHash     string     `json:"projectHash"`
	PID             int        `json:"pid"`
	Port            int        `json:"port"`
	Hostname        string     `json:"hostname"`
	IsRunning       bool       `json:"isRunning"`
	ActiveSessions  int        `json:"activeSessions"`
	LogPath         string     `json:"logPath,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	LastHealthCheck *time.Time `json:"lastHealthCheck,omitempty"`
}

func (s *ServerInfo) Validate() error {
	if s.ProjectPath == "" {
		return fmt.Errorf("server info has no project path")
	}
	if s.ProjectHash == "" {
		return fmt.Errorf("server info has no project hash")
	}
	if s.Port < ServerPortBase || s.Port >= ServerPortBase+ServerPortRange {
		return fmt.Errorf("port %d outside %d-%d", s.Port, ServerPortBase, ServerPortBase+ServerPortRange-1)
	}
	if s.ActiveSessions < 0 {
		return fmt.Errorf("negative activeSessions")
	}
	return nil
}

// BaseURL returns the HTTP endpoint of the server.
func (s *ServerInfo) BaseURL() string {
	host := s.Hostname
	if host == "" {
		host = DefaultHostname
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}
