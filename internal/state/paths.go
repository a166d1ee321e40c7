// Package state defines the persisted entities, their validation rules,
// and the on-disk layout under <project-root>/.opencode-teams/.
package state

import (
	"os"
	"path/filepath"
)

// StorageDirName is the directory created under the project root.
const StorageDirName = ".opencode-teams"

// Paths resolves every storage location from a single root directory.
type Paths struct {
	Root string // the .opencode-teams directory itself
}

// NewPaths builds a Paths rooted at projectRoot/.opencode-teams.
// OPENCODE_PROJECT_ROOT overrides projectRoot when set.
func NewPaths(projectRoot string) *Paths {
	if env := os.Getenv("OPENCODE_PROJECT_ROOT"); env != "" {
		projectRoot = env
	}
	if projectRoot == "" {
		projectRoot, _ = os.Getwd()
	}
	return &Paths{Root: filepath.Join(projectRoot, StorageDirName)}
}

func (p *Paths) TeamDir(team string) string    { return filepath.Join(p.Root, "teams", team) }
func (p *Paths) TeamConfig(team string) string { return filepath.Join(p.TeamDir(team), "config.json") }
func (p *Paths) TeamLock(team string) string   { return filepath.Join(p.TeamDir(team), ".lock") }
func (p *Paths) TeamsDir() string              { return filepath.Join(p.Root, "teams") }

func (p *Paths) InboxDir(team string) string { return filepath.Join(p.TeamDir(team), "inboxes") }
func (p *Paths) Inbox(team, agentID string) string {
	return filepath.Join(p.InboxDir(team), agentID+".json")
}

func (p *Paths) TaskDir(team string) string  { return filepath.Join(p.Root, "tasks", team) }
func (p *Paths) TaskLock(team string) string { return filepath.Join(p.TaskDir(team), ".lock") }
func (p *Paths) TaskFile(team, id string) string {
	return filepath.Join(p.TaskDir(team), id+".json")
}

func (p *Paths) AgentDir() string           { return filepath.Join(p.Root, "agents") }
func (p *Paths) AgentLock() string          { return filepath.Join(p.AgentDir(), ".lock") }
func (p *Paths) AgentFile(id string) string { return filepath.Join(p.AgentDir(), id+".json") }

func (p *Paths) ServerDir(hash string) string { return filepath.Join(p.Root, "servers", hash) }
func (p *Paths) ServerFile(hash string) string {
	return filepath.Join(p.ServerDir(hash), "server.json")
}
func (p *Paths) ServerLog(hash string) string {
	return filepath.Join(p.ServerDir(hash), "server.log")
}
func (p *Paths) ServerLock(hash string) string {
	return filepath.Join(p.ServerDir(hash), ".lock")
}

func (p *Paths) ColorPool() string     { return filepath.Join(p.Root, "color-pool.json") }
func (p *Paths) ColorPoolLock() string { return filepath.Join(p.Root, "color-pool.lock") }

func (p *Paths) TemplateDir() string { return filepath.Join(p.Root, "templates") }
func (p *Paths) TemplateFile(name string) string {
	return filepath.Join(p.TemplateDir(), name+".json")
}

// UserTemplateDir is the user-global fallback for templates.
func UserTemplateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "opencode-teams", "templates")
}
