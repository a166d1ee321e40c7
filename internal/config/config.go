// Package config loads the coordination settings: a json5 file overlaid
// with OPENCODE_* env vars. Missing file means pure defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Config is the root configuration for the coordination core.
type Config struct {
	ProjectRoot string       `json:"projectRoot,omitempty"` // storage root, default cwd
	Tmux        TmuxConfig   `json:"tmux"`
	Agents      AgentsConfig `json:"agents"`
	Server      ServerConfig `json:"server"`
	Inbox       InboxConfig  `json:"inbox"`
	E2ELive     bool         `json:"-"` // from env E2E_LIVE only
}

// TmuxConfig names the multiplexer session agents spawn into.
type TmuxConfig struct {
	Session string `json:"session,omitempty"` // default opencode-teams
	Layout  string `json:"layout,omitempty"`  // default tiled
}

// AgentsConfig tunes liveness and spawn defaults.
type AgentsConfig struct {
	Model             string        `json:"model,omitempty"`
	Provider          string        `json:"provider,omitempty"`
	HeartbeatInterval time.Duration `json:"-"`
	StaleThreshold    time.Duration `json:"-"`
	SweepInterval     time.Duration `json:"-"`
	HeartbeatSeconds  int           `json:"heartbeatSeconds,omitempty"` // default 30
	StaleSeconds      int           `json:"staleSeconds,omitempty"`     // default 60
	SweepSeconds      int           `json:"sweepSeconds,omitempty"`     // default 15
}

// ServerConfig tunes the opencode server controller.
type ServerConfig struct {
	Binary       string `json:"binary,omitempty"`       // default "opencode"
	ProbeTimeout int    `json:"probeTimeout,omitempty"` // seconds, default 5
}

// InboxConfig tunes message polling.
type InboxConfig struct {
	PollTickMs int `json:"pollTickMs,omitempty"` // default 500
}

// Default returns a Config with the shipped defaults.
func Default() *Config {
	cfg := &Config{
		Tmux: TmuxConfig{
			Session: "opencode-teams",
			Layout:  "tiled",
		},
		Agents: AgentsConfig{
			HeartbeatSeconds: 30,
			StaleSeconds:     60,
			SweepSeconds:     15,
		},
		Server: ServerConfig{
			Binary:       "opencode",
			ProbeTimeout: 5,
		},
		Inbox: InboxConfig{
			PollTickMs: 500,
		},
	}
	cfg.materializeDurations()
	return cfg
}

// Load reads config from a json5 file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.materializeDurations()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.materializeDurations()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env wins over
// file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envStr("OPENCODE_PROJECT_ROOT", &c.ProjectRoot)
	envStr("OPENCODE_TEAMS_MODEL", &c.Agents.Model)
	envStr("OPENCODE_TEAMS_PROVIDER", &c.Agents.Provider)
	envStr("OPENCODE_BINARY", &c.Server.Binary)
	envStr("TMUX_SESSION", &c.Tmux.Session)
	envInt("OPENCODE_TEAMS_HEARTBEAT_SECONDS", &c.Agents.HeartbeatSeconds)
	envInt("OPENCODE_TEAMS_STALE_SECONDS", &c.Agents.StaleSeconds)
	envInt("OPENCODE_TEAMS_SWEEP_SECONDS", &c.Agents.SweepSeconds)
	if v := os.Getenv("E2E_LIVE"); v != "" {
		c.E2ELive = v == "true" || v == "1"
	}
}

func (c *Config) materializeDurations() {
	c.Agents.HeartbeatInterval = time.Duration(c.Agents.HeartbeatSeconds) * time.Second
	c.Agents.StaleThreshold = time.Duration(c.Agents.StaleSeconds) * time.Second
	c.Agents.SweepInterval = time.Duration(c.Agents.SweepSeconds) * time.Second
}
