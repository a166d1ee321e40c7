package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENCODE_PROJECT_ROOT", "OPENCODE_TEAMS_MODEL", "OPENCODE_TEAMS_PROVIDER",
		"OPENCODE_BINARY", "TMUX_SESSION", "OPENCODE_TEAMS_HEARTBEAT_SECONDS",
		"OPENCODE_TEAMS_STALE_SECONDS", "OPENCODE_TEAMS_SWEEP_SECONDS", "E2E_LIVE",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tmux.Session != "opencode-teams" || cfg.Tmux.Layout != "tiled" {
		t.Fatalf("tmux defaults = %+v", cfg.Tmux)
	}
	if cfg.Server.Binary != "opencode" || cfg.Server.ProbeTimeout != 5 {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Inbox.PollTickMs != 500 {
		t.Fatalf("pollTickMs = %d", cfg.Inbox.PollTickMs)
	}
	if cfg.Agents.HeartbeatInterval != 30*time.Second ||
		cfg.Agents.StaleThreshold != 60*time.Second ||
		cfg.Agents.SweepInterval != 15*time.Second {
		t.Fatalf("durations = %+v", cfg.Agents)
	}
}

func TestLoadJSON5File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json5")
	body := `{
		// comments are fine here
		tmux: { session: "work", layout: "even-horizontal" },
		agents: { model: "claude-sonnet", heartbeatSeconds: 10 },
		server: { binary: "/usr/local/bin/opencode" },
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tmux.Session != "work" || cfg.Tmux.Layout != "even-horizontal" {
		t.Fatalf("tmux = %+v", cfg.Tmux)
	}
	if cfg.Agents.Model != "claude-sonnet" {
		t.Fatalf("model = %q", cfg.Agents.Model)
	}
	if cfg.Agents.HeartbeatInterval != 10*time.Second {
		t.Fatalf("heartbeat = %s", cfg.Agents.HeartbeatInterval)
	}
	// Untouched fields keep their defaults.
	if cfg.Agents.StaleThreshold != 60*time.Second {
		t.Fatalf("stale = %s", cfg.Agents.StaleThreshold)
	}
	if cfg.Server.Binary != "/usr/local/bin/opencode" {
		t.Fatalf("binary = %q", cfg.Server.Binary)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(`{tmux: {session: "from-file"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TMUX_SESSION", "from-env")
	t.Setenv("OPENCODE_TEAMS_SWEEP_SECONDS", "3")
	t.Setenv("E2E_LIVE", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tmux.Session != "from-env" {
		t.Fatalf("session = %q, env must win", cfg.Tmux.Session)
	}
	if cfg.Agents.SweepInterval != 3*time.Second {
		t.Fatalf("sweep = %s", cfg.Agents.SweepInterval)
	}
	if !cfg.E2ELive {
		t.Fatal("E2E_LIVE=1 not picked up")
	}
}

func TestBadEnvIntIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENCODE_TEAMS_HEARTBEAT_SECONDS", "not-a-number")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents.HeartbeatSeconds != 30 {
		t.Fatalf("heartbeatSeconds = %d, want default kept", cfg.Agents.HeartbeatSeconds)
	}
}

func TestMalformedFileErrors(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte("{tmux:"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed config must fail loudly")
	}
}
