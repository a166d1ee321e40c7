package opencode

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/config"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Runs against a real `opencode serve` process; set E2E_LIVE=1 to enable.
func TestServerLifecycleLive(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "no-config.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.E2ELive {
		t.Skip("set E2E_LIVE=1 to run against a real opencode server")
	}

	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	c := NewController(state.NewPaths(dir), cfg.Server.Binary,
		time.Duration(cfg.Server.ProbeTimeout)*time.Second)
	ctx := context.Background()

	info, err := c.EnsureRunning(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Stop(context.Background(), dir) })
	if !info.IsRunning || info.PID <= 0 {
		t.Fatalf("server info = %+v", info)
	}

	// Second call must reuse the healthy server, not spawn another.
	again, err := c.EnsureRunning(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if again.PID != info.PID {
		t.Fatalf("healthy server not reused: pid %d -> %d", info.PID, again.PID)
	}

	if err := c.Stop(ctx, dir); err != nil {
		t.Fatal(err)
	}
	stopped, err := c.Info(dir)
	if err != nil {
		t.Fatal(err)
	}
	if stopped.IsRunning {
		t.Fatal("server record still marked running after stop")
	}
}

func TestControllerDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	c := NewController(state.NewPaths(dir), "", 0)
	if c.binary != DefaultBinary {
		t.Fatalf("binary = %q, want %q", c.binary, DefaultBinary)
	}
	if c.startupTimeout != DefaultStartupTimeout {
		t.Fatalf("startupTimeout = %s, want %s", c.startupTimeout, DefaultStartupTimeout)
	}

	c = NewController(state.NewPaths(dir), "/opt/opencode/bin/opencode", 9*time.Second)
	if c.binary != "/opt/opencode/bin/opencode" || c.startupTimeout != 9*time.Second {
		t.Fatalf("overrides not applied: %q / %s", c.binary, c.startupTimeout)
	}
}
