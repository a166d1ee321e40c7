package colors

import (
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

func newTestPool(t *testing.T, activeFn func(string) bool) *Pool {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENCODE_PROJECT_ROOT", dir)
	return NewPool(state.NewPaths(dir), activeFn)
}

func TestAllocatePaletteOrder(t *testing.T) {
	p := newTestPool(t, nil)
	c1, err := p.Allocate("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := p.Allocate("agent-2")
	if err != nil {
		t.Fatal(err)
	}
	if c1 != state.Palette[0] || c2 != state.Palette[1] {
		t.Fatalf("colors %s, %s not in palette order", c1, c2)
	}
}

func TestAllocateIdempotent(t *testing.T) {
	p := newTestPool(t, nil)
	c1, _ := p.Allocate("agent-1")
	c2, err := p.Allocate("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Fatalf("re-allocation changed color: %s != %s", c1, c2)
	}
}

func TestReleaseRecycles(t *testing.T) {
	p := newTestPool(t, nil)
	c1, _ := p.Allocate("agent-1")
	if err := p.Release("agent-1"); err != nil {
		t.Fatal(err)
	}
	c2, err := p.Allocate("agent-2")
	if err != nil {
		t.Fatal(err)
	}
	if c2 != c1 {
		t.Fatalf("released color %s not recycled, got %s", c1, c2)
	}
}

func TestExhaustionStealsFromInactive(t *testing.T) {
	inactive := map[string]bool{"agent-0": true}
	p := newTestPool(t, func(id string) bool { return !inactive[id] })

	var first string
	for i := 0; i < len(state.Palette); i++ {
		c, err := p.Allocate(fmtAgent(i))
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = c
		}
	}

	got, err := p.Allocate("latecomer")
	if err != nil {
		t.Fatal(err)
	}
	if got != first {
		t.Fatalf("latecomer got %s, want the inactive holder's %s", got, first)
	}
}

func TestExhaustionStealsLeastRecentlyAssigned(t *testing.T) {
	inactive := map[string]bool{"agent-1": true, "agent-3": true}
	p := newTestPool(t, func(id string) bool { return !inactive[id] })

	var colors []string
	for i := 0; i < len(state.Palette); i++ {
		c, err := p.Allocate(fmtAgent(i))
		if err != nil {
			t.Fatal(err)
		}
		colors = append(colors, c)
		time.Sleep(time.Millisecond) // distinct assignment timestamps
	}

	// agent-1 was assigned before agent-3, so its color goes first.
	got, err := p.Allocate("latecomer")
	if err != nil {
		t.Fatal(err)
	}
	if got != colors[1] {
		t.Fatalf("latecomer got %s, want the older inactive holder's %s", got, colors[1])
	}

	got, err = p.Allocate("second-latecomer")
	if err != nil {
		t.Fatal(err)
	}
	if got != colors[3] {
		t.Fatalf("second latecomer got %s, want %s", got, colors[3])
	}
}

func TestExhaustionFallsBackToHash(t *testing.T) {
	p := newTestPool(t, func(string) bool { return true }) // nobody to steal from
	for i := 0; i < len(state.Palette); i++ {
		if _, err := p.Allocate(fmtAgent(i)); err != nil {
			t.Fatal(err)
		}
	}

	c1, err := p.Allocate("overflow-agent")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(c1, "#") || len(c1) != 7 {
		t.Fatalf("hash color %q is not #rrggbb", c1)
	}
	if c2 := hashColor("overflow-agent"); c1 != c2 {
		t.Fatalf("hash color not deterministic: %s != %s", c1, c2)
	}
}

func fmtAgent(i int) string {
	return "agent-" + string(rune('0'+i))
}
