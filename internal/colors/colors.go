// Package colors allocates pane colors from a fixed palette, one file
// under its own lock. When the palette is exhausted it reuses the color
// of the least-recently-assigned inactive agent, falling back to a
// deterministic hash-derived color.
package colors

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// Pool manages color assignments. activeFn reports whether an agent id
// still refers to a live (non-terminated) agent; injected to avoid a
// dependency on the agent registry.
type Pool struct {
	paths    *state.Paths
	activeFn func(agentID string) bool
}

func NewPool(paths *state.Paths, activeFn func(string) bool) *Pool {
	if activeFn == nil {
		activeFn = func(string) bool { return true }
	}
	return &Pool{paths: paths, activeFn: activeFn}
}

// Allocate assigns a color to agentID and persists the pool. Repeated
// allocation for the same agent returns the existing color.
func (p *Pool) Allocate(agentID string) (string, error) {
	var color string
	pool := &state.ColorPool{}
	err := lockfile.LockedUpsert(p.paths.ColorPoolLock(), p.paths.ColorPool(), pool,
		func() { pool.Assignments = map[string]string{} },
		func() error {
			if pool.Assignments == nil {
				pool.Assignments = map[string]string{}
			}
			if pool.AssignedAt == nil {
				pool.AssignedAt = map[string]time.Time{}
			}
			if c, ok := pool.Assignments[agentID]; ok {
				color = c
				return nil
			}
			color = p.pick(pool, agentID)
			pool.Assignments[agentID] = color
			pool.AssignedAt[agentID] = time.Now().UTC()
			pool.LastUpdated = time.Now().UTC()
			return nil
		})
	if err != nil {
		return "", err
	}
	return color, nil
}

func (p *Pool) pick(pool *state.ColorPool, agentID string) string {
	used := make(map[string]string, len(pool.Assignments)) // color -> agent
	for agentID, c := range pool.Assignments {
		used[c] = agentID
	}
	for _, c := range state.Palette {
		if _, taken := used[c]; !taken {
			return c
		}
	}
	// Palette exhausted: steal from the least recently assigned
	// inactive holder. Assignments without a timestamp (pre-upgrade
	// pools) count as oldest; palette order breaks ties.
	victim := ""
	var victimColor string
	var victimAt time.Time
	for _, c := range state.Palette {
		holder, ok := used[c]
		if !ok || p.activeFn(holder) {
			continue
		}
		at := pool.AssignedAt[holder]
		if victim == "" || at.Before(victimAt) {
			victim, victimColor, victimAt = holder, c, at
		}
	}
	if victim != "" {
		delete(pool.Assignments, victim)
		delete(pool.AssignedAt, victim)
		return victimColor
	}
	return hashColor(agentID)
}

// Release frees agentID's color.
func (p *Pool) Release(agentID string) error {
	pool := &state.ColorPool{}
	return lockfile.LockedUpsert(p.paths.ColorPoolLock(), p.paths.ColorPool(), pool,
		func() { pool.Assignments = map[string]string{} },
		func() error {
			if pool.Assignments == nil {
				return nil
			}
			delete(pool.Assignments, agentID)
			delete(pool.AssignedAt, agentID)
			pool.LastUpdated = time.Now().UTC()
			return nil
		})
}

// hashColor derives a stable hex color from a seed string.
func hashColor(seed string) string {
	h := fnv.New32a()
	h.Write([]byte(seed))
	v := h.Sum32()
	// Keep channels in 0x40-0xbf so panes stay readable on dark and
	// light backgrounds.
	r := 0x40 + byte(v>>16)&0x7f
	g := 0x40 + byte(v>>8)&0x7f
	b := 0x40 + byte(v)&0x7f
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
