// Package coordinator is the composition root: it wires the stores,
// engines, and managers together and runs the background loops (stale
// sweep, SSE consumers, dispatch engine).
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/opencode-teams/internal/agents"
	"github.com/nextlevelbuilder/opencode-teams/internal/bus"
	"github.com/nextlevelbuilder/opencode-teams/internal/colors"
	"github.com/nextlevelbuilder/opencode-teams/internal/config"
	"github.com/nextlevelbuilder/opencode-teams/internal/dispatch"
	"github.com/nextlevelbuilder/opencode-teams/internal/messaging"
	"github.com/nextlevelbuilder/opencode-teams/internal/opencode"
	"github.com/nextlevelbuilder/opencode-teams/internal/permissions"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/tasks"
	"github.com/nextlevelbuilder/opencode-teams/internal/teams"
	"github.com/nextlevelbuilder/opencode-teams/internal/templates"
	"github.com/nextlevelbuilder/opencode-teams/internal/tmux"
)

// Coordinator owns every subsystem handle for one project root.
type Coordinator struct {
	Config      *config.Config
	Paths       *state.Paths
	Bus         *bus.Bus
	Teams       *teams.Store
	Tasks       *tasks.Engine
	Messaging   *messaging.Store
	Registry    *agents.Registry
	Agents      *agents.Manager
	Colors      *colors.Pool
	Tmux        *tmux.Controller
	Server      *opencode.Controller
	Templates   *templates.Store
	Permissions *permissions.Checker
	Dispatch    *dispatch.Engine
	Workflow    *dispatch.Monitor

	mu        sync.Mutex
	consumers map[string]context.CancelFunc // SSE consumers keyed by base URL
	detach    []func()
}

// New wires a coordinator from config. No background work starts until
// Start.
func New(cfg *config.Config) *Coordinator {
	paths := state.NewPaths(cfg.ProjectRoot)
	b := bus.New()

	teamStore := teams.NewStore(paths, b)
	taskEngine := tasks.NewEngine(paths, b)
	msgStore := messaging.NewStore(paths)
	if cfg.Inbox.PollTickMs > 0 {
		msgStore.PollTick = time.Duration(cfg.Inbox.PollTickMs) * time.Millisecond
	}
	registry := agents.NewRegistry(paths)
	if cfg.Agents.StaleThreshold > 0 {
		registry.StaleThreshold = cfg.Agents.StaleThreshold
	}
	colorPool := colors.NewPool(paths, func(agentID string) bool {
		a, err := registry.Get(agentID)
		if err != nil {
			return false
		}
		return a.Status == state.AgentActive || a.Status == state.AgentIdle ||
			a.Status == state.AgentSpawning
	})
	mux := tmux.NewController(cfg.Tmux.Session)
	server := opencode.NewController(paths, cfg.Server.Binary,
		time.Duration(cfg.Server.ProbeTimeout)*time.Second)

	mgr := agents.NewManager(paths, registry, teamStore, colorPool, mux, server, b,
		taskEngine.Reassign,
		msgStore.SendTyped,
	)
	if cfg.Agents.SweepInterval > 0 {
		mgr.SweepInterval = cfg.Agents.SweepInterval
	}
	if cfg.Agents.StaleThreshold > 0 {
		mgr.StaleThreshold = cfg.Agents.StaleThreshold
	}

	engine := dispatch.NewEngine(teamStore, taskEngine, registry, msgStore, b)

	return &Coordinator{
		Config:      cfg,
		Paths:       paths,
		Bus:         b,
		Teams:       teamStore,
		Tasks:       taskEngine,
		Messaging:   msgStore,
		Registry:    registry,
		Agents:      mgr,
		Colors:      colorPool,
		Tmux:        mux,
		Server:      server,
		Templates:   templates.NewStore(paths),
		Permissions: permissions.NewChecker(teamStore, registry),
		Dispatch:    engine,
		Workflow:    dispatch.NewMonitor(engine),
		consumers:   map[string]context.CancelFunc{},
	}
}

// Start attaches the dispatch engine and workflow monitor and runs the
// stale sweep until ctx ends.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	c.detach = append(c.detach, c.Dispatch.Attach(), c.Workflow.Attach())
	c.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Agents.RunSweep(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		c.stopConsumers()
		c.mu.Lock()
		for _, d := range c.detach {
			d()
		}
		c.detach = nil
		c.mu.Unlock()
		return ctx.Err()
	})
	return g.Wait()
}

// WatchServer starts an SSE consumer for the server behind projectPath,
// feeding its events into the liveness monitor. Idempotent per base URL.
func (c *Coordinator) WatchServer(ctx context.Context, projectPath string) error {
	info, err := c.Server.EnsureRunning(ctx, projectPath)
	if err != nil {
		return err
	}
	base := info.BaseURL()

	c.mu.Lock()
	if _, running := c.consumers[base]; running {
		c.mu.Unlock()
		return nil
	}
	cctx, cancel := context.WithCancel(ctx)
	c.consumers[base] = cancel
	c.mu.Unlock()

	consumer := opencode.NewConsumer(base)
	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.consumers, base)
			c.mu.Unlock()
		}()
		if err := consumer.Run(cctx, c.Agents.HandleStreamEvent); err != nil && cctx.Err() == nil {
			slog.Warn("sse consumer exited", "server", base, "error", err)
		}
	}()
	return nil
}

func (c *Coordinator) stopConsumers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for base, cancel := range c.consumers {
		cancel()
		delete(c.consumers, base)
	}
}
