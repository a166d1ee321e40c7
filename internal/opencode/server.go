package opencode

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/lockfile"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

const (
	healthTimeout         = 2 * time.Second
	DefaultBinary         = "opencode"
	DefaultStartupTimeout = 5 * time.Second
	startupTick           = 100 * time.Millisecond
	stopGrace             = 5 * time.Second
)

// Controller owns the one backing server per project.
type Controller struct {
	paths          *state.Paths
	client         *http.Client
	binary         string
	startupTimeout time.Duration
}

// NewController builds a server controller. Zero binary or probeTimeout
// fall back to the defaults.
func NewController(paths *state.Paths, binary string, probeTimeout time.Duration) *Controller {
	if binary == "" {
		binary = DefaultBinary
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultStartupTimeout
	}
	return &Controller{
		paths:          paths,
		client:         &http.Client{Timeout: healthTimeout},
		binary:         binary,
		startupTimeout: probeTimeout,
	}
}

// EnsureRunning returns a healthy ServerInfo for projectPath, reusing a
// live server when its pid is alive and the TCP health probe answers,
// otherwise killing the stale pid and launching a fresh one.
func (c *Controller) EnsureRunning(ctx context.Context, projectPath string) (*state.ServerInfo, error) {
	hash := ProjectHash(projectPath)
	var out *state.ServerInfo

	err := lockfile.WithLock(c.paths.ServerLock(hash), true, func() error {
		info := &state.ServerInfo{}
		err := lockfile.ReadValidated(c.paths.ServerFile(hash), info)
		if err == nil && info.IsRunning && pidAlive(info.PID) && c.healthy(ctx, info.BaseURL()) {
			now := time.Now().UTC()
			info.LastHealthCheck = &now
			if werr := lockfile.WriteAtomic(c.paths.ServerFile(hash), info); werr != nil {
				return werr
			}
			out = info
			return nil
		}
		if err == nil && info.PID > 0 && pidAlive(info.PID) {
			slog.Info("killing stale opencode server", "pid", info.PID, "project", projectPath)
			syscall.Kill(info.PID, syscall.SIGKILL)
		}

		fresh, serr := c.start(ctx, projectPath, hash)
		if serr != nil {
			return serr
		}
		if werr := lockfile.WriteAtomic(c.paths.ServerFile(hash), fresh); werr != nil {
			return werr
		}
		out = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Controller) start(ctx context.Context, projectPath, hash string) (*state.ServerInfo, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		abs = projectPath
	}
	port := PortForPath(abs)
	logPath := c.paths.ServerLog(hash)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create server dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open server log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(c.binary, "serve",
		"--hostname", state.DefaultHostname,
		"--port", fmt.Sprintf("%d", port))
	cmd.Dir = abs
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true} // survive our exit
	if err := cmd.Start(); err != nil {
		return nil, errdefs.Unavailablef("failed to start opencode server: %v", err)
	}

	info := &state.ServerInfo{
		ProjectPath: abs,
		ProjectHash: hash,
		PID:         cmd.Process.Pid,
		Port:        port,
		Hostname:    state.DefaultHostname,
		IsRunning:   true,
		LogPath:     logPath,
		StartedAt:   time.Now().UTC(),
	}

	deadline := time.Now().Add(c.startupTimeout)
	for time.Now().Before(deadline) {
		if c.healthy(ctx, info.BaseURL()) {
			now := time.Now().UTC()
			info.LastHealthCheck = &now
			return info, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(startupTick):
		}
	}
	syscall.Kill(info.PID, syscall.SIGKILL)
	return nil, errdefs.Unavailablef("opencode server on port %d did not become healthy within %s", port, c.startupTimeout)
}

// Stop terminates the project's server: SIGTERM, grace, SIGKILL.
func (c *Controller) Stop(ctx context.Context, projectPath string) error {
	hash := ProjectHash(projectPath)
	return lockfile.WithLock(c.paths.ServerLock(hash), true, func() error {
		info := &state.ServerInfo{}
		if err := lockfile.ReadValidated(c.paths.ServerFile(hash), info); err != nil {
			if errdefs.IsNotFound(err) {
				return nil
			}
			return err
		}
		if info.PID > 0 && pidAlive(info.PID) {
			syscall.Kill(info.PID, syscall.SIGTERM)
			deadline := time.Now().Add(stopGrace)
			for time.Now().Before(deadline) && pidAlive(info.PID) {
				time.Sleep(100 * time.Millisecond)
			}
			if pidAlive(info.PID) {
				syscall.Kill(info.PID, syscall.SIGKILL)
			}
		}
		info.IsRunning = false
		info.ActiveSessions = 0
		return lockfile.WriteAtomic(c.paths.ServerFile(hash), info)
	})
}

// AdjustSessions bumps the active session count by delta and returns the
// new count.
func (c *Controller) AdjustSessions(projectPath string, delta int) (int, error) {
	hash := ProjectHash(projectPath)
	var count int
	info := &state.ServerInfo{}
	err := lockfile.LockedUpdate(c.paths.ServerLock(hash), c.paths.ServerFile(hash), info, func() error {
		info.ActiveSessions += delta
		if info.ActiveSessions < 0 {
			info.ActiveSessions = 0
		}
		count = info.ActiveSessions
		return nil
	})
	return count, err
}

// Info reads the server record without mutating it.
func (c *Controller) Info(projectPath string) (*state.ServerInfo, error) {
	hash := ProjectHash(projectPath)
	info := &state.ServerInfo{}
	if err := lockfile.ReadValidated(c.paths.ServerFile(hash), info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Controller) healthy(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// pidAlive probes a pid with signal 0.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
