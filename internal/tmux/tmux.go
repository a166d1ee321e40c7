// Package tmux drives the terminal multiplexer through its command-line
// interface. Every agent pane is created, addressed, and torn down here.
package tmux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// SessionIDOption is the custom pane option that correlates panes with
// opencode sessions.
const SessionIDOption = "@opencode_session_id"

const commandTimeout = 10 * time.Second

// Controller runs tmux commands against one session.
type Controller struct {
	Session string
}

// NewController targets the named session, defaulting to $TMUX_SESSION
// and then "opencode-teams".
func NewController(session string) *Controller {
	if session == "" {
		session = os.Getenv("TMUX_SESSION")
	}
	if session == "" {
		session = "opencode-teams"
	}
	return &Controller{Session: session}
}

// Available reports whether the tmux binary is installed.
func Available() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

// Inside reports whether the current process runs inside a tmux client.
func Inside() bool {
	return os.Getenv("TMUX") != ""
}

func (c *Controller) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "tmux", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// HasSession reports whether the target session exists.
func (c *Controller) HasSession(ctx context.Context) bool {
	_, err := c.run(ctx, "has-session", "-t", c.Session)
	return err == nil
}

// EnsureSession creates the session detached when it does not exist.
func (c *Controller) EnsureSession(ctx context.Context) error {
	if c.HasSession(ctx) {
		return nil
	}
	_, err := c.run(ctx, "new-session", "-d", "-s", c.Session)
	return err
}

// KillSession tears the whole session down.
func (c *Controller) KillSession(ctx context.Context) error {
	_, err := c.run(ctx, "kill-session", "-t", c.Session)
	return err
}

// SplitWindow opens a new pane in cwd and returns its pane id.
func (c *Controller) SplitWindow(ctx context.Context, cwd string) (string, error) {
	return c.run(ctx, "split-window", "-t", c.Session, "-c", cwd, "-PF", "#{pane_id}")
}

// SendKeys types text into a pane followed by Enter.
func (c *Controller) SendKeys(ctx context.Context, pane, text string) error {
	_, err := c.run(ctx, "send-keys", "-t", pane, text, "Enter")
	return err
}

// CapturePane returns the last lines of a pane's scrollback.
func (c *Controller) CapturePane(ctx context.Context, pane string, lines int) (string, error) {
	return c.run(ctx, "capture-pane", "-t", pane, "-p", "-S", fmt.Sprintf("-%d", lines))
}

// SelectLayout re-applies a layout across the session's panes.
func (c *Controller) SelectLayout(ctx context.Context, layout string) error {
	if layout == "" {
		layout = "tiled"
	}
	_, err := c.run(ctx, "select-layout", "-t", c.Session, layout)
	return err
}

// SetPaneOption sets a per-pane option (used for SessionIDOption).
func (c *Controller) SetPaneOption(ctx context.Context, pane, key, value string) error {
	_, err := c.run(ctx, "set-option", "-p", "-t", pane, key, value)
	return err
}

// ShowPaneOption reads a per-pane option value.
func (c *Controller) ShowPaneOption(ctx context.Context, pane, key string) (string, error) {
	return c.run(ctx, "show-options", "-p", "-t", pane, "-v", key)
}

// SetPaneTitle labels a pane for human operators.
func (c *Controller) SetPaneTitle(ctx context.Context, pane, title string) error {
	_, err := c.run(ctx, "select-pane", "-t", pane, "-T", title)
	return err
}

// AttachClient attaches the current terminal to the session. Blocks
// until the client detaches; no timeout applies.
func (c *Controller) AttachClient(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "tmux", "attach-session", "-t", c.Session)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// DetachClients detaches every client viewing the session.
func (c *Controller) DetachClients(ctx context.Context) error {
	_, err := c.run(ctx, "detach-client", "-s", c.Session)
	return err
}

// ListPanes returns "pane_id pane_title" lines for the session.
func (c *Controller) ListPanes(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "list-panes", "-s", "-t", c.Session, "-F", "#{pane_id} #{pane_title}")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// KillPane removes one pane. Missing panes are not an error.
func (c *Controller) KillPane(ctx context.Context, pane string) error {
	_, err := c.run(ctx, "kill-pane", "-t", pane)
	if err != nil && strings.Contains(err.Error(), "can't find pane") {
		return nil
	}
	return err
}
