package messaging

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// DefaultPollTick is the fallback scan interval. Together with the
// fsnotify fast path it keeps detection well under the one-second
// contract.
const DefaultPollTick = 500 * time.Millisecond

// DefaultPollTimeout bounds Poll when the caller passes zero.
const DefaultPollTimeout = 30 * time.Second

// Poll blocks until the agent's inbox yields messages newer than since,
// the timeout passes, or ctx is cancelled. Returns nil (not an error) on
// timeout. A filesystem watch on the inbox directory wakes the loop
// early; the ticker remains the correctness backstop since other
// processes may write between watch setup and the first scan.
func (s *Store) Poll(ctx context.Context, team, agentID string, timeout time.Duration, since time.Time) ([]state.Message, error) {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	deadline := time.Now().Add(timeout)

	var wake <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		// The inbox dir may not exist until the first delivery.
		os.MkdirAll(s.paths.InboxDir(team), 0o755)
		if werr := watcher.Add(s.paths.InboxDir(team)); werr != nil {
			slog.Debug("inbox watch unavailable, ticker only", "team", team, "error", werr)
		} else {
			wake = watcher.Events
		}
	}

	tick := s.PollTick
	if tick <= 0 {
		tick = DefaultPollTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(s.paths.Inbox(team, agentID)); err == nil {
			msgs, err := s.Read(team, agentID, since)
			if err != nil {
				return nil, err
			}
			if len(msgs) > 0 {
				return msgs, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		case <-wake:
		case <-time.After(time.Until(deadline)):
		}
	}
}
