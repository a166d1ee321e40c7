package cmd

import (
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/opencode-teams/internal/coordinator"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/tasks"
)

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <team>",
		Short: "One-screen view of a team: agents, tasks, recent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			team, err := co.Teams.Get(args[0])
			if err != nil {
				return err
			}

			cmd.Printf("── %s ─ %s ─ %d member(s)\n\n", team.Name, team.Topology, len(team.Members))

			cmd.Println("agents")
			for _, m := range team.Members {
				status, marker := "unregistered", " "
				if st, err := co.Registry.StatusOf(m.AgentID); err == nil {
					status = st.Agent.Status
					if st.Stale {
						marker = "!"
					}
				}
				cmd.Printf("  %s %s %s %s\n",
					marker, pad(m.Name, 18), pad(m.Type, 14), status)
			}

			all, err := co.Tasks.List(team.Name, tasks.Filter{})
			if err != nil {
				return err
			}
			cmd.Println("\ntasks")
			for _, t := range all {
				marker := " "
				if t.Status == state.TaskPending && len(t.Dependencies) > 0 {
					marker = "*" // waiting on dependencies
				}
				owner := t.Owner
				if owner == "" {
					owner = "-"
				}
				cmd.Printf("  %s %s %s %s %s\n",
					marker, pad(t.Title, 34), pad(t.Priority, 8), pad(t.Status, 12), owner)
			}

			cmd.Println("\nmessages")
			for _, msg := range lastMessages(co, team, 10) {
				cmd.Printf("  %s %s -> %s  %s\n",
					msg.Timestamp.Format(time.TimeOnly),
					pad(msg.From, 14),
					pad(msg.To, 14),
					truncate(msg.Body, 50))
			}
			return nil
		},
	}
}

// lastMessages merges every member's inbox and keeps the n newest,
// oldest first. Broadcast copies are deduplicated by timestamp+sender.
func lastMessages(co *coordinator.Coordinator, team *state.Team, n int) []state.Message {
	var all []state.Message
	seen := map[string]bool{}
	for _, m := range team.Members {
		msgs, err := co.Messaging.Peek(team.Name, m.AgentID)
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			if msg.To == state.BroadcastRecipient {
				key := msg.From + "|" + msg.Timestamp.Format(time.RFC3339Nano)
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			all = append(all, msg)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// pad right-pads to display width, aware of wide runes.
func pad(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return runewidth.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-w)
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, width, "…")
}
