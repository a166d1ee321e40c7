package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/opencode-teams/internal/agents"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
	"github.com/nextlevelbuilder/opencode-teams/internal/tasks"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			teams, err := co.Teams.Discover()
			if err != nil {
				return err
			}
			if len(teams) == 0 {
				cmd.Println("no teams")
				return nil
			}
			for _, t := range teams {
				cmd.Printf("%-20s %-13s members=%-3d leader=%s\n",
					t.Name, t.Topology, t.MemberCount, t.LeaderID)
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <team>",
		Short: "Show one team's members, agents and task counts",
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
			cmd.Printf("team %s (%s), created %s\n", team.Name, team.Topology,
				team.CreatedAt.Format(time.RFC3339))
			for _, m := range team.Members {
				line := fmt.Sprintf("  %-24s %-12s %s", m.AgentID, m.Type, m.Name)
				if st, err := co.Registry.StatusOf(m.AgentID); err == nil {
					line += fmt.Sprintf("  [%s", st.Agent.Status)
					if st.Stale {
						line += ", stale"
					}
					line += "]"
				}
				cmd.Println(line)
			}
			all, err := co.Tasks.List(team.Name, tasks.Filter{})
			if err != nil {
				return err
			}
			counts := map[string]int{}
			for _, t := range all {
				counts[t.Status]++
			}
			cmd.Printf("tasks: %d pending, %d in progress, %d completed\n",
				counts[state.TaskPending], counts[state.TaskInProgress], counts[state.TaskCompleted])
			return nil
		},
	}
}

func launchCmd() *cobra.Command {
	var (
		template string
		workers  int
		cwd      string
	)
	c := &cobra.Command{
		Use:   "launch <team>",
		Short: "Create a team from a template, spawn workers, and run the coordinator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := newService(co)
			res := svc.MustLookup("spawn-team").Invoke(ctx, mustJSON(map[string]any{
				"teamName": args[0],
				"template": template,
			}))
			if !res.Success {
				return fmt.Errorf("spawn team: %s", res.Error)
			}
			if cwd == "" {
				cwd, _ = os.Getwd()
			}
			for i := 0; i < workers; i++ {
				name := fmt.Sprintf("worker-%d", i+1)
				if _, err := co.Agents.Spawn(ctx, agents.SpawnParams{
					Team:       args[0],
					Name:       name,
					Cwd:        cwd,
					Model:      co.Config.Agents.Model,
					ProviderID: co.Config.Agents.Provider,
				}); err != nil {
					return fmt.Errorf("spawn %s: %w", name, err)
				}
				cmd.Printf("spawned %s\n", name)
			}
			if err := co.WatchServer(ctx, cwd); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: event stream unavailable: %v\n", err)
			}
			cmd.Println("coordinator running, Ctrl-C to stop")
			err = co.Start(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	c.Flags().StringVar(&template, "template", "swarm", "team template")
	c.Flags().IntVar(&workers, "workers", 2, "worker agents to spawn")
	c.Flags().StringVar(&cwd, "cwd", "", "project directory (default: current)")
	return c
}
