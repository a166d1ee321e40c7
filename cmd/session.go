package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Create the tmux session if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			if err := co.Tmux.EnsureSession(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("session %s ready\n", co.Tmux.Session)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Kill the tmux session and all its panes",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			return co.Tmux.KillSession(cmd.Context())
		},
	}
}

func layoutCmd() *cobra.Command {
	var layout string
	c := &cobra.Command{
		Use:   "layout",
		Short: "Re-apply a pane layout across the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			if layout == "" {
				layout = co.Config.Tmux.Layout
			}
			return co.Tmux.SelectLayout(cmd.Context(), layout)
		},
	}
	c.Flags().StringVar(&layout, "name", "", "tmux layout name (default: config, then tiled)")
	return c
}

func addPaneCmd() *cobra.Command {
	var cwd string
	c := &cobra.Command{
		Use:   "add-pane",
		Short: "Open an empty pane in the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			if err := co.Tmux.EnsureSession(cmd.Context()); err != nil {
				return err
			}
			pane, err := co.Tmux.SplitWindow(cmd.Context(), cwd)
			if err != nil {
				return err
			}
			cmd.Println(pane)
			return co.Tmux.SelectLayout(cmd.Context(), co.Config.Tmux.Layout)
		},
	}
	c.Flags().StringVar(&cwd, "cwd", ".", "working directory for the new pane")
	return c
}

func attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "Attach this terminal to the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			return co.Tmux.AttachClient(cmd.Context())
		},
	}
}

func detachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach",
		Short: "Detach all clients from the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			return co.Tmux.DetachClients(cmd.Context())
		},
	}
}

func destroyCmd() *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "destroy <team>",
		Short: "Delete a team, its tasks, and kill its agents",
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
			for _, m := range team.Members {
				if m.AgentID == team.LeaderID {
					continue
				}
				if err := co.Agents.Kill(cmd.Context(), team.Name, m.AgentID, "", true); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: kill %s: %v\n", m.AgentID, err)
					if !force {
						return fmt.Errorf("aborting; re-run with --force to delete anyway")
					}
				}
			}
			if err := co.Teams.Delete(team.Name); err != nil {
				return err
			}
			cmd.Printf("team %s destroyed\n", team.Name)
			return nil
		},
	}
	c.Flags().BoolVar(&force, "force", false, "delete even when agent teardown fails")
	return c
}
