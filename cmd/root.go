// Package cmd is the opencode-teams command line: session management,
// team inspection, the dashboard, and the MCP tool server.
package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/opencode-teams/internal/config"
	"github.com/nextlevelbuilder/opencode-teams/internal/coordinator"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/opencode-teams/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "opencode-teams",
	Short: "opencode-teams — multi-agent coordination for opencode",
	Long:  "opencode-teams coordinates multiple opencode agents in one project: teams, dependency-ordered tasks, inbox messaging, and tmux-hosted agent lifecycle.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/opencode-teams/config.json5)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(layoutCmd())
	rootCmd.AddCommand(addPaneCmd())
	rootCmd.AddCommand(launchCmd())
	rootCmd.AddCommand(attachCmd())
	rootCmd.AddCommand(detachCmd())
	rootCmd.AddCommand(destroyCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("opencode-teams %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("OPENCODE_TEAMS_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json5"
	}
	return filepath.Join(home, ".config", "opencode-teams", "config.json5")
}

// buildCoordinator loads config and wires the subsystems. Shared by
// every subcommand.
func buildCoordinator() (*coordinator.Coordinator, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	return coordinator.New(cfg), nil
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
