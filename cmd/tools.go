package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/opencode-teams/internal/coordinator"
	"github.com/nextlevelbuilder/opencode-teams/internal/tools"
)

// service wraps the tool registry for CLI use.
type service struct {
	*tools.Service
}

func newService(co *coordinator.Coordinator) *service {
	return &service{tools.NewService(co)}
}

// MustLookup panics on unknown operation names; the registry is static
// so a miss is a programming error.
func (s *service) MustLookup(name string) tools.Operation {
	o, ok := s.Lookup(name)
	if !ok {
		panic("unknown tool operation " + name)
	}
	return o
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func toolsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "tools",
		Short: "Tool operations: serve over MCP, list, or call directly",
	}
	c.AddCommand(toolsServeCmd(), toolsListCmd(), toolsCallCmd())
	return c
}

func toolsServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve all operations over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			go func() {
				// Background loops run for the lifetime of the server.
				_ = co.Start(cmd.Context())
			}()
			return tools.ServeStdio(tools.NewService(co), Version)
		},
	}
}

func toolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every tool operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			for _, o := range tools.NewService(co).Registry() {
				cmd.Printf("%-20s %s\n", o.Name, o.Description)
			}
			return nil
		},
	}
}

func toolsCallCmd() *cobra.Command {
	var rawArgs string
	c := &cobra.Command{
		Use:   "call <operation>",
		Short: "Invoke one operation with JSON arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator()
			if err != nil {
				return err
			}
			o, ok := tools.NewService(co).Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown operation %q", args[0])
			}
			res := o.Invoke(cmd.Context(), json.RawMessage(rawArgs))
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			if !res.Success {
				return fmt.Errorf("%s failed", args[0])
			}
			return nil
		},
	}
	c.Flags().StringVar(&rawArgs, "args", "{}", "JSON argument object")
	return c
}
