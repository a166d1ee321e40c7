package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the full registry over the Model Context
// Protocol. Results are the JSON envelope; failures use the MCP error
// result so clients surface them as tool errors.
func NewMCPServer(s *Service, version string) *server.MCPServer {
	srv := server.NewMCPServer("opencode-teams", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, o := range s.Registry() {
		srv.AddTool(buildTool(o), handlerFor(o))
	}
	return srv
}

// ServeStdio runs the MCP server on stdin/stdout until EOF.
func ServeStdio(s *Service, version string) error {
	return server.ServeStdio(NewMCPServer(s, version))
}

func buildTool(o Operation) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(o.Description)}
	for _, p := range o.Params {
		var propOpts []mcp.PropertyOption
		if p.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		if p.Description != "" {
			propOpts = append(propOpts, mcp.Description(p.Description))
		}
		switch p.Type {
		case "number":
			opts = append(opts, mcp.WithNumber(p.Name, propOpts...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(p.Name, propOpts...))
		case "array":
			propOpts = append(propOpts, mcp.Items(map[string]any{"type": "string"}))
			opts = append(opts, mcp.WithArray(p.Name, propOpts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, propOpts...))
		}
	}
	return mcp.NewTool(o.Name, opts...)
}

func handlerFor(o Operation) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res := o.Invoke(ctx, args)
		payload, err := json.Marshal(res)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !res.Success {
			return mcp.NewToolResultError(string(payload)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}
