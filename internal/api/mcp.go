package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/jobrelay/internal/actors"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runner  *Runner
	Version string
}

// NewMCPServer creates an MCP server exposing the actor tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"jobrelay",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("jobrelay runs Apify actors, waits for them to finish and returns normalized items plus the next state blob."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_actors",
			mcp.WithDescription("List the actor presets with their JSON Schemas."),
		),
		mcpListActors(),
	)

	s.AddTool(
		mcp.NewTool("run_actor",
			mcp.WithDescription("Run an actor preset and wait for its items and next state."),
			mcp.WithString("actor_type", mcp.Description("Preset name, see list_actors"), mcp.Required()),
			mcp.WithString("job", mcp.Description(`JSON object {"settings": {"actor_config", "token", "key_mapping", "state_mapping"}, "state"}`), mcp.Required()),
		),
		mcpRunActor(deps),
	)

	s.AddTool(
		mcp.NewTool("run_arbitrary_actor",
			mcp.WithDescription("Run any actor by id with a raw input object and wait for its items and next state."),
			mcp.WithString("job", mcp.Description(`JSON object {"settings": {"actor_id", "actor_input", "token", "key_mapping", "state_mapping"}, "state"}`), mcp.Required()),
		),
		mcpRunArbitraryActor(deps),
	)

	return s
}

func mcpListActors() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(actors.List())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal actors: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRunActor(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		actorType, err := req.RequireString("actor_type")
		if err != nil {
			return mcpError("actor_type is required"), nil
		}
		raw, err := req.RequireString("job")
		if err != nil {
			return mcpError("job is required"), nil
		}

		var jc JobCreation
		if err := json.Unmarshal([]byte(raw), &jc); err != nil {
			return mcpError(fmt.Sprintf("invalid job JSON: %v", err)), nil
		}
		resp, err := deps.Runner.RunPreset(ctx, actorType, jc)
		if err != nil {
			return mcpError(fmt.Sprintf("run failed: %v", err)), nil
		}
		return mcpJSON(resp), nil
	}
}

func mcpRunArbitraryActor(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("job")
		if err != nil {
			return mcpError("job is required"), nil
		}

		var aj ArbitraryActorJob
		if err := json.Unmarshal([]byte(raw), &aj); err != nil {
			return mcpError(fmt.Sprintf("invalid job JSON: %v", err)), nil
		}
		resp, err := deps.Runner.RunArbitrary(ctx, aj)
		if err != nil {
			return mcpError(fmt.Sprintf("run failed: %v", err)), nil
		}
		return mcpJSON(resp), nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
