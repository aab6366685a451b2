package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/quillforge/quill/internal/pipeline"
)

// MCPDeps holds dependencies for the MCP server. It reuses the HTTP
// layer's Deps so both surfaces share one wiring point.
type MCPDeps struct {
	Deps
}

// NewMCPServer creates an MCP server exposing the orchestrator's agents
// as tools for MCP-capable clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}

	s := server.NewMCPServer(
		"quill",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("quill manages content agents that research and generate articles."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List all content agents with their current status and analytics."),
		),
		mcpListAgents(deps),
	)

	s.AddTool(
		mcp.NewTool("agent_status",
			mcp.WithDescription("Show a single agent's status, configuration, and rolling analytics."),
			mcp.WithNumber("agent_id", mcp.Description("Numeric agent id"), mcp.Required()),
		),
		mcpAgentStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("start_generation",
			mcp.WithDescription("Start a content generation job on an agent. Returns the artifact id; the job runs in the background."),
			mcp.WithNumber("agent_id", mcp.Description("Numeric agent id"), mcp.Required()),
			mcp.WithArray("topics", mcp.Description("Override topics for this job")),
			mcp.WithString("style", mcp.Description("Override writing style for this job")),
		),
		mcpStartGeneration(deps),
	)

	s.AddTool(
		mcp.NewTool("reset_agent",
			mcp.WithDescription("Reset an errored agent back to ready with default configuration."),
			mcp.WithNumber("agent_id", mcp.Description("Numeric agent id"), mcp.Required()),
		),
		mcpResetAgent(deps),
	)

	return s
}

func mcpListAgents(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agents, err := deps.Store.ListAgents()
		if err != nil {
			return mcpError(fmt.Sprintf("listing agents: %v", err)), nil
		}

		type agentSummary struct {
			ID             int64  `json:"id"`
			Name           string `json:"name"`
			Status         string `json:"status"`
			TotalArtifacts int    `json:"total_artifacts"`
			SuccessRate    int    `json:"success_rate_percent"`
		}

		summaries := make([]agentSummary, len(agents))
		for i, a := range agents {
			summaries[i] = agentSummary{
				ID:             a.ID,
				Name:           a.Name,
				Status:         a.Status,
				TotalArtifacts: a.Analytics.TotalArtifacts,
				SuccessRate:    a.Analytics.SuccessRatePercent,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal agents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAgentStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("agent_id")
		if err != nil {
			return mcpError("agent_id is required"), nil
		}

		a, err := deps.Store.GetAgent(int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("agent %d: %v", id, err)), nil
		}

		b, err := json.Marshal(agentView(a))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal agent: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStartGeneration(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("agent_id")
		if err != nil {
			return mcpError("agent_id is required"), nil
		}

		ov := pipeline.Overrides{
			Topics: req.GetStringSlice("topics", nil),
			Style:  req.GetString("style", ""),
		}

		job, err := deps.Pipeline.Start(ctx, int64(id), ov)
		if err != nil {
			return mcpError(fmt.Sprintf("starting generation: %v", err)), nil
		}

		go func() {
			if err := deps.Pipeline.Execute(deps.BaseContext, job); err != nil {
				// Logged by the pipeline; nothing more to report here.
				_ = err
			}
		}()

		return mcpText(fmt.Sprintf("Started generation on agent %d, artifact %s (%s)",
			id, job.ArtifactID, time.Now().UTC().Format(time.RFC3339))), nil
	}
}

func mcpResetAgent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("agent_id")
		if err != nil {
			return mcpError("agent_id is required"), nil
		}

		if err := deps.Machine.Reset(int64(id)); err != nil {
			return mcpError(fmt.Sprintf("resetting agent %d: %v", id, err)), nil
		}
		return mcpText(fmt.Sprintf("Agent %d reset to ready", id)), nil
	}
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
