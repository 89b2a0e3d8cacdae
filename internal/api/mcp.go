package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/questboard/internal/gear"
	"github.com/kalambet/questboard/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Gear   *gear.Suggester
	Ingest IngestTrigger // optional; run_ingest reports an error without it
}

// NewMCPServer creates an MCP server exposing quest lookup, gear suggestions
// and difficulty curves.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"questboard",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("questboard: cached gigs and odd jobs with difficulty scores and suggested gear."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_quests",
			mcp.WithDescription("Fuzzy-search cached quests by title. An empty query lists the most recent quests."),
			mcp.WithString("query", mcp.Description("Search text")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchQuests(deps),
	)

	s.AddTool(
		mcp.NewTool("get_quest",
			mcp.WithDescription("Fetch a single quest by id, including difficulty, reward and gear."),
			mcp.WithString("id", mcp.Description("Quest id"), mcp.Required()),
		),
		mcpGetQuest(deps),
	)

	s.AddTool(
		mcp.NewTool("suggest_gear",
			mcp.WithDescription("Suggest gear for a free-text job description."),
			mcp.WithString("text", mcp.Description("Job description"), mcp.Required()),
		),
		mcpSuggestGear(deps),
	)

	s.AddTool(
		mcp.NewTool("difficulty_curves",
			mcp.WithDescription("List learned keyword difficulty curves, newest first."),
			mcp.WithString("category", mcp.Description("Source tag to filter by; empty lists all")),
		),
		mcpDifficultyCurves(deps),
	)

	s.AddTool(
		mcp.NewTool("run_ingest",
			mcp.WithDescription("Queue an immediate fetch from all configured sources."),
		),
		mcpRunIngest(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"quests://pending",
			"Pending Quests",
			mcp.WithResourceDescription("Up to 20 quests awaiting moderation"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"quests://stats",
			"Cache Statistics",
			mcp.WithResourceDescription("Quest counts per source, average difficulty and gear coverage"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpSearchQuests(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		quests, err := deps.Store.SearchQuests(req.GetString("query", ""), limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpJSON(viewsOf(quests))
	}
}

func mcpGetQuest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		q, err := deps.Store.GetQuest(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("quest %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get quest: %v", err)), nil
		}
		return mcpJSON(viewOf(q))
	}
}

func mcpSuggestGear(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || text == "" {
			return mcpError("text is required"), nil
		}
		return mcpJSON(gearResponse{
			Suggestions: deps.Gear.Suggest(text),
			Ranked:      deps.Gear.Rank(text),
		})
	}
}

func mcpDifficultyCurves(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		curves, err := deps.Store.Curves(req.GetString("category", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list curves: %v", err)), nil
		}
		if curves == nil {
			curves = []storage.DifficultyCurve{}
		}
		return mcpJSON(curves)
	}
}

func mcpRunIngest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Ingest == nil {
			return mcpError("ingestion scheduler is not running"), nil
		}
		deps.Ingest.Trigger()
		return mcpText("Ingestion queued"), nil
	}
}

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		quests, err := deps.Store.PendingQuests(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending quests: %w", err)
		}
		return jsonResource(req.Params.URI, viewsOf(quests))
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Store.Stats()
		if err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}
		return jsonResource(req.Params.URI, stats)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
