package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/soumithganji/DineLytics/internal/foodterms"
	"github.com/soumithganji/DineLytics/internal/storage"
	"github.com/soumithganji/DineLytics/internal/textutil"
)

// MCPResolver maps food terms to catalog item names.
type MCPResolver interface {
	Resolve(ctx context.Context, terms []string) []string
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Chat     ChatRouter
	Resolver MCPResolver // optional; if nil, resolve_items returns an error
	// Schema is the rendered collection schema served as a resource.
	Schema  string
	Version string
}

const recentQueryLength = 200

// NewMCPServer creates an MCP server with the DineLytics tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"dinelytics",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("DineLytics answers questions about a food delivery business: sales, orders, stores and menu items."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question about the restaurant data, or chat. Continues a thread when thread_id is given, otherwise starts a new one."),
			mcp.WithString("question", mcp.Description("The question or message"), mcp.Required()),
			mcp.WithString("thread_id", mcp.Description("Existing thread to continue")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_threads",
			mcp.WithDescription("List chat threads, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of threads (default 20)")),
		),
		mcpListThreads(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_items",
			mcp.WithDescription("Find the exact menu item names that match the food words in a piece of text."),
			mcp.WithString("text", mcp.Description("Text mentioning foods, e.g. 'pizza and wings'"), mcp.Required()),
		),
		mcpResolveItems(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"dinelytics://schema",
			"Collection Schemas",
			mcp.WithResourceDescription("Compact description of every collection and field in the restaurant database"),
			mcp.WithMIMEType("text/markdown"),
		),
		mcpResourceSchema(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"dinelytics://recent",
			"Recent Interactions",
			mcp.WithResourceDescription("Last 10 handled turns (queries and routes only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcpError("question is required"), nil
		}
		threadID := req.GetString("thread_id", "")

		reply, err := deps.Chat.HandleTurn(ctx, threadID, question)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListThreads(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}

		threads, err := deps.Store.ListThreads(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing threads failed: %v", err)), nil
		}
		if len(threads) > limit {
			threads = threads[:limit]
		}
		if threads == nil {
			threads = []storage.ThreadSummary{}
		}

		b, err := json.Marshal(threads)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal threads: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResolveItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Resolver == nil {
			return mcpError("item resolution not available"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		type resolveResult struct {
			Terms []string `json:"terms"`
			Items []string `json:"items"`
		}
		res := resolveResult{Terms: foodterms.Extract(text), Items: []string{}}
		if len(res.Terms) > 0 {
			if items := deps.Resolver.Resolve(ctx, res.Terms); len(items) > 0 {
				res.Items = items
			}
		} else {
			res.Terms = []string{}
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal items: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSchema(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Schema == "" {
			return nil, fmt.Errorf("no schema loaded")
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     deps.Schema,
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.ListInteractions(ctx, "", 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			ThreadID  string `json:"thread_id"`
			CreatedAt string `json:"created_at"`
			Query     string `json:"query"`
			Route     string `json:"route"`
			Status    string `json:"status"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			query := ix.UserQuery
			if cut := textutil.Truncate(query, recentQueryLength); cut != query {
				query = cut + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				ThreadID:  ix.ThreadID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Query:     query,
				Route:     ix.Route,
				Status:    ix.Status,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
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
