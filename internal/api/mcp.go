package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/supportqa/internal/corpus"
	"github.com/kalambet/supportqa/internal/ingest"
	"github.com/kalambet/supportqa/internal/pipeline"
)

// mcpSessionPrefix namespaces MCP sessions so they never share history with
// HTTP clients.
const mcpSessionPrefix = "mcp:"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Responder Responder
	Version   string
}

// NewMCPServer creates an MCP server exposing the support assistant as tools
// and the contact card as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"supportqa",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("supportqa answers product support questions from a curated knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the support assistant a question. Replies are grounded in the knowledge base and keep per-session history."),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
			mcp.WithString("session", mcp.Description("Conversation identifier (default \"default\")")),
			mcp.WithString("user", mcp.Description("User identifier for remembered facts (defaults to the session)")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Rank knowledge-base entries against a query without generating an answer."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearch(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"kb://contact",
			"Support Contact",
			mcp.WithResourceDescription("Support email, phone and address as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceContact(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		session := mcpSessionPrefix + req.GetString("session", "default")

		resp, err := deps.Responder.Respond(ctx, pipeline.Request{
			Message:    message,
			SessionKey: session,
			UserID:     req.GetString("user", ""),
		})
		if errors.Is(err, pipeline.ErrEmptyMessage) {
			return mcpError("message is empty"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

type searchHit struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Source     string  `json:"source,omitempty"`
	Similarity float64 `json:"similarity"`
	Bonus      float64 `json:"bonus"`
	Composite  float64 `json:"composite"`
}

type searchResult struct {
	Passable     bool        `json:"passable"`
	EntityLocked bool        `json:"entity_locked"`
	Lexical      bool        `json:"lexical"`
	Hits         []searchHit `json:"hits"`
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		res, err := deps.Responder.Search(ctx, query)
		if errors.Is(err, corpus.ErrUnavailable) {
			return mcpError("knowledge base unavailable"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		out := searchResult{
			Passable:     res.Passable,
			EntityLocked: res.EntityLocked,
			Lexical:      res.Lexical,
			Hits:         []searchHit{},
		}
		for i, c := range res.Candidates {
			if i == limit {
				break
			}
			out.Hits = append(out.Hits, searchHit{
				ID:         c.Entry.ID,
				Text:       c.Entry.Text(),
				Source:     c.Entry.Metadata[ingest.MetadataSourceKey],
				Similarity: c.Similarity,
				Bonus:      c.KeywordBonus,
				Composite:  c.Composite,
			})
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceContact(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Responder.Contact())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal contact: %w", err)
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
