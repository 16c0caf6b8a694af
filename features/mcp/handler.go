// Package mcp exposes codebase search and web search as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/RideMatch1/neuraxon-viz/internal/adapter/websearch"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/middleware"
	"github.com/RideMatch1/neuraxon-viz/internal/retrieval"
	"github.com/RideMatch1/neuraxon-viz/internal/security"
	"github.com/RideMatch1/neuraxon-viz/internal/text"
)

const (
	ServerName    = "neuraxon-mcp"
	ServerVersion = "1.0.0"

	defaultLimit = 5
	maxLimit     = 20
	snippetChars = 500
)

// Tool errors go back to remote callers; the cause is only logged.
const (
	msgSearchFailed    = "Search failed. Please try again later."
	msgWebSearchFailed = "Web search unavailable. Please try again later."
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, topN int) ([]retrieval.Result, error)
}

type Searcher interface {
	Search(ctx context.Context, client, query string, maxResults int) (*websearch.Response, error)
}

// Gate is the subset of the security gate the tools share with /chat.
type Gate interface {
	CheckRate(client string) error
	SanitizeInput(s string) string
}

type Handler struct {
	retriever Retriever
	searcher  Searcher
	gate      Gate
}

func NewHandler(r Retriever, s Searcher, g Gate) *Handler {
	return &Handler{retriever: r, searcher: s, gate: g}
}

// NewServer registers the tools on a fresh MCP server.
func NewServer(h *Handler) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(ServerName, ServerVersion, mcpserver.WithToolCapabilities(false))

	s.AddTool(mcp.Tool{
		Name:        "search_codebase",
		Description: "Semantic search over the indexed repository. Returns the closest code, documentation and data excerpts with their file paths.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look for, in natural language or as an identifier",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of excerpts (default: 5, max: 20)",
					"default":     defaultLimit,
				},
			},
			Required: []string{"query"},
		},
	}, h.SearchCodebase)

	if h.searcher != nil {
		s.AddTool(mcp.Tool{
			Name:        "web_search",
			Description: "Search the web through the DuckDuckGo instant answer API. Shares the per-client web search quota.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search query (at most 200 characters are used)",
					},
					"max_results": map[string]interface{}{
						"type":        "number",
						"description": "Maximum number of results (default: 5)",
						"default":     websearch.DefaultMaxResults,
					},
				},
				Required: []string{"query"},
			},
		}, h.WebSearch)
	}

	return s
}

// NewHTTPHandler serves the MCP server over streamable HTTP. The caller's
// client id travels into tool handlers through the request context.
func NewHTTPHandler(s *mcpserver.MCPServer) http.Handler {
	return mcpserver.NewStreamableHTTPServer(s,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			ctx = middleware.WithClientIP(ctx, middleware.GetClientIP(r.Context()))
			return middleware.WithCorrelationID(ctx, middleware.GetCorrelationID(r.Context()))
		}),
	)
}

func (h *Handler) SearchCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}

	client := middleware.GetClientIP(ctx)
	if err := h.gate.CheckRate(client); err != nil {
		var limitErr *security.LimitError
		if errors.As(err, &limitErr) {
			return mcp.NewToolResultError(limitErr.Message), nil
		}
		return nil, err
	}

	query = h.gate.SanitizeInput(query)
	if query == "" {
		return mcp.NewToolResultError("Invalid input"), nil
	}

	limit := request.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	results, err := h.retriever.Retrieve(ctx, query, limit)
	if err != nil {
		if errors.Is(err, index.ErrNotIndexed) {
			return mcp.NewToolResultError("The codebase has not been indexed yet."), nil
		}
		slog.ErrorContext(ctx, "mcp search failed", "error", err)
		return mcp.NewToolResultError(msgSearchFailed), nil
	}

	return mcp.NewToolResultText(formatResults(results)), nil
}

func (h *Handler) WebSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	maxResults := request.GetInt("max_results", websearch.DefaultMaxResults)

	resp, err := h.searcher.Search(ctx, middleware.GetClientIP(ctx), query, maxResults)
	if err != nil {
		var limitErr *websearch.LimitError
		switch {
		case errors.As(err, &limitErr):
			return mcp.NewToolResultError(limitErr.Error()), nil
		case errors.Is(err, websearch.ErrEmptyQuery):
			return mcp.NewToolResultError("Empty query"), nil
		}
		slog.ErrorContext(ctx, "mcp web search failed", "error", err)
		return mcp.NewToolResultError(msgWebSearchFailed), nil
	}

	return mcp.NewToolResultText(websearch.Format(resp)), nil
}

func formatResults(results []retrieval.Result) string {
	if len(results) == 0 {
		return "No matching excerpts found."
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s", i+1, r.Metadata.File)
		if r.Metadata.Name != "" {
			fmt.Fprintf(&sb, " (%s %s)", r.Metadata.Type, r.Metadata.Name)
		} else if r.Metadata.Type != "" {
			fmt.Fprintf(&sb, " (%s)", r.Metadata.Type)
		}
		fmt.Fprintf(&sb, " distance=%.4f\n", r.Distance)
		sb.WriteString(text.Ellipsize(r.Text, snippetChars))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
