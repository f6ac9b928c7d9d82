// Package mcp exposes the chartex pipeline to MCP clients over stdio.
//
// Four tools: process a category, query indexed records, enumerate
// document headings, and clear an owner's cache. The HTTP route layer
// is a separate deployment; this surface exists for agent tooling.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/chartex/internal/config"
	"github.com/hurttlocker/chartex/internal/index"
	"github.com/hurttlocker/chartex/internal/pipeline"
)

// ServerConfig holds the collaborators the tools run against.
type ServerConfig struct {
	Engine     *pipeline.Engine
	Index      index.Index
	Categories []config.CategorySpec
	Version    string
}

// SQLite supports one writer at a time; serializing tool calls keeps
// a process call's delete-then-insert from interleaving with a
// concurrent query against the same database.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all chartex tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Chartex",
		ver,
		server.WithToolCapabilities(false),
	)

	registerProcessTool(s, cfg)
	registerRecordsTool(s, cfg)
	registerCategoriesTool(s, cfg)
	registerClearCacheTool(s, cfg)

	return s
}

// Serve runs the server over stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func registerProcessTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("chartex_process",
		mcp.WithDescription("Derive structured records for one category of a source document. Served from cache when the source has not changed; otherwise recomputed and reindexed."),
		mcp.WithString("owner",
			mcp.Required(),
			mcp.Description("Owner identifier all records are scoped to"),
		),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file name"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Category name (e.g. 'medication', 'clinical-note')"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		owner, err := req.RequireString("owner")
		if err != nil {
			return mcp.NewToolResultError("owner is required"), nil
		}
		file, err := req.RequireString("file")
		if err != nil {
			return mcp.NewToolResultError("file is required"), nil
		}
		catName, err := req.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError("category is required"), nil
		}

		spec := findCategory(cfg.Categories, catName)
		if spec == nil {
			return mcp.NewToolResultError(fmt.Sprintf("unknown category: %s", catName)), nil
		}

		result, err := cfg.Engine.ProcessCategory(ctx, owner, file, *spec)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("process error: %v", err)), nil
		}

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRecordsTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("chartex_records",
		mcp.WithDescription("Search an owner's indexed records by keyword, optionally scoped to a category or source file."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("owner",
			mcp.Required(),
			mcp.Description("Owner identifier"),
		),
		mcp.WithString("query",
			mcp.Description("Keyword query; empty lists everything in scope"),
		),
		mcp.WithString("category",
			mcp.Description("Exact category filter"),
		),
		mcp.WithString("file",
			mcp.Description("Exact source-file filter"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of hits (default: 20)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if cfg.Index == nil {
			return mcp.NewToolResultError("search index unavailable"), nil
		}

		owner, err := req.RequireString("owner")
		if err != nil {
			return mcp.NewToolResultError("owner is required"), nil
		}

		opts := index.QueryOpts{}
		if v, err := req.RequireString("query"); err == nil {
			opts.Query = v
		}
		if v, err := req.RequireString("category"); err == nil {
			opts.Category = v
		}
		if v, err := req.RequireString("file"); err == nil {
			opts.SourceFile = v
		}
		if v, err := req.RequireFloat("limit"); err == nil && v > 0 {
			opts.Limit = int(v)
		}

		result, err := cfg.Index.Query(ctx, owner, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query error: %v", err)), nil
		}

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCategoriesTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("chartex_categories",
		mcp.WithDescription("Enumerate a document's top-level headings and occurrence counts via the text-generation delegate. Delegate failure returns an empty list with an error note."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file name"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		file, err := req.RequireString("file")
		if err != nil {
			return mcp.NewToolResultError("file is required"), nil
		}

		result, err := cfg.Engine.Categories(ctx, file)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("categories error: %v", err)), nil
		}

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClearCacheTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("chartex_clear_cache",
		mcp.WithDescription("Remove every cached artifact for an owner. Use after re-uploading or reprocessing a source document."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("owner",
			mcp.Required(),
			mcp.Description("Owner identifier"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		owner, err := req.RequireString("owner")
		if err != nil {
			return mcp.NewToolResultError("owner is required"), nil
		}

		cleared, err := cfg.Engine.ClearCache(ctx, owner)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clear error: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(`{"cleared": %d}`, cleared)), nil
	})
}

func findCategory(specs []config.CategorySpec, name string) *config.CategorySpec {
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i]
		}
	}
	return nil
}
