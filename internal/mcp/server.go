package mcp

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JGnft17/clawtographer/internal/logging"
	"github.com/JGnft17/clawtographer/internal/ops"
)

var (
	rootParam      = mcp.WithString("root", mcp.Required(), mcp.Description("Directory to map (absolute path recommended)"))
	outputDirParam = mcp.WithString("output_dir", mcp.Description("Directory receiving CODEBASE_MAP.md (default: <root>/docs)"))
)

var mapToolDef = mcp.NewTool("codebase_map",
	mcp.WithDescription("Scan a directory, analyze every chunk not already cached with the local model, and write CODEBASE_MAP.md. Resumable: cached chunks cost nothing."),
	rootParam,
	outputDirParam,
	mcp.WithBoolean("no_synthesis", mcp.Description("Concatenate chunk analyses instead of asking the model for an overview")),
	mcp.WithNumber("parallel", mcp.Description("Maximum concurrent model calls (default: max_parallel_agents)")),
)

var planToolDef = mcp.NewTool("codebase_plan",
	mcp.WithDescription("Dry run: scan and chunk a directory without calling any model. Lists chunks with files, tokens, identity and cache status."),
	rootParam,
	outputDirParam,
	mcp.WithReadOnlyHintAnnotation(true),
)

var statusToolDef = mcp.NewTool("cache_status",
	mcp.WithDescription("Count how many chunks of a directory are complete, failed, pending or missing in the cache."),
	rootParam,
	outputDirParam,
	mcp.WithReadOnlyHintAnnotation(true),
)

var entryToolDef = mcp.NewTool("cache_entry",
	mcp.WithDescription("Fetch one cached chunk analysis by identity."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Chunk identity (hex sha256)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var purgeToolDef = mcp.NewTool("cache_purge",
	mcp.WithDescription("Permanently delete cache entries, optionally filtered by status and age."),
	mcp.WithString("status", mcp.Description("Only entries with this status"), mcp.Enum("pending", "complete", "failed")),
	mcp.WithString("older_than", mcp.Description("Only entries last updated longer ago than this, e.g. 7d or 12h")),
	mcp.WithDestructiveHintAnnotation(true),
)

var runsToolDef = mcp.NewTool("runs_list",
	mcp.WithDescription("List recorded map runs, most recent first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Number of runs to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var runToolDef = mcp.NewTool("run_get",
	mcp.WithDescription("Fetch one map run with its chunk list."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Run ID (ULID)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

// handlerFunc is a Handlers method expression, bound to a Handlers at registration.
type handlerFunc func(*Handlers, context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// tools lists every tool with its handler, in registration order.
var tools = []struct {
	def     mcp.Tool
	handler handlerFunc
}{
	{mapToolDef, (*Handlers).HandleMap},
	{planToolDef, (*Handlers).HandlePlan},
	{statusToolDef, (*Handlers).HandleStatus},
	{entryToolDef, (*Handlers).HandleEntry},
	{purgeToolDef, (*Handlers).HandlePurge},
	{runsToolDef, (*Handlers).HandleRuns},
	{runToolDef, (*Handlers).HandleRun},
}

func isTool(name string) bool {
	for _, t := range tools {
		if t.def.Name == name {
			return true
		}
	}
	return false
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.def.Name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns the names that match no tool.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if !isTool(name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates the MCP server. Tools named in Config.DisabledTools are
// not registered.
func NewServer(d *ops.Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"clawtographer",
		version,
		server.WithToolCapabilities(true),
	)

	disabled := make(map[string]bool)
	if d.Config != nil {
		for _, name := range d.Config.DisabledTools {
			disabled[name] = true
		}
	}

	h := NewHandlers(d)
	for _, t := range tools {
		if disabled[t.def.Name] {
			continue
		}
		fn := t.handler
		s.AddTool(t.def, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return fn(h, ctx, req)
		})
	}
	return s
}

// Run serves MCP over stdin/stdout until the client disconnects or ctx is
// cancelled. Cancelling ctx also cancels in-flight tool calls.
func Run(ctx context.Context, d *ops.Deps, version string) error {
	log := logging.Component(d.Logger, "mcp")
	stdio := server.NewStdioServer(NewServer(d, version))
	stdio.SetErrorLogger(slog.NewLogLogger(log.Handler(), slog.LevelError))

	log.Info("mcp server listening on stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
