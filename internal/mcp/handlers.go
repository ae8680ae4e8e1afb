package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps *ops.Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d *ops.Deps) *Handlers {
	return &Handlers{deps: d}
}

// Request types for each tool

// MapRequest represents the arguments for codebase_map.
type MapRequest struct {
	Root        string `json:"root"`
	OutputDir   string `json:"output_dir,omitempty"`
	NoSynthesis bool   `json:"no_synthesis,omitempty"`
	Parallel    int    `json:"parallel,omitempty"`
}

// RootRequest represents the arguments for codebase_plan and cache_status.
type RootRequest struct {
	Root      string `json:"root"`
	OutputDir string `json:"output_dir,omitempty"`
}

// EntryRequest represents the arguments for cache_entry.
type EntryRequest struct {
	Identity string `json:"identity"`
}

// PurgeRequest represents the arguments for cache_purge.
type PurgeRequest struct {
	Status    string `json:"status,omitempty"`
	OlderThan string `json:"older_than,omitempty"`
}

// RunsRequest represents the arguments for runs_list.
type RunsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// RunRequest represents the arguments for run_get.
type RunRequest struct {
	ID string `json:"id"`
}

// invoke decodes the arguments into T and runs the operation.
// Operation errors become IsError results, never Go errors.
func invoke[T any](req mcp.CallToolRequest, run func(T) (any, error)) (*mcp.CallToolResult, error) {
	input, err := decode[T](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	out, err := run(input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleMap handles the codebase_map tool call.
func (h *Handlers) HandleMap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return invoke(req, func(in MapRequest) (any, error) {
		return ops.Map(ctx, h.deps, ops.MapInput{
			Root:        in.Root,
			OutputDir:   in.OutputDir,
			NoSynthesis: in.NoSynthesis,
			Parallel:    in.Parallel,
		})
	})
}

// HandlePlan handles the codebase_plan tool call.
func (h *Handlers) HandlePlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return invoke(req, func(in RootRequest) (any, error) {
		return ops.Plan(ctx, h.deps, ops.PlanInput{Root: in.Root, OutputDir: in.OutputDir})
	})
}

// HandleStatus handles the cache_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return invoke(req, func(in RootRequest) (any, error) {
		return ops.Status(ctx, h.deps, ops.StatusInput{Root: in.Root, OutputDir: in.OutputDir})
	})
}

// HandleEntry handles the cache_entry tool call.
func (h *Handlers) HandleEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return invoke(req, func(in EntryRequest) (any, error) {
		return ops.Entry(ctx, h.deps, in.Identity)
	})
}

// HandlePurge handles the cache_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return invoke(req, func(in PurgeRequest) (any, error) {
		age, err := ops.ParseAge(in.OlderThan)
		if err != nil {
			return nil, err
		}
		return ops.Purge(ctx, h.deps, ops.PurgeInput{Status: in.Status, OlderThan: age})
	})
}

// HandleRuns handles the runs_list tool call.
func (h *Handlers) HandleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return invoke(req, func(in RunsRequest) (any, error) {
		return ops.Runs(ctx, h.deps, ops.RunsInput{Limit: in.Limit, Offset: in.Offset})
	})
}

// HandleRun handles the run_get tool call.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return invoke(req, func(in RunRequest) (any, error) {
		return ops.RunDetail(ctx, h.deps, in.ID)
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var cErr *errors.CartoError
	if stderrors.As(err, &cErr) {
		msg := cErr.Message
		switch {
		case cErr.Code == errors.ErrInternal:
			msg = "an internal error occurred"
		case err != error(cErr):
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    cErr.Code,
			"message": msg,
			"status":  cErr.Status,
		}
		if cErr.Code != errors.ErrInternal && cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
		if cErr.Retryable {
			errorObj["retryable"] = true
		}
		payload = map[string]any{"error": errorObj}
	} else if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "CANCELLED",
				"message": err.Error(),
				"status":  499,
			},
		}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
