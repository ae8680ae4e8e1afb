package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JGnft17/clawtographer/internal/config"
	"github.com/JGnft17/clawtographer/internal/db"
	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/logging"
	"github.com/JGnft17/clawtographer/internal/ops"
	"github.com/JGnft17/clawtographer/internal/provider"
	"github.com/JGnft17/clawtographer/internal/tokens"
)

// testSetup wires a temporary database, the sqlite cache and a canned
// analyzer into ops.Deps.
func testSetup(t *testing.T) *ops.Deps {
	t.Helper()

	base := t.TempDir()
	database, err := db.Init(base)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.MaxTokensPerChunk = 700
	cfg.TokenEstimator = tokens.NameChars
	cfg.RetryInitialDelayMs = 1
	cfg.RetryMaxDelayMs = 2

	store, err := ops.OpenStore(cfg, database, base)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	analyzer := provider.Func(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "CODEBASE MAP") {
			return "## Overview\n\nTest project.", nil
		}
		return "### Files\n\nLooks fine.", nil
	})

	return &ops.Deps{
		DB:        database,
		Config:    cfg,
		Store:     store,
		Estimator: tokens.Chars{BytesPerToken: 4},
		Candidates: []provider.Candidate{{
			Name: "fake",
			Open: func(context.Context) (provider.Analyzer, error) { return analyzer, nil },
		}},
		BaseDir: base,
		Logger:  logging.Discard(),
		Now:     time.Now,
	}
}

// writeTree creates a small project: two chunks at a 700-token ceiling.
func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, size := range map[string]int{"a.py": 1600, "b.py": 1200, "c.py": 2000} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(strings.Repeat("x", size)), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandlePlan(t *testing.T) {
	h := NewHandlers(testSetup(t))
	ctx := context.Background()
	root := writeTree(t)

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name: "plan valid root",
			args: map[string]any{"root": root, "output_dir": t.TempDir()},
		},
		{
			name:      "plan without root",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "plan missing root",
			args:      map[string]any{"root": filepath.Join(root, "nope")},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
		{
			name:      "plan root of wrong type",
			args:      map[string]any{"root": 42},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandlePlan(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}

			out := parseOutput(t, result)
			chunks := out["chunks"].([]any)
			if len(chunks) != 2 {
				t.Fatalf("chunks = %d, want 2", len(chunks))
			}
			first := chunks[0].(map[string]any)
			if first["status"] != ops.StatusMissing {
				t.Errorf("status = %v, want %s", first["status"], ops.StatusMissing)
			}
		})
	}
}

func TestHandleMap_ThenStatusAndRuns(t *testing.T) {
	d := testSetup(t)
	h := NewHandlers(d)
	ctx := context.Background()
	root := writeTree(t)
	outDir := t.TempDir()

	result, err := h.HandleMap(ctx, makeRequest(map[string]any{
		"root":       root,
		"output_dir": outDir,
		"parallel":   2,
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["status"] != db.RunComplete {
		t.Fatalf("status = %v, want %s", out["status"], db.RunComplete)
	}
	if out["analyzed"] != float64(2) {
		t.Errorf("analyzed = %v, want 2", out["analyzed"])
	}
	if _, err := os.Stat(filepath.Join(outDir, "CODEBASE_MAP.md")); err != nil {
		t.Errorf("map not written: %v", err)
	}
	runID := out["run_id"].(string)

	status := parseOutput(t, call(t, h.HandleStatus, map[string]any{"root": root, "output_dir": outDir}))
	if status["complete"] != float64(2) || status["calls"] != float64(0) {
		t.Errorf("status = %v, want 2 complete and 0 calls", status)
	}

	runs := parseOutput(t, call(t, h.HandleRuns, map[string]any{"limit": 5}))
	items := runs["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("runs = %d, want 1", len(items))
	}
	if items[0].(map[string]any)["id"] != runID {
		t.Errorf("run id = %v, want %s", items[0].(map[string]any)["id"], runID)
	}

	run := parseOutput(t, call(t, h.HandleRun, map[string]any{"id": runID}))
	if len(run["chunks"].([]any)) != 2 {
		t.Errorf("run chunks = %v, want 2", run["chunks"])
	}

	assertErrorCode(t, call(t, h.HandleRun, map[string]any{"id": "01HZZZZZZZZZZZZZZZZZZZZZZZ"}), "NOT_FOUND")
	assertErrorCode(t, call(t, h.HandleRun, map[string]any{}), "INVALID_REQUEST")
}

func TestHandleMap_NoProvider(t *testing.T) {
	d := testSetup(t)
	d.Candidates = []provider.Candidate{{
		Name: "down",
		Open: func(context.Context) (provider.Analyzer, error) { return nil, fmt.Errorf("connection refused") },
	}}
	h := NewHandlers(d)

	result := call(t, h.HandleMap, map[string]any{"root": writeTree(t), "output_dir": t.TempDir()})
	if !result.IsError {
		t.Fatal("expected error result")
	}
	assertErrorCode(t, result, "PROVIDER_ERROR")
}

func TestHandleMap_CancelledContextReturnsCancelled(t *testing.T) {
	d := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	d.Candidates = []provider.Candidate{{
		Name: "slow",
		Open: func(context.Context) (provider.Analyzer, error) {
			return provider.Func(func(ctx context.Context, prompt string) (string, error) {
				cancel()
				<-ctx.Done()
				return "", ctx.Err()
			}), nil
		},
	}}
	h := NewHandlers(d)

	result, err := h.HandleMap(ctx, makeRequest(map[string]any{"root": writeTree(t), "output_dir": t.TempDir()}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "CANCELLED")
}

func TestHandleEntry(t *testing.T) {
	h := NewHandlers(testSetup(t))
	root := writeTree(t)
	outDir := t.TempDir()

	parseOutput(t, call(t, h.HandleMap, map[string]any{"root": root, "output_dir": outDir}))
	plan := parseOutput(t, call(t, h.HandlePlan, map[string]any{"root": root, "output_dir": outDir}))
	identity := plan["chunks"].([]any)[0].(map[string]any)["identity"].(string)

	tests := []struct {
		name      string
		args      map[string]any
		errorCode string
	}{
		{name: "entry by identity", args: map[string]any{"identity": identity}},
		{name: "entry upper case", args: map[string]any{"identity": strings.ToUpper(identity)}},
		{name: "entry unknown", args: map[string]any{"identity": strings.Repeat("0", 64)}, errorCode: "NOT_FOUND"},
		{name: "entry malformed", args: map[string]any{"identity": "../etc"}, errorCode: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, h.HandleEntry, tt.args)
			if tt.errorCode != "" {
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			out := parseOutput(t, result)
			if out["status"] != "complete" {
				t.Errorf("status = %v, want complete", out["status"])
			}
			if out["analysis"] == "" {
				t.Error("expected analysis text")
			}
		})
	}
}

func TestHandlePurge(t *testing.T) {
	h := NewHandlers(testSetup(t))
	root := writeTree(t)
	parseOutput(t, call(t, h.HandleMap, map[string]any{"root": root, "output_dir": t.TempDir()}))

	// Entries were written "now"; nothing is a week old yet.
	out := parseOutput(t, call(t, h.HandlePurge, map[string]any{"older_than": "7d"}))
	if out["purged"] != float64(0) {
		t.Errorf("purged = %v, want 0", out["purged"])
	}

	assertErrorCode(t, call(t, h.HandlePurge, map[string]any{"older_than": "soon"}), "INVALID_REQUEST")
	assertErrorCode(t, call(t, h.HandlePurge, map[string]any{"status": "stale"}), "INVALID_REQUEST")

	out = parseOutput(t, call(t, h.HandlePurge, map[string]any{"status": "complete"}))
	if out["purged"] != float64(3) {
		t.Errorf("purged = %v, want 3", out["purged"])
	}
	if out["message"] != "Deleted 3 complete cache entries" {
		t.Errorf("message = %v", out["message"])
	}
}

func TestServerRegistration(t *testing.T) {
	s := NewServer(testSetup(t), "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"codebase_map",
		"codebase_plan",
		"cache_status",
		"cache_entry",
		"cache_purge",
		"runs_list",
		"run_get",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	d := testSetup(t)
	d.Config.DisabledTools = []string{"cache_purge", "codebase_map"}
	tools := NewServer(d, "test").ListTools()

	if len(tools) != 5 {
		t.Errorf("registered tool count = %d, want 5", len(tools))
	}
	for _, name := range d.Config.DisabledTools {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	if _, ok := tools["codebase_plan"]; !ok {
		t.Error("codebase_plan should be registered")
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	d := testSetup(t)
	d.Config.DisabledTools = AllToolNames()

	if tools := NewServer(d, "test").ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestServerRegistration_DuplicateDisabled(t *testing.T) {
	d := testSetup(t)
	d.Config.DisabledTools = []string{"cache_purge", "cache_purge", "cache_purge"}
	tools := NewServer(d, "test").ListTools()

	if len(tools) != 6 {
		t.Errorf("registered tool count = %d, want 6", len(tools))
	}
	if _, ok := tools["cache_purge"]; ok {
		t.Error("disabled tool 'cache_purge' should not be registered")
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"cache_purge", "codebase_map"}, 0},
		{"one unknown", []string{"cache_purge", "fake_tool"}, 1},
		{"all unknown", []string{"foo", "bar", "baz"}, 3},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 7 {
		t.Errorf("AllToolNames() returned %d names, want 7", len(names))
	}
	if names[0] != "cache_entry" {
		t.Errorf("AllToolNames()[0] = %q, want sorted order", names[0])
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
	if msg := errObj["message"].(string); strings.Contains(msg, "secret.db") {
		t.Errorf("INTERNAL message leaked cause: %s", msg)
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("chunk 3: %w", errors.NewEncoding("bin/blob.dat", "invalid UTF-8"))
	errObj := errorObject(t, errorResult(wrapped))

	if errObj["code"] != string(errors.ErrEncoding) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrEncoding)
	}
	if msg := errObj["message"].(string); !strings.Contains(msg, "chunk 3") {
		t.Errorf("message should contain wrapper context 'chunk 3', got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("run", "abc")))

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_RetryableFlag(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewProvider("ollama", true, fmt.Errorf("503"))))
	if errObj["retryable"] != true {
		t.Errorf("retryable = %v, want true", errObj["retryable"])
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom at /home/secret")))
	if errObj["code"] != "INTERNAL" {
		t.Errorf("code=%v, want INTERNAL", errObj["code"])
	}
	if strings.Contains(errObj["message"].(string), "secret") {
		t.Error("plain error text must not leak")
	}
}

// Helper functions

func call(t *testing.T, fn func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := fn(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if !result.IsError {
		t.Fatal("expected IsError=true")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatal("no error object in payload")
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if expectedCode == "" {
		return
	}
	code, _ := errorObject(t, result)["code"].(string)
	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}

func TestDecode(t *testing.T) {
	got, err := decode[RunsRequest](makeRequest(map[string]any{"limit": 5}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Limit != 5 {
		t.Errorf("Limit = %d, want 5", got.Limit)
	}

	if _, err := decode[RunsRequest](makeRequest(nil)); err != nil {
		t.Errorf("no arguments: %v", err)
	}

	_, err = decode[RunsRequest](makeRequest(map[string]any{"limt": 5}))
	if err == nil || !strings.Contains(err.Error(), `unknown argument "limt"`) {
		t.Errorf("unknown argument error = %v", err)
	}

	_, err = decode[RunRequest](makeRequest(map[string]any{"id": 7}))
	if err == nil || !strings.Contains(err.Error(), `argument "id" must be string`) {
		t.Errorf("type error = %v", err)
	}
}
