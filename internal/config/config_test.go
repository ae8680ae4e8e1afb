package config

import (
	"os"
	"path/filepath"
	"testing"

	carterrors "github.com/JGnft17/clawtographer/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := DefaultConfig()
	if cfg.MaxTokensPerChunk != def.MaxTokensPerChunk {
		t.Errorf("MaxTokensPerChunk = %d, want %d", cfg.MaxTokensPerChunk, def.MaxTokensPerChunk)
	}
	if cfg.MaxParallelAgents != 3 {
		t.Errorf("MaxParallelAgents = %d, want 3", cfg.MaxParallelAgents)
	}
	if len(cfg.IgnorePatterns) != 4 {
		t.Errorf("IgnorePatterns = %v, want 4 defaults", cfg.IgnorePatterns)
	}
	if cfg.TokenEstimator != "tiktoken" {
		t.Errorf("TokenEstimator = %q, want tiktoken", cfg.TokenEstimator)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.json"), `{"max_tokens_per_chunk": 500, "max_parallel_agents": 8}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTokensPerChunk != 500 {
		t.Errorf("MaxTokensPerChunk = %d, want 500", cfg.MaxTokensPerChunk)
	}
	if cfg.MaxParallelAgents != 8 {
		t.Errorf("MaxParallelAgents = %d, want 8", cfg.MaxParallelAgents)
	}
	if cfg.RequestTimeoutSeconds != 300 {
		t.Errorf("RequestTimeoutSeconds = %d, want 300 (default)", cfg.RequestTimeoutSeconds)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.json"), `{not json}`)

	_, err := Load(tmpDir)
	if err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
	if !carterrors.Is(err, carterrors.ErrInvalidRequest) {
		t.Errorf("error = %v, want INVALID_REQUEST", err)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carto.yaml")
	writeFile(t, path, `
max_tokens_per_chunk: 700
token_estimator: chars
ignore_patterns:
  - dist/
  - "*.min.js"
command: ["claude", "-p"]
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.MaxTokensPerChunk != 700 {
		t.Errorf("MaxTokensPerChunk = %d, want 700", cfg.MaxTokensPerChunk)
	}
	if cfg.TokenEstimator != "chars" {
		t.Errorf("TokenEstimator = %q, want chars", cfg.TokenEstimator)
	}
	if len(cfg.IgnorePatterns) != 2 || cfg.IgnorePatterns[1] != "*.min.js" {
		t.Errorf("IgnorePatterns = %v", cfg.IgnorePatterns)
	}
	if len(cfg.Command) != 2 || cfg.Command[0] != "claude" {
		t.Errorf("Command = %v", cfg.Command)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if !carterrors.Is(err, carterrors.ErrNotFound) {
		t.Fatalf("LoadFile() error = %v, want NOT_FOUND", err)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeFile(t, filepath.Join(globalDir, "config.json"),
		`{"max_tokens_per_chunk": 8000, "ignore_patterns": ["dist"], "disabled_tools": ["cache_purge"]}`)
	writeFile(t, filepath.Join(repoRoot, DirName, "config.json"),
		`{"max_tokens_per_chunk": 5000, "ignore_patterns": ["build"], "providers": ["command"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.MaxTokensPerChunk != 5000 {
		t.Errorf("MaxTokensPerChunk = %d, want 5000 (repo override)", cfg.MaxTokensPerChunk)
	}
	// 4 defaults + dist + build
	if len(cfg.IgnorePatterns) != 6 {
		t.Errorf("IgnorePatterns = %v, want 6 merged", cfg.IgnorePatterns)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0] != "command" {
		t.Errorf("Providers = %v, want [command] (replaced)", cfg.Providers)
	}
	if len(cfg.DisabledTools) != 1 {
		t.Errorf("DisabledTools = %v, want [cache_purge]", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.MaxTokensPerChunk != 180000 {
		t.Errorf("MaxTokensPerChunk = %d, want 180000", cfg.MaxTokensPerChunk)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, DirName, "config.json"), `{"model": "qwen2.5-coder:7b"}`)

	subdir := filepath.Join(tmpDir, "pkg", "inner")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.Model != "qwen2.5-coder:7b" {
		t.Errorf("Model = %q, want qwen2.5-coder:7b", cfg.Model)
	}
}

func TestFindRepoConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, DirName, "config.json")
	writeFile(t, configPath, `{}`)

	deeper := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(deeper, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	tests := []struct {
		name  string
		start string
		want  string
	}{
		{"current dir", tmpDir, configPath},
		{"parent dir", deeper, configPath},
		{"empty start", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindRepoConfig(tt.start); got != tt.want {
				t.Errorf("FindRepoConfig() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{MaxTokensPerChunk: 10000, DBMaxOpenConns: 5, BytesPerToken: 4}
	overlay := &Config{MaxTokensPerChunk: 5000, BytesPerToken: 3.5}

	result := Merge(base, overlay)

	if result.MaxTokensPerChunk != 5000 {
		t.Errorf("MaxTokensPerChunk = %d, want 5000 (overlay)", result.MaxTokensPerChunk)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.BytesPerToken != 3.5 {
		t.Errorf("BytesPerToken = %v, want 3.5", result.BytesPerToken)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{DisableGitignore: true}, &Config{SkipVendored: true})

	if !result.DisableGitignore || !result.SkipVendored {
		t.Errorf("booleans should OR: %+v", result)
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{IgnorePatterns: []string{".git", " node_modules "}}
	overlay := &Config{IgnorePatterns: []string{"node_modules", "vendor"}}

	result := Merge(base, overlay)

	want := []string{".git", "node_modules", "vendor"}
	if len(result.IgnorePatterns) != len(want) {
		t.Fatalf("IgnorePatterns = %v, want %v", result.IgnorePatterns, want)
	}
	for i := range want {
		if result.IgnorePatterns[i] != want[i] {
			t.Errorf("IgnorePatterns[%d] = %q, want %q", i, result.IgnorePatterns[i], want[i])
		}
	}
}

func TestMerge_OrderedListReplaced(t *testing.T) {
	base := &Config{Models: []string{"llama3.1", "mistral"}}

	result := Merge(base, &Config{})
	if len(result.Models) != 2 {
		t.Errorf("Models = %v, want base kept", result.Models)
	}

	result = Merge(base, &Config{Models: []string{"mistral"}})
	if len(result.Models) != 1 || result.Models[0] != "mistral" {
		t.Errorf("Models = %v, want [mistral]", result.Models)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero ceiling", func(c *Config) { c.MaxTokensPerChunk = 0 }},
		{"negative ceiling", func(c *Config) { c.MaxTokensPerChunk = -1 }},
		{"zero parallel", func(c *Config) { c.MaxParallelAgents = 0 }},
		{"unknown estimator", func(c *Config) { c.TokenEstimator = "magic" }},
		{"unknown backend", func(c *Config) { c.CacheBackend = "redis" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"no providers", func(c *Config) { c.Providers = nil }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !carterrors.Is(err, carterrors.ErrInvalidRequest) {
				t.Errorf("Validate() = %v, want INVALID_REQUEST", err)
			}
		})
	}
}
