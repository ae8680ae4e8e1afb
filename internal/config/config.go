package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	carterrors "github.com/JGnft17/clawtographer/internal/errors"
)

// DirName is the name of the global and per-repo configuration directory.
const DirName = ".clawtographer"

// Config holds application configuration.
type Config struct {
	// MaxTokensPerChunk is the chunk ceiling in estimated tokens.
	MaxTokensPerChunk int `json:"max_tokens_per_chunk,omitempty" yaml:"max_tokens_per_chunk,omitempty"`

	// MaxParallelAgents bounds the number of outstanding analysis calls.
	MaxParallelAgents int `json:"max_parallel_agents,omitempty" yaml:"max_parallel_agents,omitempty"`

	// IgnorePatterns are gitignore-style patterns applied in addition to any
	// .gitignore found in the tree.
	IgnorePatterns []string `json:"ignore_patterns,omitempty" yaml:"ignore_patterns,omitempty"`

	// DisableGitignore stops the scanner from reading .gitignore files.
	DisableGitignore bool `json:"disable_gitignore,omitempty" yaml:"disable_gitignore,omitempty"`

	// SkipVendored drops paths enry recognizes as vendored or generated.
	SkipVendored bool `json:"skip_vendored,omitempty" yaml:"skip_vendored,omitempty"`

	// TokenEstimator selects the token counting strategy: tiktoken, chars or words.
	TokenEstimator string `json:"token_estimator,omitempty" yaml:"token_estimator,omitempty"`

	// BytesPerToken is the divisor used by the chars estimator.
	BytesPerToken float64 `json:"bytes_per_token,omitempty" yaml:"bytes_per_token,omitempty"`

	// CacheBackend selects the chunk cache store: sqlite or files.
	CacheBackend string `json:"cache_backend,omitempty" yaml:"cache_backend,omitempty"`

	// Providers is the ranked list of analyzer candidates probed at run start.
	// Known names: "ollama" (HTTP API), "ollama-cli", "command".
	Providers []string `json:"providers,omitempty" yaml:"providers,omitempty"`

	// OllamaHost overrides OLLAMA_HOST for the HTTP backend.
	OllamaHost string `json:"ollama_host,omitempty" yaml:"ollama_host,omitempty"`

	// Model pins the model name. Empty means pick from Models.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Models is the model priority list used when Model is empty.
	Models []string `json:"models,omitempty" yaml:"models,omitempty"`

	// Command is the argv of the "command" provider. The prompt is written to stdin.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	RequestTimeoutSeconds   int `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty"`
	SynthesisTimeoutSeconds int `json:"synthesis_timeout_seconds,omitempty" yaml:"synthesis_timeout_seconds,omitempty"`

	// MaxAttempts is the number of calls made per chunk before it is marked failed.
	MaxAttempts         int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	RetryInitialDelayMs int `json:"retry_initial_delay_ms,omitempty" yaml:"retry_initial_delay_ms,omitempty"`
	RetryMaxDelayMs     int `json:"retry_max_delay_ms,omitempty" yaml:"retry_max_delay_ms,omitempty"`

	// SynthesisCharLimit truncates each analysis before it goes into the synthesis prompt.
	SynthesisCharLimit int `json:"synthesis_char_limit,omitempty" yaml:"synthesis_char_limit,omitempty"`

	// SynthesisTokenLimit skips synthesis when the combined summaries are larger.
	SynthesisTokenLimit int `json:"synthesis_token_limit,omitempty" yaml:"synthesis_token_limit,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"`
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// DefaultModels is the model priority list used when neither model nor models is configured.
var DefaultModels = []string{"glm-4.7-flash", "qwen2.5-coder", "llama3.1", "mistral"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxTokensPerChunk:       180000,
		MaxParallelAgents:       3,
		IgnorePatterns:          []string{".git", "__pycache__", "node_modules", "*.pyc"},
		TokenEstimator:          "tiktoken",
		BytesPerToken:           4.0,
		CacheBackend:            "sqlite",
		Providers:               []string{"ollama", "ollama-cli"},
		Models:                  append([]string(nil), DefaultModels...),
		RequestTimeoutSeconds:   300,
		SynthesisTimeoutSeconds: 240,
		MaxAttempts:             3,
		RetryInitialDelayMs:     1000,
		RetryMaxDelayMs:         10000,
		SynthesisCharLimit:      2000,
		SynthesisTokenLimit:     100000,
		LogFormat:               "text",
		LogLevel:                "info",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.clawtographer.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithRepo loads configuration from both the global directory and the
// nearest repo .clawtographer/config.json found by walking upward from startDir.
// Repo config takes precedence for scalar values; ignore patterns and disabled
// tools are merged (deduplicated). Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// LoadFile reads a single explicit config file without applying defaults.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
// Unlike the layered loaders, a missing file is an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, carterrors.NewNotFound("config file", path)
		}
		return nil, err
	}
	return decode(path, data)
}

// FindRepoConfig walks upward from startDir to find the nearest .clawtographer/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	return decode(configPath, data)
}

func decode(path string, data []byte) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, carterrors.NewInvalidRequest(fmt.Sprintf("invalid config %s: %v", path, err))
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, carterrors.NewInvalidRequest(fmt.Sprintf("invalid config %s: %v", path, err))
		}
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; ignore patterns and disabled
// tools are merged and deduplicated; ordered lists are replaced when the
// overlay sets them.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.MaxTokensPerChunk = pickInt(overlay.MaxTokensPerChunk, base.MaxTokensPerChunk)
	result.MaxParallelAgents = pickInt(overlay.MaxParallelAgents, base.MaxParallelAgents)
	result.RequestTimeoutSeconds = pickInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.SynthesisTimeoutSeconds = pickInt(overlay.SynthesisTimeoutSeconds, base.SynthesisTimeoutSeconds)
	result.MaxAttempts = pickInt(overlay.MaxAttempts, base.MaxAttempts)
	result.RetryInitialDelayMs = pickInt(overlay.RetryInitialDelayMs, base.RetryInitialDelayMs)
	result.RetryMaxDelayMs = pickInt(overlay.RetryMaxDelayMs, base.RetryMaxDelayMs)
	result.SynthesisCharLimit = pickInt(overlay.SynthesisCharLimit, base.SynthesisCharLimit)
	result.SynthesisTokenLimit = pickInt(overlay.SynthesisTokenLimit, base.SynthesisTokenLimit)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.BytesPerToken = overlay.BytesPerToken
	if result.BytesPerToken == 0 {
		result.BytesPerToken = base.BytesPerToken
	}

	result.TokenEstimator = pickString(overlay.TokenEstimator, base.TokenEstimator)
	result.CacheBackend = pickString(overlay.CacheBackend, base.CacheBackend)
	result.OllamaHost = pickString(overlay.OllamaHost, base.OllamaHost)
	result.Model = pickString(overlay.Model, base.Model)
	result.LogFormat = pickString(overlay.LogFormat, base.LogFormat)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)

	// Booleans: overlay wins if true, else base
	result.DisableGitignore = base.DisableGitignore || overlay.DisableGitignore
	result.SkipVendored = base.SkipVendored || overlay.SkipVendored

	// Ordered lists: replaced, not merged
	result.Providers = pickSlice(overlay.Providers, base.Providers)
	result.Models = pickSlice(overlay.Models, base.Models)
	result.Command = pickSlice(overlay.Command, base.Command)

	// Sets: merge and deduplicate
	result.IgnorePatterns = mergeStringSlice(base.IgnorePatterns, overlay.IgnorePatterns)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxTokensPerChunk <= 0:
		return carterrors.NewInvalidRequest("max_tokens_per_chunk must be positive")
	case c.MaxParallelAgents <= 0:
		return carterrors.NewInvalidRequest("max_parallel_agents must be positive")
	case c.BytesPerToken <= 0:
		return carterrors.NewInvalidRequest("bytes_per_token must be positive")
	case c.MaxAttempts <= 0:
		return carterrors.NewInvalidRequest("max_attempts must be positive")
	case c.RequestTimeoutSeconds <= 0 || c.SynthesisTimeoutSeconds <= 0:
		return carterrors.NewInvalidRequest("timeouts must be positive")
	case c.RetryInitialDelayMs < 0 || c.RetryMaxDelayMs < 0:
		return carterrors.NewInvalidRequest("retry delays must not be negative")
	case c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0:
		return carterrors.NewInvalidRequest("db connection limits must not be negative")
	}

	switch c.TokenEstimator {
	case "tiktoken", "chars", "words":
	default:
		return carterrors.NewInvalidRequest(fmt.Sprintf("unknown token_estimator %q (want tiktoken, chars or words)", c.TokenEstimator))
	}

	switch c.CacheBackend {
	case "sqlite", "files":
	default:
		return carterrors.NewInvalidRequest(fmt.Sprintf("unknown cache_backend %q (want sqlite or files)", c.CacheBackend))
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		return carterrors.NewInvalidRequest(fmt.Sprintf("unknown log_format %q (want text or json)", c.LogFormat))
	}

	if len(c.Providers) == 0 {
		return carterrors.NewInvalidRequest("providers must not be empty")
	}
	return nil
}

// RequestTimeout is the per-call analysis deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SynthesisTimeout is the deadline for the overview call.
func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.SynthesisTimeoutSeconds) * time.Second
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickSlice(overlay, base []string) []string {
	if len(overlay) > 0 {
		return append([]string(nil), overlay...)
	}
	if len(base) == 0 {
		return nil
	}
	return append([]string(nil), base...)
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
