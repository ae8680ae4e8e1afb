// Package ops holds the operations shared by the CLI, the MCP server and the
// web viewer. Every operation takes an explicit Deps handle.
package ops

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/JGnft17/clawtographer/internal/cache"
	"github.com/JGnft17/clawtographer/internal/chunk"
	"github.com/JGnft17/clawtographer/internal/config"
	"github.com/JGnft17/clawtographer/internal/db"
	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/provider"
	"github.com/JGnft17/clawtographer/internal/scan"
	"github.com/JGnft17/clawtographer/internal/tokens"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// DefaultOutputDir is used when a map request names no output directory.
const DefaultOutputDir = "docs"

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

func paginate(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// Deps is the handle passed to every operation.
type Deps struct {
	// DB holds run history and, for the sqlite backend, the cache.
	DB *sql.DB

	Config *config.Config
	Store  cache.Store

	// Estimator counts tokens. Nil means build one from Config.
	Estimator tokens.Estimator

	// Candidates is the ranked provider list. Nil means build it from Config.
	Candidates []provider.Candidate

	// BaseDir is the state directory (~/.clawtographer). It is never scanned.
	BaseDir string

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) config() *config.Config {
	if d.Config == nil {
		return config.DefaultConfig()
	}
	return d.Config
}

func (d *Deps) estimator() (tokens.Estimator, error) {
	if d.Estimator != nil {
		return d.Estimator, nil
	}
	cfg := d.config()
	est, err := tokens.New(cfg.TokenEstimator, cfg.BytesPerToken)
	if err != nil {
		return nil, err
	}
	d.Estimator = est
	return est, nil
}

func (d *Deps) candidates() ([]provider.Candidate, error) {
	if d.Candidates != nil {
		return d.Candidates, nil
	}
	return provider.Candidates(d.config())
}

// OpenStore returns the cache backend named by cfg.CacheBackend. The files
// backend lives under baseDir/cache.
func OpenStore(cfg *config.Config, database *sql.DB, baseDir string) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "", "sqlite":
		if database == nil {
			return nil, errors.NewInternal(fmt.Errorf("sqlite cache backend needs a database"))
		}
		return db.NewCacheStore(database), nil
	case "files":
		s, err := cache.NewFileStore(filepath.Join(baseDir, db.CacheDir))
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		return s, nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown cache_backend %q", cfg.CacheBackend))
	}
}

// resolveRoot returns the absolute, existing directory for root.
func resolveRoot(root string) (string, error) {
	if root == "" {
		return "", errors.NewInvalidRequest("root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid root: %v", err))
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFound("directory", root)
		}
		return "", errors.NewScan(root, err)
	}
	if !info.IsDir() {
		return "", errors.NewInvalidRequest(fmt.Sprintf("not a directory: %s", root))
	}
	return abs, nil
}

// layout is a scanned and packed tree.
type layout struct {
	root   string
	scan   *scan.Result
	chunks []chunk.Chunk
}

// prepare scans root and packs the result under the configured ceiling.
func (d *Deps) prepare(ctx context.Context, root string, exclude []string) (*layout, error) {
	cfg := d.config()
	est, err := d.estimator()
	if err != nil {
		return nil, err
	}
	abs, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	if d.BaseDir != "" {
		exclude = append(exclude, d.BaseDir)
	}
	if fs, ok := d.Store.(*cache.FileStore); ok {
		exclude = append(exclude, fs.Dir())
	}

	res, err := scan.Scan(ctx, abs, scan.Options{
		IgnorePatterns:   cfg.IgnorePatterns,
		DisableGitignore: cfg.DisableGitignore,
		SkipVendored:     cfg.SkipVendored,
		Exclude:          exclude,
		Estimator:        est,
		Logger:           d.Logger,
	})
	if err != nil {
		return nil, err
	}
	chunks, err := chunk.Pack(res.Files, cfg.MaxTokensPerChunk)
	if err != nil {
		return nil, err
	}
	return &layout{root: abs, scan: res, chunks: chunks}, nil
}
