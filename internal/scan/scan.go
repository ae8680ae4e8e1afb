// Package scan walks a directory tree and produces the ordered list of files
// eligible for analysis.
package scan

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/src-d/enry/v2"

	carterrors "github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/logging"
	"github.com/JGnft17/clawtographer/internal/tokens"
)

// FileRecord describes one file accepted by the scanner. Immutable once built.
type FileRecord struct {
	Path        string `json:"path"` // slash separated, relative to root
	AbsPath     string `json:"-"`
	Size        int64  `json:"size"`
	Tokens      int    `json:"tokens"`
	ContentHash string `json:"content_hash"`
	Language    string `json:"language,omitempty"`
}

// Skipped records a path the scanner refused, with the reason.
type Skipped struct {
	Path   string               `json:"path"`
	Code   carterrors.ErrorCode `json:"code"`
	Reason string               `json:"reason"`
}

// Result is the outcome of one scan.
type Result struct {
	Root        string       `json:"root"`
	Files       []FileRecord `json:"files"`
	Skipped     []Skipped    `json:"skipped,omitempty"`
	TotalTokens int          `json:"total_tokens"`
	TotalBytes  int64        `json:"total_bytes"`
}

// Options controls what the scanner accepts.
type Options struct {
	// IgnorePatterns use gitignore syntax and apply from the root.
	IgnorePatterns []string

	DisableGitignore bool
	SkipVendored     bool

	// Exclude lists absolute paths (files or directories) that are never scanned.
	Exclude []string

	Estimator tokens.Estimator
	Logger    *slog.Logger
}

type walker struct {
	root     string
	opts     Options
	log      *slog.Logger
	exclude  map[string]bool
	seenDirs map[string]bool
	seenFile map[string]bool
	result   *Result
}

// Scan walks root in lexicographic order and returns every non-ignored,
// non-binary, UTF-8 file with its token estimate and content hash.
func Scan(ctx context.Context, root string, opts Options) (*Result, error) {
	if opts.Estimator == nil {
		return nil, carterrors.NewInvalidRequest("scan requires a token estimator")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, carterrors.NewInvalidRequest(fmt.Sprintf("resolve root: %v", err))
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, carterrors.NewNotFound("directory", root)
		}
		return nil, carterrors.NewScan(root, err)
	}
	if !info.IsDir() {
		return nil, carterrors.NewInvalidRequest(fmt.Sprintf("%s is not a directory", root))
	}

	w := &walker{
		root:     absRoot,
		opts:     opts,
		log:      logging.Component(opts.Logger, "scan"),
		exclude:  make(map[string]bool),
		seenDirs: make(map[string]bool),
		seenFile: make(map[string]bool),
		result:   &Result{Root: absRoot, Files: []FileRecord{}},
	}
	for _, p := range opts.Exclude {
		if p == "" {
			continue
		}
		w.exclude[filepath.Clean(p)] = true
		if real, err := filepath.EvalSymlinks(p); err == nil {
			w.exclude[real] = true
		}
	}

	var patterns []gitignore.Pattern
	for _, p := range opts.IgnorePatterns {
		if p = strings.TrimSpace(p); p != "" && !strings.HasPrefix(p, "#") {
			patterns = append(patterns, gitignore.ParsePattern(p, nil))
		}
	}

	if real, err := filepath.EvalSymlinks(absRoot); err == nil {
		w.seenDirs[real] = true
	}
	if err := w.walkDir(ctx, absRoot, nil, patterns); err != nil {
		return nil, err
	}

	w.log.Debug("scan finished",
		"files", len(w.result.Files),
		"skipped", len(w.result.Skipped),
		"tokens", w.result.TotalTokens)
	return w.result, nil
}

func (w *walker) walkDir(ctx context.Context, dir string, rel []string, patterns []gitignore.Pattern) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !w.opts.DisableGitignore {
		patterns = append(patterns[:len(patterns):len(patterns)], readGitignore(dir, rel)...)
	}
	matcher := gitignore.NewMatcher(patterns)

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.skip(strings.Join(rel, "/"), carterrors.ErrScan, err.Error())
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		abs := filepath.Join(dir, name)
		parts := append(rel[:len(rel):len(rel)], name)
		relPath := strings.Join(parts, "/")

		if w.exclude[abs] {
			continue
		}

		info, err := os.Stat(abs) // follows symlinks
		if err != nil {
			w.skip(relPath, carterrors.ErrScan, err.Error())
			continue
		}
		isDir := info.IsDir()

		if matcher.Match(parts, isDir) {
			continue
		}

		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			w.skip(relPath, carterrors.ErrScan, err.Error())
			continue
		}
		if w.exclude[real] {
			continue
		}

		if isDir {
			if w.seenDirs[real] {
				w.log.Debug("directory already visited", "path", relPath, "real", real)
				continue
			}
			w.seenDirs[real] = true
			if w.opts.SkipVendored && enry.IsVendor(relPath+"/") {
				continue
			}
			if err := w.walkDir(ctx, abs, parts, patterns); err != nil {
				return err
			}
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}
		if w.seenFile[real] {
			continue
		}
		w.seenFile[real] = true

		if w.opts.SkipVendored && enry.IsVendor(relPath) {
			continue
		}
		w.addFile(abs, relPath, info.Size())
	}
	return nil
}

func (w *walker) addFile(abs, relPath string, size int64) {
	content, err := os.ReadFile(abs)
	if err != nil {
		w.skip(relPath, carterrors.ErrScan, err.Error())
		return
	}
	if enry.IsBinary(content) {
		w.skip(relPath, carterrors.ErrEncoding, "binary content")
		return
	}
	if !utf8.Valid(content) {
		w.skip(relPath, carterrors.ErrEncoding, "not valid UTF-8")
		return
	}

	rec := FileRecord{
		Path:        relPath,
		AbsPath:     abs,
		Size:        size,
		Tokens:      w.opts.Estimator.Count(string(content)),
		ContentHash: Hash(content),
		Language:    enry.GetLanguage(filepath.Base(relPath), content),
	}
	w.result.Files = append(w.result.Files, rec)
	w.result.TotalTokens += rec.Tokens
	w.result.TotalBytes += rec.Size
}

func (w *walker) skip(path string, code carterrors.ErrorCode, reason string) {
	if path == "" {
		path = "."
	}
	w.result.Skipped = append(w.result.Skipped, Skipped{Path: path, Code: code, Reason: reason})
	w.log.Warn("skipped file", "path", path, "code", code, "reason", reason)
}

// readGitignore parses dir/.gitignore with patterns scoped to rel.
func readGitignore(dir string, rel []string) []gitignore.Pattern {
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil
	}

	domain := append([]string(nil), rel...)
	var ps []gitignore.Pattern
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(line, domain))
	}
	return ps
}

// Hash returns the hex sha256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
