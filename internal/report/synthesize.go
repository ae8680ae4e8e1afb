package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JGnft17/clawtographer/internal/cache"
	"github.com/JGnft17/clawtographer/internal/dispatch"
	"github.com/JGnft17/clawtographer/internal/logging"
	"github.com/JGnft17/clawtographer/internal/provider"
	"github.com/JGnft17/clawtographer/internal/tokens"
)

const truncatedMarker = "\n... (truncated)"

// Fallback reasons recorded when the body is a concatenation.
const (
	ReasonDisabled    = "synthesis disabled"
	ReasonTooLarge    = "too large for synthesis"
	ReasonFailed      = "synthesis failed"
	ReasonTimedOut    = "synthesis timed out"
	ReasonNoAnalyzer  = "no analyzer for synthesis"
	ReasonEmptyOutput = "synthesis returned no text"
)

// SynthesisOptions controls the synthesis pass.
type SynthesisOptions struct {
	Disabled bool

	// CharLimit caps each chunk summary, in characters.
	CharLimit int

	// TokenLimit caps the combined summaries; above it synthesis is skipped.
	TokenLimit int

	Timeout   time.Duration
	Estimator tokens.Estimator
	Logger    *slog.Logger

	// Store keeps synthesized bodies keyed by SynthesisIdentity. Nil disables reuse.
	Store cache.Store
}

// Body is the main content of the report.
type Body struct {
	Content     string
	Synthesized bool

	// Cached is set when a synthesized body was reused without a model call.
	Cached bool

	// Reason explains a concatenated body. Empty when synthesized.
	Reason string
}

// Mode is the human-readable analysis mode for the metadata block.
func (b Body) Mode() string {
	if b.Synthesized {
		return "synthesized"
	}
	if b.Reason == "" {
		return "concatenated"
	}
	return "concatenated (" + b.Reason + ")"
}

// Sorted returns a copy of results ordered by chunk index.
func Sorted(results []dispatch.Result) []dispatch.Result {
	out := make([]dispatch.Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Summaries builds the synthesis input: each successful analysis, truncated
// to limit characters, under a "## Chunk N" heading.
func Summaries(results []dispatch.Result, limit int) string {
	var parts []string
	for _, r := range Sorted(results) {
		if !r.OK() {
			continue
		}
		parts = append(parts, fmt.Sprintf("## Chunk %d\n%s", r.Index+1, truncate(r.Analysis, limit)))
	}
	return strings.Join(parts, "\n\n")
}

// Concatenate joins every successful analysis in chunk order.
func Concatenate(results []dispatch.Result) string {
	var parts []string
	for _, r := range Sorted(results) {
		if !r.OK() {
			continue
		}
		parts = append(parts, fmt.Sprintf("## Analysis Block %d\n\n%s", r.Index+1, r.Analysis))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Synthesize asks the analyzer to merge the chunk analyses into one map.
// Any problem falls back to concatenation; Synthesize never fails.
func Synthesize(ctx context.Context, a provider.Analyzer, results []dispatch.Result, opts SynthesisOptions) Body {
	log := logging.Component(opts.Logger, "report")
	fallback := func(reason string) Body {
		return Body{Content: Concatenate(results), Reason: reason}
	}

	if opts.Disabled {
		return fallback(ReasonDisabled)
	}
	if a == nil {
		return fallback(ReasonNoAnalyzer)
	}

	summaries := Summaries(results, opts.CharLimit)
	if opts.Estimator != nil && opts.TokenLimit > 0 {
		if n := opts.Estimator.Count(summaries); n > opts.TokenLimit {
			log.Warn("codebase too large for synthesis", "tokens", n, "limit", opts.TokenLimit)
			return fallback(fmt.Sprintf("%s, %s tokens", ReasonTooLarge, humanize.Comma(int64(n))))
		}
	}

	prompt := SynthesisPrompt(summaries)
	id := SynthesisIdentity(prompt)
	if opts.Store != nil {
		if e := cache.Lookup(ctx, opts.Store, id, log); e != nil {
			log.Info("using cached synthesis", "identity", id)
			return Body{Content: e.Analysis, Synthesized: true, Cached: true}
		}
	}

	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log.Info("running synthesis", "provider", a.Name())
	start := time.Now()
	out, err := a.Analyze(callCtx, prompt)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			log.Warn("synthesis timed out", "timeout", opts.Timeout)
			return fallback(ReasonTimedOut)
		}
		log.Warn("synthesis failed, using combined analyses", "error", err)
		return fallback(ReasonFailed)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		log.Warn("synthesis returned no text, using combined analyses")
		return fallback(ReasonEmptyOutput)
	}

	log.Info("synthesis complete", "took", time.Since(start).Round(time.Millisecond))
	if opts.Store != nil {
		entry := &cache.Entry{
			Identity: id,
			Status:   cache.StatusComplete,
			Analysis: out,
			Attempts: 1,
			Model:    provider.ModelOf(a),
			Files:    []string{},
		}
		if opts.Estimator != nil {
			entry.TokensEstimate = opts.Estimator.Count(prompt)
		}
		if err := opts.Store.Put(context.WithoutCancel(ctx), entry); err != nil {
			log.Warn("cannot cache synthesis", "error", err)
		}
	}
	return Body{Content: out, Synthesized: true}
}

// SynthesisIdentity is the cache key of a synthesis: sha256 over a fixed
// prefix and the full prompt, so it changes with any chunk analysis, their
// order, or the truncation limit.
func SynthesisIdentity(prompt string) string {
	h := sha256.New()
	h.Write([]byte("synthesis\x00"))
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// SynthesisPrompt wraps the chunk summaries in the map-building instructions.
func SynthesisPrompt(summaries string) string {
	return `You are creating a comprehensive CODEBASE MAP from multiple code analyses.

Here are summaries from different parts of the codebase:

` + summaries + `

Create a well-organized codebase map with:

1. **Overview** - What this codebase does (high-level purpose)
2. **Architecture** - Main components and how they relate
3. **Directory Structure** - Key directories and their purposes
4. **Important Files** - Critical files and what they do
5. **Data Flow** - How information moves through the system
6. **Entry Points** - Where execution begins
7. **Dependencies** - External libraries and internal dependencies

Make it clear, organized, and useful for someone learning this codebase.
Use markdown formatting with headers and lists.`
}

// truncate keeps the first limit runes of s. limit <= 0 disables truncation.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + truncatedMarker
		}
		n++
	}
	return s
}
