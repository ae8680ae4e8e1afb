package ops

import (
	"context"

	"github.com/JGnft17/clawtographer/internal/cache"
	"github.com/JGnft17/clawtographer/internal/scan"
)

// PlanInput contains parameters for the Plan operation.
type PlanInput struct {
	Root string

	// OutputDir locates the report and timestamp files, which the scan skips
	// as Map does. Default: <root>/docs.
	OutputDir string
}

// PlanChunk is one chunk of a plan.
type PlanChunk struct {
	Index     int      `json:"index"`
	Identity  string   `json:"identity"`
	Files     []string `json:"files"`
	Tokens    int      `json:"tokens"`
	Oversized bool     `json:"oversized,omitempty"`

	// Status is the cache state: complete, failed, pending, or missing.
	Status string `json:"status"`
}

// Cached reports whether the chunk would be served from the cache.
func (c PlanChunk) Cached() bool { return c.Status == string(cache.StatusComplete) }

// PlanOutput contains the result of the Plan operation.
type PlanOutput struct {
	Root        string         `json:"root"`
	Ceiling     int            `json:"ceiling"`
	Estimator   string         `json:"estimator"`
	FileCount   int            `json:"file_count"`
	TotalTokens int            `json:"total_tokens"`
	TotalBytes  int64          `json:"total_bytes"`
	Chunks      []PlanChunk    `json:"chunks"`
	Skipped     []scan.Skipped `json:"skipped"`
}

// StatusMissing marks a chunk with no cache entry at all.
const StatusMissing = "missing"

// Plan scans and packs root without calling any model. Each chunk reports
// whether a run would reuse its cached analysis.
func Plan(ctx context.Context, d *Deps, input PlanInput) (*PlanOutput, error) {
	root, err := resolveRoot(input.Root)
	if err != nil {
		return nil, err
	}
	_, reportPath, stampPath, err := outputPaths(root, input.OutputDir)
	if err != nil {
		return nil, err
	}
	l, err := d.prepare(ctx, root, []string{reportPath, stampPath})
	if err != nil {
		return nil, err
	}
	est, _ := d.estimator()

	out := &PlanOutput{
		Root:        l.root,
		Ceiling:     d.config().MaxTokensPerChunk,
		Estimator:   est.Name(),
		FileCount:   len(l.scan.Files),
		TotalTokens: l.scan.TotalTokens,
		TotalBytes:  l.scan.TotalBytes,
		Chunks:      make([]PlanChunk, 0, len(l.chunks)),
		Skipped:     l.scan.Skipped,
	}
	if out.Skipped == nil {
		out.Skipped = []scan.Skipped{}
	}

	for _, c := range l.chunks {
		out.Chunks = append(out.Chunks, PlanChunk{
			Index:     c.Index,
			Identity:  c.ID,
			Files:     c.Paths(),
			Tokens:    c.Tokens,
			Oversized: c.Oversized(out.Ceiling),
			Status:    d.cacheStatus(ctx, c.ID),
		})
	}
	return out, nil
}

// cacheStatus classifies identity without trusting anything but a complete
// entry with text. Unreadable entries count as missing.
func (d *Deps) cacheStatus(ctx context.Context, identity string) string {
	if d.Store == nil {
		return StatusMissing
	}
	e, err := d.Store.Get(ctx, identity)
	if err != nil {
		return StatusMissing
	}
	if e.Status == cache.StatusComplete && !e.Trusted() {
		return StatusMissing
	}
	return string(e.Status)
}
