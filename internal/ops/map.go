package ops

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/JGnft17/clawtographer/internal/db"
	"github.com/JGnft17/clawtographer/internal/dispatch"
	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/logging"
	"github.com/JGnft17/clawtographer/internal/provider"
	"github.com/JGnft17/clawtographer/internal/report"
	"github.com/JGnft17/clawtographer/internal/scan"
)

// MapInput contains parameters for the Map operation.
type MapInput struct {
	Root string

	// OutputDir receives CODEBASE_MAP.md. Default: <root>/docs.
	OutputDir string

	NoSynthesis bool

	// Parallel overrides max_parallel_agents when positive.
	Parallel int

	// Rerun is the command printed in the report footer.
	Rerun string
}

// MapOutput contains the result of the Map operation.
type MapOutput struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Root       string `json:"root"`
	OutputPath string `json:"output_path,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
	Mode       string `json:"mode,omitempty"`

	// SynthesisCached is set when the synthesized body came from the cache.
	SynthesisCached bool `json:"synthesis_cached,omitempty"`

	Files  int `json:"files"`
	Tokens int `json:"tokens"`
	report.Counts

	Skipped []scan.Skipped    `json:"skipped"`
	Results []dispatch.Result `json:"results"`
}

// Map scans root, analyzes every chunk not already cached, and writes the
// codebase map. A root with no eligible files is a no-op. Per-chunk failures
// are listed in the report; only an unusable output directory, no available
// provider, or every chunk failing is an error.
func Map(ctx context.Context, d *Deps, input MapInput) (*MapOutput, error) {
	cfg := d.config()
	log := logging.Component(d.Logger, "map")

	root, err := resolveRoot(input.Root)
	if err != nil {
		return nil, err
	}
	outDir, reportPath, stampPath, err := outputPaths(root, input.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := report.Prepare(outDir); err != nil {
		return nil, err
	}

	run := &db.Run{
		ID:         newRunID(d.now()),
		Root:       root,
		OutputPath: reportPath,
		Status:     db.RunRunning,
		StartedAt:  d.now().Unix(),
	}
	ctx = logging.WithRunID(ctx, run.ID)
	out := &MapOutput{RunID: run.ID, Root: root, Skipped: []scan.Skipped{}, Results: []dispatch.Result{}}

	l, err := d.prepare(ctx, root, []string{reportPath, stampPath})
	if err != nil {
		return nil, err
	}
	out.Files = len(l.scan.Files)
	out.Tokens = l.scan.TotalTokens
	if l.scan.Skipped != nil {
		out.Skipped = l.scan.Skipped
	}
	log.InfoContext(ctx, "scan complete",
		"files", out.Files, "tokens", out.Tokens, "skipped", len(out.Skipped), "chunks", len(l.chunks))

	d.insertRun(ctx, log, run)

	if len(l.chunks) == 0 {
		log.InfoContext(ctx, "nothing to map")
		out.Status = db.RunEmpty
		run.Status = db.RunEmpty
		d.finishRun(ctx, log, run)
		return out, nil
	}

	candidates, err := d.candidates()
	if err != nil {
		return nil, d.abort(ctx, log, run, err)
	}
	analyzer, err := provider.Select(ctx, candidates, d.Logger)
	if err != nil {
		return nil, d.abort(ctx, log, run, err)
	}
	out.Provider = analyzer.Name()
	out.Model = provider.ModelOf(analyzer)
	run.Provider, run.Model = out.Provider, out.Model

	limit := cfg.MaxParallelAgents
	if input.Parallel > 0 {
		limit = input.Parallel
	}
	disp := dispatch.New(d.Store, analyzer, dispatch.Options{
		Limit:          limit,
		MaxAttempts:    cfg.MaxAttempts,
		InitialDelay:   time.Duration(cfg.RetryInitialDelayMs) * time.Millisecond,
		MaxDelay:       time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         d.Logger,
	})
	results, runErr := disp.Run(ctx, l.chunks)
	out.Results = results
	out.Counts = report.Count(results)
	d.recordChunks(ctx, log, run, results)

	if runErr != nil {
		return out, d.cancel(ctx, log, run, out, runErr)
	}
	if out.Cached+out.Analyzed == 0 {
		for _, r := range results {
			log.ErrorContext(ctx, "chunk failed", "chunk", r.Index+1, "code", r.ErrorCode, "error", r.Error)
		}
		out.Status = db.RunFailed
		return out, d.abort(ctx, log, run, errors.NewAllChunksFailed(out.Failed))
	}
	if out.Failed > 0 {
		log.WarnContext(ctx, "some chunks failed and stay cached for retry", "failed", out.Failed)
	}

	est, _ := d.estimator()
	body := report.Synthesize(ctx, analyzer, results, report.SynthesisOptions{
		Disabled:   input.NoSynthesis,
		CharLimit:  cfg.SynthesisCharLimit,
		TokenLimit: cfg.SynthesisTokenLimit,
		Timeout:    cfg.SynthesisTimeout(),
		Estimator:  est,
		Logger:     d.Logger,
		Store:      d.Store,
	})
	if err := ctx.Err(); err != nil {
		return out, d.cancel(ctx, log, run, out, err)
	}
	out.Mode = body.Mode()
	out.SynthesisCached = body.Cached
	run.Mode = out.Mode

	rerun := input.Rerun
	if rerun == "" {
		rerun = fmt.Sprintf("clawtographer map %s %s", root, outDir)
	}
	doc := report.Build(report.Meta{
		Generated: d.now(),
		Provider:  out.Provider,
		Model:     out.Model,
		Root:      root,
		RunID:     run.ID,
		Rerun:     rerun,
	}, body, results, l.scan.Files)

	written, err := report.Write(outDir, doc, d.now())
	if err != nil {
		out.Status = db.RunFailed
		return out, d.abort(ctx, log, run, err)
	}
	out.OutputPath = written.Path
	log.InfoContext(ctx, "map saved", "path", written.Path, "mode", out.Mode)

	out.Status = db.RunComplete
	if out.Failed > 0 {
		out.Status = db.RunPartial
	}
	run.Status = out.Status
	d.finishRun(ctx, log, run)
	return out, nil
}

// outputPaths resolves the output directory and the two files Map writes there.
func outputPaths(root, outDir string) (dir, reportPath, stampPath string, err error) {
	if outDir == "" {
		outDir = filepath.Join(root, DefaultOutputDir)
	}
	dir, err = filepath.Abs(outDir)
	if err != nil {
		return "", "", "", errors.NewInvalidRequest(fmt.Sprintf("invalid output directory: %v", err))
	}
	reportPath, stampPath = report.Paths(dir)
	return dir, reportPath, stampPath, nil
}

func newRunID(now time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// abort records a failed run and returns err.
func (d *Deps) abort(ctx context.Context, log *slog.Logger, run *db.Run, err error) error {
	log.ErrorContext(ctx, "map failed", "error", err)
	run.Status = db.RunFailed
	run.Error = err.Error()
	d.finishRun(ctx, log, run)
	return err
}

func (d *Deps) cancel(ctx context.Context, log *slog.Logger, run *db.Run, out *MapOutput, err error) error {
	log.WarnContext(ctx, "map cancelled; unfinished chunks stay pending", "error", err)
	out.Status = db.RunCancelled
	run.Status = db.RunCancelled
	run.Error = err.Error()
	d.finishRun(ctx, log, run)
	return err
}

func (d *Deps) insertRun(ctx context.Context, log *slog.Logger, run *db.Run) {
	if d.DB == nil {
		return
	}
	if err := db.InsertRun(ctx, d.DB, run); err != nil {
		log.WarnContext(ctx, "cannot record run", "error", err)
	}
}

func (d *Deps) finishRun(ctx context.Context, log *slog.Logger, run *db.Run) {
	if d.DB == nil {
		return
	}
	if err := db.FinishRun(context.WithoutCancel(ctx), d.DB, run); err != nil {
		log.WarnContext(ctx, "cannot record run result", "error", err)
	}
}

func (d *Deps) recordChunks(ctx context.Context, log *slog.Logger, run *db.Run, results []dispatch.Result) {
	run.ChunkCount = len(results)
	c := report.Count(results)
	run.Cached, run.Analyzed, run.Failed = c.Cached, c.Analyzed, c.Failed

	if d.DB == nil {
		return
	}
	rows := make([]db.RunChunk, 0, len(results))
	for _, r := range results {
		rows = append(rows, db.RunChunk{
			Index:     r.Index,
			Identity:  r.Identity,
			FileCount: len(r.Files),
			Tokens:    r.Tokens,
			FromCache: r.FromCache,
			Status:    string(r.Status),
		})
	}
	if err := db.InsertRunChunks(context.WithoutCancel(ctx), d.DB, run.ID, rows); err != nil {
		log.WarnContext(ctx, "cannot record run chunks", "error", err)
	}
}
