// Package dispatch sends chunks to an analyzer under a concurrency limit,
// reusing cached results and recording every outcome in the cache.
package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/JGnft17/clawtographer/internal/cache"
	"github.com/JGnft17/clawtographer/internal/chunk"
	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/logging"
	"github.com/JGnft17/clawtographer/internal/provider"
)

// Options tunes a Dispatcher. Zero values fall back to defaults.
type Options struct {
	// Limit is the maximum number of outstanding analyzer calls.
	Limit int

	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// Result is the outcome for one chunk. Results are indexed by chunk index.
type Result struct {
	Index     int          `json:"index"`
	Identity  string       `json:"identity"`
	Files     []string     `json:"files"`
	Tokens    int          `json:"tokens"`
	Status    cache.Status `json:"status"`
	FromCache bool         `json:"from_cache"`
	Attempts  int          `json:"attempts"`
	Analysis  string       `json:"-"`
	ErrorCode string       `json:"error_code,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// OK reports whether the chunk has a usable analysis.
func (r Result) OK() bool { return r.Status == cache.StatusComplete }

// Dispatcher runs chunks against one analyzer and one cache store.
type Dispatcher struct {
	store    cache.Store
	analyzer provider.Analyzer
	opts     Options
	log      *slog.Logger
}

// New returns a dispatcher.
func New(store cache.Store, analyzer provider.Analyzer, opts Options) *Dispatcher {
	if opts.Limit <= 0 {
		opts.Limit = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Dispatcher{
		store:    store,
		analyzer: analyzer,
		opts:     opts,
		log:      logging.Component(opts.Logger, "dispatch"),
	}
}

// Run produces one result per chunk. Completed identities are served from
// the cache without a call. A failing chunk never stops the others. When ctx
// is cancelled, in-flight chunks stay pending and Run returns ctx's error
// along with whatever results were already known.
func (d *Dispatcher) Run(ctx context.Context, chunks []chunk.Chunk) ([]Result, error) {
	results := make([]Result, len(chunks))
	total := len(chunks)
	var done atomic.Int32

	var misses []int
	for i, c := range chunks {
		results[i] = Result{
			Index:    c.Index,
			Identity: c.ID,
			Files:    c.Paths(),
			Tokens:   c.Tokens,
			Status:   cache.StatusPending,
		}
		if e := cache.Lookup(ctx, d.store, c.ID, d.log); e != nil {
			results[i].Status = cache.StatusComplete
			results[i].FromCache = true
			results[i].Analysis = e.Analysis
			results[i].Attempts = e.Attempts
			d.log.InfoContext(ctx, "using cached analysis", "chunk", c.Index+1, "completed", int(done.Add(1)), "total", total)
			continue
		}
		misses = append(misses, i)
	}

	if len(misses) > 0 {
		d.log.InfoContext(ctx, "analyzing chunks",
			"chunks", len(misses), "cached", total-len(misses), "parallel", d.opts.Limit)
	}

	var g errgroup.Group
	g.SetLimit(d.opts.Limit)
	for _, i := range misses {
		if ctx.Err() != nil {
			break
		}
		c := chunks[i]
		entry := &cache.Entry{
			Identity:       c.ID,
			Status:         cache.StatusPending,
			Model:          provider.ModelOf(d.analyzer),
			Files:          c.Paths(),
			TokensEstimate: c.Tokens,
		}
		if err := d.store.Put(ctx, entry); err != nil && ctx.Err() == nil {
			d.log.WarnContext(ctx, "cannot mark chunk pending", "chunk", c.Index+1, "error", err)
		}

		g.Go(func() error {
			results[i] = d.analyze(ctx, c, entry)
			if results[i].Status != cache.StatusPending {
				d.log.InfoContext(ctx, "chunk finished",
					"chunk", c.Index+1, "status", results[i].Status,
					"completed", int(done.Add(1)), "total", total)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (d *Dispatcher) analyze(ctx context.Context, c chunk.Chunk, entry *cache.Entry) Result {
	res := Result{
		Index:    c.Index,
		Identity: c.ID,
		Files:    c.Paths(),
		Tokens:   c.Tokens,
		Status:   cache.StatusPending,
	}
	if ctx.Err() != nil {
		return res
	}

	body, err := chunk.Render(c)
	if err != nil {
		return d.fail(ctx, res, entry, err)
	}
	prompt := ChunkPrompt(c, body)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.opts.InitialDelay
	if d.opts.MaxDelay > 0 {
		eb.MaxInterval = d.opts.MaxDelay
	}

	text, err := backoff.Retry(ctx, func() (string, error) {
		res.Attempts++
		callCtx := ctx
		if d.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, d.opts.RequestTimeout)
			defer cancel()
		}
		out, err := d.analyzer.Analyze(callCtx, prompt)
		if err == nil && strings.TrimSpace(out) == "" {
			err = errors.NewProvider(d.analyzer.Name(), true, fmt.Errorf("empty analysis"))
		}
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		if !errors.IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(d.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.log.WarnContext(ctx, "retrying chunk", "chunk", c.Index+1, "attempt", res.Attempts, "in", next, "error", err)
		}),
	)
	entry.Attempts = res.Attempts

	if err != nil {
		if ctx.Err() != nil {
			// Left pending so the next run retries it.
			return res
		}
		return d.fail(ctx, res, entry, err)
	}

	res.Status = cache.StatusComplete
	res.Analysis = text
	entry.Status = cache.StatusComplete
	entry.Analysis = text
	entry.ErrorCode = ""
	entry.ErrorMessage = ""
	// Persisted even when the run is being cancelled.
	if err := d.store.Put(context.WithoutCancel(ctx), entry); err != nil {
		d.log.WarnContext(ctx, "cannot cache analysis", "chunk", c.Index+1, "error", err)
	}
	return res
}

func (d *Dispatcher) fail(ctx context.Context, res Result, entry *cache.Entry, err error) Result {
	var pErr *backoff.PermanentError
	if stderrors.As(err, &pErr) {
		err = pErr.Unwrap()
	}

	res.Status = cache.StatusFailed
	res.ErrorCode = string(errors.CodeOf(err))
	res.Error = err.Error()

	entry.Status = cache.StatusFailed
	entry.Analysis = ""
	entry.ErrorCode = res.ErrorCode
	entry.ErrorMessage = res.Error
	if perr := d.store.Put(context.WithoutCancel(ctx), entry); perr != nil {
		d.log.WarnContext(ctx, "cannot record chunk failure", "chunk", res.Index+1, "error", perr)
	}

	d.log.WarnContext(ctx, "chunk failed",
		"chunk", res.Index+1, "files", len(res.Files), "attempts", res.Attempts,
		"code", res.ErrorCode, "error", res.Error)
	return res
}
