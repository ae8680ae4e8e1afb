package ops

import (
	"context"

	"github.com/JGnft17/clawtographer/internal/cache"
)

// StatusInput contains parameters for the Status operation.
type StatusInput struct {
	Root      string
	OutputDir string
}

// StatusOutput contains the result of the Status operation.
type StatusOutput struct {
	Root     string `json:"root"`
	Backend  string `json:"backend"`
	Chunks   int    `json:"chunks"`
	Complete int    `json:"complete"`
	Failed   int    `json:"failed"`
	Pending  int    `json:"pending"`
	Missing  int    `json:"missing"`

	// Calls is the number of model calls a map run would make now.
	Calls int `json:"calls"`

	Items []PlanChunk `json:"items"`
}

// Status reports how much of root's current layout is already cached.
func Status(ctx context.Context, d *Deps, input StatusInput) (*StatusOutput, error) {
	plan, err := Plan(ctx, d, PlanInput(input))
	if err != nil {
		return nil, err
	}

	out := &StatusOutput{
		Root:   plan.Root,
		Chunks: len(plan.Chunks),
		Items:  plan.Chunks,
	}
	if d.Store != nil {
		out.Backend = d.Store.Name()
	}
	for _, c := range plan.Chunks {
		switch c.Status {
		case string(cache.StatusComplete):
			out.Complete++
		case string(cache.StatusFailed):
			out.Failed++
		case string(cache.StatusPending):
			out.Pending++
		default:
			out.Missing++
		}
	}
	out.Calls = out.Chunks - out.Complete
	return out, nil
}
