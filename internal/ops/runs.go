package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/JGnft17/clawtographer/internal/db"
	"github.com/JGnft17/clawtographer/internal/errors"
)

// RunsInput contains parameters for the Runs operation.
type RunsInput struct {
	Limit  int // default: 20, max: 100
	Offset int
}

// RunsOutput contains the result of the Runs operation.
type RunsOutput struct {
	Items      []db.Run   `json:"items"`
	Pagination Pagination `json:"pagination"`
	Sort       string     `json:"sort"`
}

// Runs lists recorded map runs, most recent first.
func Runs(ctx context.Context, d *Deps, input RunsInput) (*RunsOutput, error) {
	if d.DB == nil {
		return nil, errors.NewInternal(fmt.Errorf("run history unavailable"))
	}
	limit, offset := paginate(input.Limit, input.Offset)

	runs, total, err := db.ListRuns(ctx, d.DB, limit, offset)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []db.Run{}
	}

	return &RunsOutput{
		Items: runs,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(runs) < total,
			Total:   total,
		},
		Sort: "started_at_desc",
	}, nil
}

// RunDetailOutput is one run with its chunk list.
type RunDetailOutput struct {
	db.Run
	Chunks []db.RunChunk `json:"chunks"`
}

// RunDetail returns one run by ID.
func RunDetail(ctx context.Context, d *Deps, id string) (*RunDetailOutput, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("run id is required")
	}
	if d.DB == nil {
		return nil, errors.NewInternal(fmt.Errorf("run history unavailable"))
	}

	run, err := db.GetRun(ctx, d.DB, id)
	if err != nil {
		return nil, err
	}
	chunks, err := db.ListRunChunks(ctx, d.DB, id)
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []db.RunChunk{}
	}
	return &RunDetailOutput{Run: *run, Chunks: chunks}, nil
}
