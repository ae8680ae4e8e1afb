package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/JGnft17/clawtographer/internal/cache"
	"github.com/JGnft17/clawtographer/internal/errors"
)

// Entry returns the cache entry for identity, analysis included.
func Entry(ctx context.Context, d *Deps, identity string) (*cache.Entry, error) {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if err := cache.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if d.Store == nil {
		return nil, errors.NewInternal(fmt.Errorf("cache unavailable"))
	}
	return d.Store.Get(ctx, identity)
}

// EntriesInput contains parameters for the Entries operation.
type EntriesInput struct {
	Status string // optional: pending, complete or failed
	Limit  int    // default: 20, max: 100
	Offset int
}

// EntriesOutput contains the result of the Entries operation.
type EntriesOutput struct {
	Items      []cache.Summary `json:"items"`
	Pagination Pagination      `json:"pagination"`
	Sort       string          `json:"sort"`
}

// Entries lists cache entries without their analysis text.
func Entries(ctx context.Context, d *Deps, input EntriesInput) (*EntriesOutput, error) {
	status, err := parseStatus(input.Status)
	if err != nil {
		return nil, err
	}
	if d.Store == nil {
		return nil, errors.NewInternal(fmt.Errorf("cache unavailable"))
	}
	limit, offset := paginate(input.Limit, input.Offset)

	items, total, err := d.Store.List(ctx, cache.Filter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []cache.Summary{}
	}

	return &EntriesOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}

func parseStatus(s string) (cache.Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	status := cache.Status(s)
	if !status.Valid() {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown status %q (want pending, complete or failed)", s))
	}
	return status, nil
}
