package ops

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JGnft17/clawtographer/internal/cache"
	"github.com/JGnft17/clawtographer/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	Status    string        // optional: pending, complete or failed
	OlderThan time.Duration // optional: only entries last updated before now - OlderThan
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes cache entries. With no filter every entry goes.
func Purge(ctx context.Context, d *Deps, input PurgeInput) (*PurgeOutput, error) {
	status, err := parseStatus(input.Status)
	if err != nil {
		return nil, err
	}
	if input.OlderThan < 0 {
		return nil, errors.NewInvalidRequest("older_than must not be negative")
	}
	if d.Store == nil {
		return nil, errors.NewInternal(fmt.Errorf("cache unavailable"))
	}

	f := cache.Filter{Status: status}
	var cutoff time.Time
	if input.OlderThan > 0 {
		cutoff = d.now().Add(-input.OlderThan)
		f.UpdatedBefore = cutoff.Unix()
	}

	count, err := d.Store.Purge(ctx, f)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, status, cutoff),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, status cache.Status, cutoff time.Time) string {
	if count == 0 {
		return "No cache entries to purge"
	}

	entryWord := "entry"
	if count > 1 {
		entryWord = "entries"
	}

	msg := fmt.Sprintf("Deleted %d", count)
	if status != "" {
		msg += " " + string(status)
	}
	msg += " cache " + entryWord

	if !cutoff.IsZero() {
		msg += fmt.Sprintf(" (last updated before %s, %s)", cutoff.Format(time.RFC3339), humanize.Time(cutoff))
	}

	return msg
}

// ParseAge parses an age such as "7d", "36h" or "90m". Days are 24 hours.
// An empty string is zero.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil || days < 0 {
			return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid age %q", s))
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid age %q (want e.g. 7d or 12h)", s))
	}
	return d, nil
}
