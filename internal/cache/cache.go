// Package cache stores per-chunk analysis results keyed by chunk identity.
package cache

import (
	"context"
	"fmt"
	"log/slog"

	carterrors "github.com/JGnft17/clawtographer/internal/errors"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// Entry is the stored result of analyzing one chunk.
type Entry struct {
	// Identity is the chunk identity (hex sha256).
	Identity string `json:"identity"`

	Status   Status `json:"status"`
	Analysis string `json:"analysis,omitempty"`

	// ErrorCode and ErrorMessage describe the last failure of a failed entry.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Attempts       int      `json:"attempts"`
	Model          string   `json:"model,omitempty"`
	Files          []string `json:"files"`
	TokensEstimate int      `json:"tokens_estimate"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Trusted reports whether the entry can be reused without calling the model.
func (e *Entry) Trusted() bool {
	return e != nil && e.Status == StatusComplete && e.Analysis != ""
}

// ToSummary strips the analysis text.
func (e *Entry) ToSummary() Summary {
	return Summary{
		Identity:       e.Identity,
		Status:         e.Status,
		ErrorCode:      e.ErrorCode,
		Attempts:       e.Attempts,
		Model:          e.Model,
		FileCount:      len(e.Files),
		TokensEstimate: e.TokensEstimate,
		AnalysisChars:  len([]rune(e.Analysis)),
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// Summary is an entry without its analysis text, used by listings.
type Summary struct {
	Identity       string `json:"identity"`
	Status         Status `json:"status"`
	ErrorCode      string `json:"error_code,omitempty"`
	Attempts       int    `json:"attempts"`
	Model          string `json:"model,omitempty"`
	FileCount      int    `json:"file_count"`
	TokensEstimate int    `json:"tokens_estimate"`
	AnalysisChars  int    `json:"analysis_chars"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Filter narrows List and Purge.
type Filter struct {
	// Status restricts to one status; empty means any.
	Status Status

	// UpdatedBefore restricts to entries last written before this Unix time; 0 means no bound.
	UpdatedBefore int64

	Limit  int
	Offset int
}

// Match reports whether e passes the status and age conditions.
func (f Filter) Match(status Status, updatedAt int64) bool {
	if f.Status != "" && status != f.Status {
		return false
	}
	if f.UpdatedBefore > 0 && updatedAt >= f.UpdatedBefore {
		return false
	}
	return true
}

// Store is a key-value store of entries by identity. Implementations must
// tolerate concurrent writes to distinct identities.
type Store interface {
	// Get returns the entry, NOT_FOUND when absent, or CACHE_ERROR when the
	// stored record cannot be decoded.
	Get(ctx context.Context, identity string) (*Entry, error)

	// Put inserts or replaces the entry. CreatedAt is preserved on replace.
	Put(ctx context.Context, e *Entry) error

	// Complete reports whether a trusted complete entry exists.
	Complete(ctx context.Context, identity string) (bool, error)

	Delete(ctx context.Context, identity string) error

	// List returns summaries ordered by most recent update first, plus the
	// total number of matching entries.
	List(ctx context.Context, f Filter) ([]Summary, int, error)

	// Purge deletes every matching entry and returns how many were removed.
	Purge(ctx context.Context, f Filter) (int, error)

	// Name identifies the backend ("sqlite" or "files").
	Name() string
}

// Lookup returns the trusted entry for identity, or nil on any kind of miss.
// Unreadable entries are logged and treated as misses.
func Lookup(ctx context.Context, s Store, identity string, log *slog.Logger) *Entry {
	e, err := s.Get(ctx, identity)
	if err != nil {
		if !carterrors.Is(err, carterrors.ErrNotFound) && log != nil {
			log.WarnContext(ctx, "cache entry unusable, treating as miss", "identity", identity, "error", err)
		}
		return nil
	}
	if !e.Trusted() {
		return nil
	}
	return e
}

// ValidateIdentity rejects identities that are not lowercase hex of at least
// two characters.
func ValidateIdentity(identity string) error {
	if len(identity) < 2 {
		return carterrors.NewInvalidRequest(fmt.Sprintf("invalid identity %q", identity))
	}
	for _, r := range identity {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return carterrors.NewInvalidRequest(fmt.Sprintf("invalid identity %q", identity))
		}
	}
	return nil
}
