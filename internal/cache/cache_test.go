package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	carterrors "github.com/JGnft17/clawtographer/internal/errors"
)

func TestEntry_Trusted(t *testing.T) {
	var nilEntry *Entry
	assert.False(t, nilEntry.Trusted())
	assert.False(t, (&Entry{Status: StatusComplete}).Trusted(), "empty analysis")
	assert.False(t, (&Entry{Status: StatusPending, Analysis: "x"}).Trusted())
	assert.True(t, (&Entry{Status: StatusComplete, Analysis: "x"}).Trusted())
}

func TestFilter_Match(t *testing.T) {
	f := Filter{Status: StatusFailed, UpdatedBefore: 100}

	assert.True(t, f.Match(StatusFailed, 50))
	assert.False(t, f.Match(StatusFailed, 100))
	assert.False(t, f.Match(StatusComplete, 50))
	assert.True(t, Filter{}.Match(StatusPending, 1_000_000))
}

func TestValidateIdentity(t *testing.T) {
	assert.NoError(t, ValidateIdentity("ab12"))
	for _, bad := range []string{"", "a", "AB12", "../x", "zz"} {
		assert.True(t, carterrors.Is(ValidateIdentity(bad), carterrors.ErrInvalidRequest), bad)
	}
}

func TestEntry_ToSummary(t *testing.T) {
	e := &Entry{Identity: "ab", Status: StatusComplete, Analysis: "héllo", Files: []string{"a", "b"}, TokensEstimate: 9}
	s := e.ToSummary()
	assert.Equal(t, 2, s.FileCount)
	assert.Equal(t, 5, s.AnalysisChars)
	assert.Equal(t, 9, s.TokensEstimate)
}
