// Package tokens estimates how many model tokens a piece of text will cost.
package tokens

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	carterrors "github.com/JGnft17/clawtographer/internal/errors"
)

// Estimator counts tokens for a text.
type Estimator interface {
	Count(text string) int
	Name() string
}

const (
	NameTiktoken = "tiktoken"
	NameChars    = "chars"
	NameWords    = "words"

	// Encoding is the BPE used by the tiktoken estimator.
	Encoding = "cl100k_base"

	wordsFactor = 1.3
)

// New returns the estimator registered under name.
func New(name string, bytesPerToken float64) (Estimator, error) {
	switch name {
	case NameChars:
		if bytesPerToken <= 0 {
			return nil, carterrors.NewInvalidRequest("bytes_per_token must be positive")
		}
		return Chars{BytesPerToken: bytesPerToken}, nil
	case NameWords:
		return Words{}, nil
	case NameTiktoken, "":
		return NewTiktoken()
	default:
		return nil, carterrors.NewInvalidRequest(fmt.Sprintf("unknown token estimator %q", name))
	}
}

// Chars approximates tokens as bytes divided by a fixed ratio.
type Chars struct {
	BytesPerToken float64
}

func (c Chars) Count(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / c.BytesPerToken))
}

func (Chars) Name() string { return NameChars }

// Words approximates tokens as whitespace-separated words times 1.3.
type Words struct{}

func (Words) Count(text string) int {
	n := len(strings.Fields(text))
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) * wordsFactor))
}

func (Words) Name() string { return NameWords }

var (
	loaderOnce sync.Once
	encOnce    sync.Once
	enc        *tiktoken.Tiktoken
	encErr     error
)

// Tiktoken counts real cl100k_base tokens. The BPE ranks are embedded, so no
// network access is needed.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the shared cl100k_base encoding.
func NewTiktoken() (*Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(Encoding)
	})
	if encErr != nil {
		return nil, carterrors.NewInternal(fmt.Errorf("load %s: %w", Encoding, encErr))
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (*Tiktoken) Name() string { return NameTiktoken }
