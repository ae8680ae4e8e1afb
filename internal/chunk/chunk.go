// Package chunk packs scanned files into token-bounded, content-addressed chunks.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	carterrors "github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/scan"
)

// Chunk is an ordered group of files analyzed by one LLM call. Never mutated
// after Pack returns.
type Chunk struct {
	Index  int               `json:"index"`
	ID     string            `json:"id"`
	Files  []scan.FileRecord `json:"files"`
	Tokens int               `json:"tokens"`
}

// Oversized reports whether the chunk is a single file above the ceiling.
func (c Chunk) Oversized(ceiling int) bool {
	return len(c.Files) == 1 && c.Tokens > ceiling
}

// Paths returns the member paths in order.
func (c Chunk) Paths() []string {
	out := make([]string, len(c.Files))
	for i, f := range c.Files {
		out[i] = f.Path
	}
	return out
}

// Pack groups files greedily in the given order. A chunk is closed when the
// next file would push it over ceiling; a file that alone exceeds ceiling
// becomes its own chunk.
func Pack(files []scan.FileRecord, ceiling int) ([]Chunk, error) {
	if ceiling <= 0 {
		return nil, carterrors.NewInvalidRequest(fmt.Sprintf("chunk ceiling must be positive, got %d", ceiling))
	}

	var chunks []Chunk
	var cur []scan.FileRecord
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			ID:     Identity(cur),
			Files:  cur,
			Tokens: curTokens,
		})
		cur = nil
		curTokens = 0
	}

	for _, f := range files {
		if f.Tokens > ceiling {
			flush()
			cur = []scan.FileRecord{f}
			curTokens = f.Tokens
			flush()
			continue
		}
		if curTokens+f.Tokens > ceiling {
			flush()
		}
		cur = append(cur, f)
		curTokens += f.Tokens
	}
	flush()

	return chunks, nil
}

// Identity is sha256 over "path\0hash\0" of every member in order.
func Identity(files []scan.FileRecord) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.ContentHash))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Render re-reads every member and returns the prompt body. A member whose
// content no longer matches its scanned hash fails the chunk with SCAN_ERROR.
func Render(c Chunk) (string, error) {
	var b strings.Builder
	for i, f := range c.Files {
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			return "", carterrors.NewScan(f.Path, err)
		}
		if scan.Hash(content) != f.ContentHash {
			return "", carterrors.NewScan(f.Path, fmt.Errorf("file changed since scan"))
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n", f.Path)
		b.Write(content)
	}
	return b.String(), nil
}
