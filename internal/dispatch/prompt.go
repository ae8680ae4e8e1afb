package dispatch

import (
	"fmt"
	"strings"

	"github.com/JGnft17/clawtographer/internal/chunk"
)

// ChunkPrompt builds the analysis request for one chunk from its rendered body.
func ChunkPrompt(c chunk.Chunk, body string) string {
	var list strings.Builder
	for _, f := range c.Files {
		fmt.Fprintf(&list, "- %s\n", f.Path)
	}

	return fmt.Sprintf(`Analyze these code files:

%s
For each file, describe:
1. Purpose and main responsibility
2. Key functions, classes, or exports
3. Dependencies (what it imports/requires)
4. Important patterns or logic

Files:
%s

Provide clear, concise analysis in markdown format.`, list.String(), body)
}
