// Package report assembles CODEBASE_MAP.md from chunk analyses.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JGnft17/clawtographer/internal/dispatch"
	"github.com/JGnft17/clawtographer/internal/scan"
)

// Output file names inside the output directory.
const (
	FileName      = "CODEBASE_MAP.md"
	TimestampName = ".clawtographer_timestamp"
)

const toolName = "Clawtographer"

// Meta is the header information of a report.
type Meta struct {
	Generated time.Time
	Provider  string
	Model     string
	Root      string
	RunID     string

	// Rerun is the command that regenerates the map.
	Rerun string
}

// Counts summarizes the chunk outcomes of a run.
type Counts struct {
	Chunks   int `json:"chunks"`
	Cached   int `json:"cached"`
	Analyzed int `json:"analyzed"`
	Failed   int `json:"failed"`
}

// Count tallies results. A chunk served from the cache is cached, not analyzed.
func Count(results []dispatch.Result) Counts {
	c := Counts{Chunks: len(results)}
	for _, r := range results {
		switch {
		case r.OK() && r.FromCache:
			c.Cached++
		case r.OK():
			c.Analyzed++
		default:
			c.Failed++
		}
	}
	return c
}

// Build renders the full markdown document.
func Build(meta Meta, body Body, results []dispatch.Result, files []scan.FileRecord) string {
	results = Sorted(results)

	var main strings.Builder
	main.WriteString(strings.TrimSpace(body.Content))
	main.WriteString("\n\n---\n\n## Areas\n\n")
	main.WriteString(AreasTable(Areas(files)))
	if failed := unanalyzed(results); failed != "" {
		main.WriteString("\n## Unanalyzed Chunks\n\n")
		main.WriteString(failed)
	}

	var doc strings.Builder
	doc.WriteString("# Codebase Map\n\n")
	writeMeta(&doc, meta, body, results, files)
	doc.WriteString("\n---\n\n")
	if contents := Contents(Headings(main.String()), 3); contents != "" {
		doc.WriteString("## Contents\n\n")
		doc.WriteString(contents)
		doc.WriteString("\n---\n\n")
	}
	doc.WriteString(main.String())
	doc.WriteString("\n---\n\n")
	fmt.Fprintf(&doc, "*This map was automatically generated by %s using local LLM analysis.  \n", toolName)
	if meta.Rerun != "" {
		fmt.Fprintf(&doc, "To update: re-run `%s`*\n", meta.Rerun)
	} else {
		doc.WriteString("To update: re-run the map command.*\n")
	}
	return doc.String()
}

func writeMeta(b *strings.Builder, meta Meta, body Body, results []dispatch.Result, files []scan.FileRecord) {
	model := meta.Model
	if model == "" {
		model = "unknown"
	}
	if meta.Provider != "" {
		model = fmt.Sprintf("%s (%s)", model, meta.Provider)
	}

	tokens := 0
	for _, f := range files {
		tokens += f.Tokens
	}
	c := Count(results)

	fmt.Fprintf(b, "**Generated:** %s  \n", meta.Generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(b, "**Tool:** %s  \n", toolName)
	fmt.Fprintf(b, "**Model:** %s  \n", model)
	fmt.Fprintf(b, "**Location:** %s  \n", meta.Root)
	fmt.Fprintf(b, "**Analysis:** %s  \n", body.Mode())
	fmt.Fprintf(b, "**Files:** %s (%s tokens)  \n", humanize.Comma(int64(len(files))), humanize.Comma(int64(tokens)))
	fmt.Fprintf(b, "**Chunks:** %d total, %d cached, %d analyzed, %d unanalyzed  \n",
		c.Chunks, c.Cached, c.Analyzed, c.Failed)
	if meta.RunID != "" {
		fmt.Fprintf(b, "**Run:** %s  \n", meta.RunID)
	}
}

func unanalyzed(results []dispatch.Result) string {
	var b strings.Builder
	for _, r := range results {
		if r.OK() {
			continue
		}
		reason := r.Error
		if reason == "" {
			reason = string(r.Status)
		}
		if r.ErrorCode != "" {
			reason = fmt.Sprintf("[%s] %s", r.ErrorCode, reason)
		}
		fmt.Fprintf(&b, "- **Chunk %d** (%s tokens): %s\n", r.Index+1, humanize.Comma(int64(r.Tokens)), oneLine(reason))
		for _, f := range r.Files {
			fmt.Fprintf(&b, "  - `%s`\n", f)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "These chunks could not be analyzed and are cached as failed. Re-run to retry them.\n\n" + b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
