package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/JGnft17/clawtographer/internal/scan"
)

// RootArea groups files that sit directly in the scanned root.
const RootArea = "(root)"

// Area aggregates the files under one top-level directory.
type Area struct {
	Name      string   `json:"name"`
	Files     int      `json:"files"`
	Tokens    int      `json:"tokens"`
	Bytes     int64    `json:"bytes"`
	Languages []string `json:"languages,omitempty"`
}

// Areas groups files by top-level directory, sorted by name with the root
// group first. Languages are ranked by file count, at most three per area.
func Areas(files []scan.FileRecord) []Area {
	type acc struct {
		area  Area
		langs map[string]int
	}
	byName := make(map[string]*acc)
	for _, f := range files {
		name := RootArea
		if i := strings.IndexByte(f.Path, '/'); i > 0 {
			name = f.Path[:i] + "/"
		}
		a, ok := byName[name]
		if !ok {
			a = &acc{area: Area{Name: name}, langs: make(map[string]int)}
			byName[name] = a
		}
		a.area.Files++
		a.area.Tokens += f.Tokens
		a.area.Bytes += f.Size
		if f.Language != "" {
			a.langs[f.Language]++
		}
	}

	out := make([]Area, 0, len(byName))
	for _, a := range byName {
		a.area.Languages = topLanguages(a.langs, 3)
		out = append(out, a.area)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Name == RootArea) != (out[j].Name == RootArea) {
			return out[i].Name == RootArea
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func topLanguages(counts map[string]int, n int) []string {
	langs := make([]string, 0, len(counts))
	for l := range counts {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool {
		if counts[langs[i]] != counts[langs[j]] {
			return counts[langs[i]] > counts[langs[j]]
		}
		return langs[i] < langs[j]
	})
	if len(langs) > n {
		langs = langs[:n]
	}
	return langs
}

// AreasTable renders areas as a markdown table.
func AreasTable(areas []Area) string {
	var b strings.Builder
	b.WriteString("| Area | Files | Tokens | Size | Languages |\n")
	b.WriteString("|---|---:|---:|---:|---|\n")
	for _, a := range areas {
		langs := strings.Join(a.Languages, ", ")
		if langs == "" {
			langs = "-"
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
			a.Name,
			humanize.Comma(int64(a.Files)),
			humanize.Comma(int64(a.Tokens)),
			humanize.Bytes(uint64(a.Bytes)),
			langs)
	}
	return b.String()
}
