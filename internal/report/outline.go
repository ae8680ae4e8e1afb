package report

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Heading is one entry of the report's table of contents.
type Heading struct {
	Level  int    `json:"level"`
	Text   string `json:"text"`
	Anchor string `json:"anchor"`
}

// Headings parses md and returns its headings in document order. Anchors
// follow the GitHub convention, with -1, -2 suffixes for repeats.
func Headings(md string) []Heading {
	src := []byte(md)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var out []Heading
	seen := make(map[string]int)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		var b strings.Builder
		inlineText(h, src, &b)
		title := strings.TrimSpace(b.String())
		if title == "" {
			return ast.WalkSkipChildren, nil
		}

		anchor := Slug(title)
		if n := seen[anchor]; n > 0 {
			seen[anchor] = n + 1
			anchor = fmt.Sprintf("%s-%d", anchor, n)
		} else {
			seen[anchor] = 1
		}
		out = append(out, Heading{Level: h.Level, Text: title, Anchor: anchor})
		return ast.WalkSkipChildren, nil
	})
	return out
}

func inlineText(n ast.Node, src []byte, b *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			inlineText(c, src, b)
		}
	}
}

// Slug lowercases s, keeps letters, digits, '-' and '_', and turns spaces into '-'.
func Slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Contents renders a nested list of links for headings up to maxLevel.
func Contents(headings []Heading, maxLevel int) string {
	top := 0
	for _, h := range headings {
		if h.Level <= maxLevel && (top == 0 || h.Level < top) {
			top = h.Level
		}
	}

	var b strings.Builder
	for _, h := range headings {
		if h.Level > maxLevel {
			continue
		}
		b.WriteString(strings.Repeat("  ", h.Level-top))
		fmt.Fprintf(&b, "- [%s](#%s)\n", escapeLinkText(h.Text), h.Anchor)
	}
	return b.String()
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}
