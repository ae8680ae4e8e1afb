package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/JGnft17/clawtographer/internal/cache"
	"github.com/JGnft17/clawtographer/internal/db"
	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/ops"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "runs" or "entries"
}

// Pager holds prev/next links for a paginated list.
type Pager struct {
	Prev  string
	Next  string
	Total int
}

// RunsPageData is the template data for the run list page.
type RunsPageData struct {
	PageData
	Items []db.Run
	Pager Pager
}

// RunPageData is the template data for the run detail page.
type RunPageData struct {
	PageData
	Run    db.Run
	Chunks []db.RunChunk
	HasMap bool
}

// MapPageData is the template data for a rendered codebase map.
type MapPageData struct {
	PageData
	RunID        string
	Path         string
	RenderedHTML template.HTML
}

// EntriesPageData is the template data for the cache listing.
type EntriesPageData struct {
	PageData
	Items  []cache.Summary
	Status string
	Pager  Pager
}

// EntryPageData is the template data for one cache entry.
type EntryPageData struct {
	PageData
	Entry        *cache.Entry
	RenderedHTML template.HTML
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	md        goldmark.Markdown
	log       *slog.Logger
}

// NewRenderer parses every page template against the shared layout.
func NewRenderer(version string, log *slog.Logger) *Renderer {
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"formatTime": formatTime,
		"ago":        func(unix int64) string { return humanize.Time(time.Unix(unix, 0)) },
		"comma":      func(n int) string { return humanize.Comma(int64(n)) },
		"short":      shortIdentity,
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).Parse(layoutHTML))
	template.Must(layoutTmpl.Parse(pagerHTML))

	pages := map[string]string{
		"runs":    runsHTML,
		"run":     runHTML,
		"map":     mapHTML,
		"entries": entriesHTML,
		"entry":   entryHTML,
		"error":   errorHTML,
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, src := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.Parse(src))
		templates[name] = t
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Renderer{
		templates: templates,
		version:   version,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		log: log,
	}
}

// page returns the common page fields.
func (r *Renderer) page(title, nav string) PageData {
	return PageData{Title: title, Version: r.version, Nav: nav}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Error("template not found", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Error("template execution failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var cErr *errors.CartoError
	if !stderrors.As(err, &cErr) {
		cErr = errors.NewInternal(err)
	}

	status := cErr.Status
	message := cErr.Message
	if cErr.Code == errors.ErrInternal {
		r.log.Error("request failed", "path", req.URL.Path, "error", err)
		message = "an internal error occurred"
	}

	if wantsJSON(req) {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(cErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	r.renderPageStatus(w, status, "error", ErrorPageData{
		PageData:   r.page(fmt.Sprintf("Error %d", status), ""),
		StatusCode: status,
		Message:    message,
	})
}

// renderMarkdown converts markdown text to HTML.
func (r *Renderer) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(md), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
	}
	return template.HTML(buf.String())
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// pager builds prev/next links that keep the request's other query parameters.
func pager(req *http.Request, p ops.Pagination) Pager {
	link := func(offset int) string {
		q := req.URL.Query()
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(p.Limit))
		return (&url.URL{Path: req.URL.Path, RawQuery: q.Encode()}).String()
	}

	out := Pager{Total: p.Total}
	if p.Offset > 0 {
		out.Prev = link(max(p.Offset-p.Limit, 0))
	}
	if p.HasMore {
		out.Next = link(p.Offset + p.Limit)
	}
	return out
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

func shortIdentity(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
