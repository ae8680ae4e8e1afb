package web

import (
	"net/http"
	"os"
	"strconv"

	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/ops"
)

// Handlers contains HTTP route handlers for the web viewer.
type Handlers struct {
	deps     *ops.Deps
	renderer *Renderer
}

// HandleRuns handles GET /runs: recorded map runs, newest first.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Runs(r.Context(), h.deps, ops.RunsInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "runs", RunsPageData{
		PageData: h.renderer.page("Runs", "runs"),
		Items:    result.Items,
		Pager:    pager(r, result.Pagination),
	})
}

// HandleRun handles GET /runs/{id}: one run with its chunk list.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	result, err := ops.RunDetail(r.Context(), h.deps, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	hasMap := false
	if result.OutputPath != "" {
		_, statErr := os.Stat(result.OutputPath)
		hasMap = statErr == nil
	}

	h.renderer.renderPage(w, "run", RunPageData{
		PageData: h.renderer.page("Run "+result.ID, "runs"),
		Run:      result.Run,
		Chunks:   result.Chunks,
		HasMap:   hasMap,
	})
}

// HandleRunMap handles GET /runs/{id}/map: the run's CODEBASE_MAP.md as HTML.
// The file is read from the path recorded for the run, so a later run
// writing to the same place shows its newer content.
func (h *Handlers) HandleRunMap(w http.ResponseWriter, r *http.Request) {
	result, err := ops.RunDetail(r.Context(), h.deps, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if result.OutputPath == "" {
		h.renderer.renderError(w, r, errors.NewNotFound("map", result.ID))
		return
	}

	content, err := os.ReadFile(result.OutputPath)
	if err != nil {
		if os.IsNotExist(err) {
			h.renderer.renderError(w, r, errors.NewNotFound("map", result.OutputPath))
			return
		}
		h.renderer.renderError(w, r, errors.NewOutput(result.OutputPath, err))
		return
	}

	if r.URL.Query().Get("raw") == "1" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
		return
	}

	h.renderer.renderPage(w, "map", MapPageData{
		PageData:     h.renderer.page("Codebase Map", "runs"),
		RunID:        result.ID,
		Path:         result.OutputPath,
		RenderedHTML: h.renderer.renderMarkdown(string(content)),
	})
}

// HandleEntries handles GET /entries: cache entries, optionally by status.
func (h *Handlers) HandleEntries(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	result, err := ops.Entries(r.Context(), h.deps, ops.EntriesInput{
		Status: status,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "entries", EntriesPageData{
		PageData: h.renderer.page("Cache", "entries"),
		Items:    result.Items,
		Status:   status,
		Pager:    pager(r, result.Pagination),
	})
}

// HandleEntry handles GET /entries/{id}: one cached chunk analysis.
func (h *Handlers) HandleEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := ops.Entry(r.Context(), h.deps, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, entry)
		return
	}

	data := EntryPageData{
		PageData: h.renderer.page("Chunk "+shortIdentity(entry.Identity), "entries"),
		Entry:    entry,
	}
	if entry.Analysis != "" {
		data.RenderedHTML = h.renderer.renderMarkdown(entry.Analysis)
	}
	h.renderer.renderPage(w, "entry", data)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
