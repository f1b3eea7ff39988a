package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	"github.com/claude-lsp/sidecar/internal/domain/project"
	appmiddleware "github.com/claude-lsp/sidecar/internal/middleware"
)

// Collector is the subset of pipeline.Pipeline the HTTP surface needs,
// narrowed so this package does not import pipeline directly.
type Collector interface {
	CollectProject(ctx context.Context) (diagnostics []diagnostic.Diagnostic, timedOut []string, err error)
	CollectFile(ctx context.Context, file string) (diagnostics []diagnostic.Diagnostic, timedOut []string, err error)
}

// Shutdowner begins a graceful shutdown; invoked asynchronously after the
// response is written so the caller sees "shutdown initiated" first.
type Shutdowner func(ctx context.Context)

// Handlers implements the supervisor's HTTP surface described in §4.3:
// health, languages, file/project diagnostics, and shutdown.
type Handlers struct {
	ProjectRoot string
	ProjectID   string
	StartedAt   time.Time
	Collector   Collector
	Shutdown    Shutdowner
}

// Mount wires the five supervisor endpoints onto r, with security
// headers, request logging, request IDs, and a rate limiter applied to
// every route.
func Mount(r chi.Router, h *Handlers, limiter *appmiddleware.RateLimiter) {
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(Logger)
	r.Use(appmiddleware.RequestID)
	if limiter != nil {
		r.Use(limiter.Handler)
	}

	r.Get("/health", h.handleHealth)
	r.Get("/languages", h.handleLanguages)
	r.Get("/diagnostics", h.handleDiagnosticsFile)
	r.Get("/diagnostics/all", h.handleDiagnosticsAll)
	r.Post("/shutdown", h.handleShutdown)
}

type healthResponse struct {
	Status    string `json:"status"`
	ProjectID string `json:"projectId"`
	Uptime    int64  `json:"uptimeSeconds"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		ProjectID: h.ProjectID,
		Uptime:    int64(time.Since(h.StartedAt).Seconds()),
	})
}

type languageEntry struct {
	Language   string   `json:"language"`
	Extensions []string `json:"extensions"`
	Installed  bool     `json:"installed"`
}

func (h *Handlers) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	detected := project.DetectLanguages(h.ProjectRoot)
	entries := make([]languageEntry, 0, len(detected))
	for _, lang := range detected {
		entries = append(entries, languageEntry{
			Language:   lang.Name,
			Extensions: lang.Extensions,
			Installed:  project.Installed(lang, h.ProjectRoot),
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Languages []languageEntry `json:"languages"`
	}{Languages: entries})
}

type diagnosticsResponse struct {
	Diagnostics []diagnostic.Diagnostic `json:"diagnostics"`
	TimedOut    []string                `json:"timedOut,omitempty"`
}

func (h *Handlers) handleDiagnosticsFile(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		writeError(w, http.StatusBadRequest, "missing file parameter")
		return
	}

	validated, err := project.ValidatePath(h.ProjectRoot, file)
	if err != nil {
		writeDomainError(w, err, "invalid file path")
		return
	}

	diags, timedOut, err := h.Collector.CollectFile(r.Context(), validated)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{Diagnostics: diags, TimedOut: timedOut})
}

func (h *Handlers) handleDiagnosticsAll(w http.ResponseWriter, r *http.Request) {
	diags, timedOut, err := h.Collector.CollectProject(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{Diagnostics: diags, TimedOut: timedOut})
}

type shutdownResponse struct {
	Status string `json:"status"`
}

func (h *Handlers) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, shutdownResponse{Status: "shutdown initiated"})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if h.Shutdown != nil {
		go h.Shutdown(context.WithoutCancel(r.Context()))
	}
}
