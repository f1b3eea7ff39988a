package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

type fakeCollector struct {
	projectDiags []diagnostic.Diagnostic
	projectErr   error
	fileDiags    []diagnostic.Diagnostic
	fileErr      error
	lastFile     string
}

func (f *fakeCollector) CollectProject(context.Context) ([]diagnostic.Diagnostic, []string, error) {
	return f.projectDiags, nil, f.projectErr
}

func (f *fakeCollector) CollectFile(_ context.Context, file string) ([]diagnostic.Diagnostic, []string, error) {
	f.lastFile = file
	return f.fileDiags, nil, f.fileErr
}

func newTestRouter(t *testing.T, h *Handlers) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	Mount(r, h, nil)
	return r
}

func TestHandleHealth(t *testing.T) {
	h := &Handlers{ProjectID: "abc123", StartedAt: time.Now().Add(-5 * time.Second), Collector: &fakeCollector{}}
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.ProjectID != "abc123" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleLanguages(t *testing.T) {
	dir := t.TempDir()
	h := &Handlers{ProjectRoot: dir, Collector: &fakeCollector{}}
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodGet, "/languages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleDiagnosticsAll(t *testing.T) {
	collector := &fakeCollector{projectDiags: []diagnostic.Diagnostic{
		{File: "a.go", Line: 1, Severity: diagnostic.SeverityError, Message: "boom"},
	}}
	h := &Handlers{Collector: collector}
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics/all", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp diagnosticsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Diagnostics) != 1 || resp.Diagnostics[0].Message != "boom" {
		t.Fatalf("unexpected diagnostics: %+v", resp.Diagnostics)
	}
}

func TestHandleDiagnosticsAllError(t *testing.T) {
	collector := &fakeCollector{projectErr: errors.New("backend down")}
	h := &Handlers{Collector: collector}
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics/all", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleDiagnosticsFileMissingParam(t *testing.T) {
	h := &Handlers{Collector: &fakeCollector{}}
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleDiagnosticsFileEscapesRoot(t *testing.T) {
	dir := t.TempDir()
	h := &Handlers{ProjectRoot: dir, Collector: &fakeCollector{}}
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics?file=../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleDiagnosticsFileOK(t *testing.T) {
	dir := t.TempDir()
	collector := &fakeCollector{fileDiags: []diagnostic.Diagnostic{
		{File: "main.go", Severity: diagnostic.SeverityWarning, Message: "unused var"},
	}}
	h := &Handlers{ProjectRoot: dir, Collector: collector}
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics?file=main.go", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if collector.lastFile == "" {
		t.Fatal("expected CollectFile to be invoked with a validated path")
	}
}

func TestHandleShutdownInvokesShutdowner(t *testing.T) {
	called := make(chan struct{}, 1)
	h := &Handlers{
		Collector: &fakeCollector{},
		Shutdown: func(context.Context) {
			called <- struct{}{}
		},
	}
	r := newTestRouter(t, h)

	req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown was not invoked")
	}
}
