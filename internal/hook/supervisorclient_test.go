package hook

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

func startTestSupervisor(t *testing.T) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")

	l, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/diagnostics/all", func(w http.ResponseWriter, _ *http.Request) {
		resp := struct {
			Diagnostics []diagnostic.Diagnostic `json:"diagnostics"`
		}{
			Diagnostics: []diagnostic.Diagnostic{
				{File: "/proj/a.go", Line: 1, Column: 1, Severity: diagnostic.SeverityError, Message: "boom", Source: "go vet"},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/shutdown", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() {
		_ = srv.Close()
		_ = os.Remove(sockPath)
	})
	return sockPath
}

func TestSupervisorClientDiagnosticsAll(t *testing.T) {
	sockPath := startTestSupervisor(t)
	client := NewSupervisorClient(sockPath)

	diags, err := client.DiagnosticsAll(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 || diags[0].Message != "boom" {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
}

func TestSupervisorClientShutdownTolerant(t *testing.T) {
	client := NewSupervisorClient(filepath.Join(t.TempDir(), "nonexistent.sock"))
	client.Shutdown(t.Context())
}
