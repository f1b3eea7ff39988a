package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/claude-lsp/sidecar/internal/config"
)

func testConfig(t *testing.T, runtimeDir string) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.RuntimeDir = runtimeDir
	cfg.LSP.Enabled = false
	cfg.Rate.CleanupInterval = time.Hour
	cfg.Rate.MaxIdleTime = time.Hour
	return cfg
}

func dialHTTP(sockPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sockPath)
			},
		},
		Timeout: 5 * time.Second,
	}
}

func TestSupervisorServesHealthAndShutsDown(t *testing.T) {
	projectDir := t.TempDir()
	runtimeDir := t.TempDir()
	cfg := testConfig(t, runtimeDir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup, err := New(cfg, projectDir, logger)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	sockPath := sup.paths.Socket
	client := dialHTTP(sockPath)

	var resp *http.Response
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = client.Get("http://unix/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("never became healthy: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var health struct {
		Status    string `json:"status"`
		ProjectID string `json:"projectId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" {
		t.Fatalf("unexpected health: %+v", health)
	}

	allResp, err := client.Get("http://unix/diagnostics/all")
	if err != nil {
		t.Fatal(err)
	}
	defer allResp.Body.Close()
	if allResp.StatusCode != http.StatusOK {
		t.Fatalf("diagnostics/all status = %d", allResp.StatusCode)
	}

	shutdownResp, err := client.Post("http://unix/shutdown", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	shutdownResp.Body.Close()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not shut down in time")
	}
}

func TestForProjectPathsUnderRuntimeDir(t *testing.T) {
	projectDir := t.TempDir()
	runtimeDir := t.TempDir()
	cfg := testConfig(t, runtimeDir)

	sup, err := New(cfg, projectDir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(sup.paths.Socket) != runtimeDir {
		t.Fatalf("expected socket under %s, got %s", runtimeDir, sup.paths.Socket)
	}
}
