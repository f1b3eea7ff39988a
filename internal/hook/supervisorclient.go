package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/claude-lsp/sidecar/internal/adapter/uds"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

// SupervisorClient talks HTTP to one project's supervisor over its unix
// domain socket. It does not start the supervisor; EnsureRunning does.
type SupervisorClient struct {
	sockPath string
	http     *http.Client
}

// NewSupervisorClient builds a client bound to sockPath.
func NewSupervisorClient(sockPath string) *SupervisorClient {
	return &SupervisorClient{
		sockPath: sockPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", sockPath)
				},
			},
			Timeout: 30 * time.Second,
		},
	}
}

// EnsureRunning probes the socket and, if nothing answers, spawns
// `<self> start <projectRoot>` detached from the dispatcher's process
// group and returns immediately without waiting for it to become ready.
func EnsureRunning(ctx context.Context, sockPath, projectRoot string) error {
	if uds.HealthOK(ctx, sockPath, 200*time.Millisecond) {
		return nil
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve self executable: %w", err)
	}

	cmd := exec.Command(self, "start", projectRoot) //nolint:gosec // G204: self-exec with a validated project root
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDetached(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn supervisor: %w", err)
	}
	// Deliberately not waited on: the dispatcher must not block on
	// supervisor startup, per the host's short invocation deadline.
	go func() { _ = cmd.Process.Release() }()
	return nil
}

func (c *SupervisorClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+path, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("supervisor %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DiagnosticsAll fetches raw (non-deduplicated) diagnostics across every
// known file in the project.
func (c *SupervisorClient) DiagnosticsAll(ctx context.Context) ([]diagnostic.Diagnostic, error) {
	var out struct {
		Diagnostics []diagnostic.Diagnostic `json:"diagnostics"`
	}
	if err := c.get(ctx, "/diagnostics/all", &out); err != nil {
		return nil, err
	}
	return out.Diagnostics, nil
}

// DiagnosticsFile fetches raw diagnostics scoped to one file.
func (c *SupervisorClient) DiagnosticsFile(ctx context.Context, file string) ([]diagnostic.Diagnostic, error) {
	var out struct {
		Diagnostics []diagnostic.Diagnostic `json:"diagnostics"`
	}
	path := "/diagnostics?file=" + url.QueryEscape(file)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Diagnostics, nil
}

// HealthInfo is the decoded response of GET /health.
type HealthInfo struct {
	Status    string `json:"status"`
	ProjectID string `json:"projectId"`
	Uptime    int64  `json:"uptimeSeconds"`
}

// Health fetches the supervisor's health response.
func (c *SupervisorClient) Health(ctx context.Context) (HealthInfo, error) {
	var out HealthInfo
	err := c.get(ctx, "/health", &out)
	return out, err
}

// Shutdown asks the supervisor to begin a graceful shutdown. Failure is
// tolerated: the supervisor may already be stopped.
func (c *SupervisorClient) Shutdown(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix/shutdown", http.NoBody)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}
