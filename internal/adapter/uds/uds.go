// Package uds owns the stream-socket lifecycle for one supervisor: the
// platform-appropriate runtime directory, the socket/pid/start-time file
// layout, stale-socket detection, and cleanup on exit.
package uds

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"
)

// Paths names the socket and its sidecar files for one project.
type Paths struct {
	Socket string
	PID    string
	Start  string
}

// RuntimeDir resolves the directory that holds every project's socket,
// pid, and start-time files. override (from config or CLAUDE_LSP_RUNTIME_DIR)
// wins; otherwise XDG_RUNTIME_DIR, then a macOS Application Support
// fallback, then a directory under the user's home.
func RuntimeDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if v := os.Getenv("CLAUDE_LSP_RUNTIME_DIR"); v != "" {
		return v, nil
	}
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "claude-lsp"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "claude-lsp"), nil
	}
	return filepath.Join(home, ".claude-lsp", "run"), nil
}

// ForProject returns the socket/pid/start-time paths for a project's
// identity fingerprint within dir.
func ForProject(dir, projectID string) Paths {
	return Paths{
		Socket: filepath.Join(dir, "claude-lsp-"+projectID+".sock"),
		PID:    filepath.Join(dir, "claude-lsp-"+projectID+".pid"),
		Start:  filepath.Join(dir, "claude-lsp-"+projectID+".start"),
	}
}

// Bind creates the runtime directory (owner-only mode), unlinks any stale
// socket file, and binds a unix domain socket listener at p.Socket. A
// socket is stale if no live listener answers a connection attempt; a
// live one causes Bind to return ErrAlreadyRunning instead of stealing it.
func Bind(p Paths) (net.Listener, error) {
	dir := filepath.Dir(p.Socket)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}

	if Probe(p.Socket, 200*time.Millisecond) {
		return nil, ErrAlreadyRunning
	}
	_ = os.Remove(p.Socket) // stale socket file, no listener behind it

	oldUmask := syscall.Umask(0o077)
	defer syscall.Umask(oldUmask)

	l, err := net.Listen("unix", p.Socket)
	if err != nil {
		return nil, fmt.Errorf("bind socket: %w", err)
	}
	return l, nil
}

// ErrAlreadyRunning indicates a live supervisor already holds the socket
// for this project.
var ErrAlreadyRunning = fmt.Errorf("supervisor already running for this project")

// Probe reports whether a live listener answers at sockPath within
// timeout, without assuming anything about the protocol spoken on it.
func Probe(sockPath string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("unix", sockPath, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// HealthOK performs an HTTP GET /health against the socket and reports
// whether it responded 200 within timeout.
func HealthOK(ctx context.Context, sockPath string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sockPath)
			},
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/health", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WriteSidecarFiles writes the pid and start-time files alongside the socket.
func WriteSidecarFiles(p Paths, startedAt time.Time) error {
	if err := os.WriteFile(p.PID, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := os.WriteFile(p.Start, []byte(startedAt.UTC().Format(time.RFC3339)), 0o600); err != nil {
		return fmt.Errorf("write start-time file: %w", err)
	}
	return nil
}

// Cleanup removes the socket, pid, and start-time files. Safe to call on
// files that no longer exist.
func Cleanup(p Paths) {
	_ = os.Remove(p.Socket)
	_ = os.Remove(p.PID)
	_ = os.Remove(p.Start)
}

// ReadStart reads the persisted start time, used to compute uptime for
// GET /health.
func ReadStart(p Paths) (time.Time, error) {
	data, err := os.ReadFile(p.Start) //nolint:gosec // G304: path constructed from project identity, not user input
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, string(data))
}
