// Package lsp drives a single language-server child process over JSON-RPC
// 2.0 on stdio, translating open/change/close calls into the LSP text
// synchronization protocol and collecting published diagnostics.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	lspdomain "github.com/claude-lsp/sidecar/internal/domain/lsp"
)

// documentState tracks the version counter for one open document.
type documentState struct {
	version int
}

// Client manages a single language-server child process for one language
// within one project. One task reads the child's stdout and dispatches
// notifications and inbound requests; write operations are serialized.
type Client struct {
	language  lspdomain.Language
	cfg       config.LSP
	workspace string

	cmd    *exec.Cmd
	conn   *JSONRPCConn
	status lspdomain.ServerStatus
	mu     sync.Mutex

	nextID  atomic.Int64
	pending map[int]chan *JSONRPCMessage
	pendMu  sync.Mutex

	docs   map[string]*documentState
	docsMu sync.Mutex

	diagnostics map[string][]diagnostic.Diagnostic // URI -> diagnostics
	diagMu      sync.RWMutex

	ready      chan struct{}
	readyOnce  sync.Once
	done       chan struct{}
}

// NewClient creates an LSP client for the given language and project
// workspace. The client is not started until Start is called.
func NewClient(language lspdomain.Language, cfg config.LSP, workspace string) *Client {
	return &Client{
		language:    language,
		cfg:         cfg,
		workspace:   workspace,
		status:      lspdomain.ServerStatusStopped,
		pending:     make(map[int]chan *JSONRPCMessage),
		docs:        make(map[string]*documentState),
		diagnostics: make(map[string][]diagnostic.Diagnostic),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Status returns the current server status.
func (c *Client) Status() lspdomain.ServerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PID returns the process ID of the language server, or 0 if not running.
func (c *Client) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}

// DiagnosticCount returns the total number of cached diagnostics.
func (c *Client) DiagnosticCount() int {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()
	count := 0
	for _, diags := range c.diagnostics {
		count += len(diags)
	}
	return count
}

// isScala reports whether this client is for Metals, which needs the
// empty-clear suppression and deferred-ready heuristic.
func (c *Client) isScala() bool {
	return c.language.Name == "scala"
}

// Start spawns the language-server child with the project root as working
// directory and performs the initialize/initialized handshake.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == lspdomain.ServerStatusReady || c.status == lspdomain.ServerStatusStarting {
		return nil
	}
	c.status = lspdomain.ServerStatusStarting

	if len(c.language.ServerCommand) == 0 {
		c.status = lspdomain.ServerStatusFailed
		return fmt.Errorf("no language server configured for %s", c.language.Name)
	}
	if _, err := exec.LookPath(c.language.ServerCommand[0]); err != nil {
		c.status = lspdomain.ServerStatusFailed
		return fmt.Errorf("language server binary not found: %s", c.language.ServerCommand[0])
	}

	startCtx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	defer cancel()

	cmd := exec.Command(c.language.ServerCommand[0], c.language.ServerCommand[1:]...) //nolint:gosec // command from static registry
	cmd.Dir = c.workspace
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.status = lspdomain.ServerStatusFailed
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.status = lspdomain.ServerStatusFailed
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		c.status = lspdomain.ServerStatusFailed
		return fmt.Errorf("start process: %w", err)
	}

	c.cmd = cmd
	c.conn = NewJSONRPCConn(stdioPipe{stdin: stdin, stdout: stdout})
	c.done = make(chan struct{})

	go c.readLoop()

	if err := c.initialize(startCtx); err != nil {
		c.status = lspdomain.ServerStatusFailed
		_ = cmd.Process.Kill()
		return fmt.Errorf("initialize: %w", err)
	}

	if !c.isScala() {
		c.readyOnce.Do(func() { close(c.ready) })
		c.status = lspdomain.ServerStatusReady
	} else {
		c.status = lspdomain.ServerStatusStarting
		go c.awaitMetalsReady()
	}

	slog.Info("lsp server started", "language", c.language.Name, "pid", cmd.Process.Pid, "workspace", c.workspace)
	return nil
}

// awaitMetalsReady waits for the indexing-complete log heuristic (observed
// in window/logMessage notifications by handleLogMessage, signaled through
// MarkReady) or a
// bounded timeout, whichever comes first. Open/update notifications are
// accepted before this resolves; callers should expect empty diagnostics
// until then.
func (c *Client) awaitMetalsReady() {
	timer := time.NewTimer(c.cfg.MetalsReadyWait)
	defer timer.Stop()
	select {
	case <-c.ready:
	case <-timer.C:
		c.readyOnce.Do(func() { close(c.ready) })
	case <-c.done:
		return
	}
	c.mu.Lock()
	if c.status == lspdomain.ServerStatusStarting {
		c.status = lspdomain.ServerStatusReady
	}
	c.mu.Unlock()
}

// MarkReady signals that an out-of-band log heuristic observed the
// server's indexing-complete message, short-circuiting awaitMetalsReady's
// timeout.
func (c *Client) MarkReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// Stop performs a graceful LSP shutdown (shutdown + exit) with timeout,
// then reaps the child.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == lspdomain.ServerStatusStopped {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer cancel()

	if c.conn != nil {
		if _, err := c.call(shutdownCtx, "shutdown", nil); err != nil {
			slog.Warn("lsp shutdown request failed", "language", c.language.Name, "error", err)
		}
		_ = c.conn.Notify("exit", nil)
		_ = c.conn.Close()
	}

	if c.cmd != nil && c.cmd.Process != nil {
		waitDone := make(chan error, 1)
		go func() { waitDone <- c.cmd.Wait() }()
		select {
		case <-waitDone:
		case <-shutdownCtx.Done():
			_ = c.cmd.Process.Kill()
		}
	}

	c.status = lspdomain.ServerStatusStopped
	c.conn = nil
	c.cmd = nil

	<-c.done
	slog.Info("lsp server stopped", "language", c.language.Name)
	return nil
}

// MarkDead records that the child exited unexpectedly. Status then reports
// ServerStatusDead, and LSPBackend.ensureClient starts a new session in
// place of this one on its next use.
func (c *Client) MarkDead() {
	c.mu.Lock()
	c.status = lspdomain.ServerStatusDead
	c.mu.Unlock()
}

// OpenFile sends textDocument/didOpen for uri, starting its version at 1.
func (c *Client) OpenFile(uri, languageID, content string) error {
	c.docsMu.Lock()
	c.docs[uri] = &documentState{version: 1}
	c.docsMu.Unlock()

	return c.conn.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       content,
		},
	})
}

// ChangeFile sends a full-content textDocument/didChange, incrementing the
// document's version. Returns an error if the document was never opened.
func (c *Client) ChangeFile(uri, content string) error {
	c.docsMu.Lock()
	doc, ok := c.docs[uri]
	if !ok {
		c.docsMu.Unlock()
		return fmt.Errorf("document not open: %s", uri)
	}
	doc.version++
	version := doc.version
	c.docsMu.Unlock()

	return c.conn.Notify("textDocument/didChange", map[string]any{
		"textDocument":   map[string]any{"uri": uri, "version": version},
		"contentChanges": []map[string]any{{"text": content}},
	})
}

// CloseFile sends textDocument/didClose and forgets the document's state.
func (c *Client) CloseFile(uri string) error {
	c.docsMu.Lock()
	delete(c.docs, uri)
	c.docsMu.Unlock()

	return c.conn.Notify("textDocument/didClose", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
}

// Diagnostics returns cached diagnostics for uri, or all diagnostics if uri is empty.
func (c *Client) Diagnostics(uri string) []diagnostic.Diagnostic {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()

	if uri != "" {
		return c.diagnostics[uri]
	}
	var all []diagnostic.Diagnostic
	for _, diags := range c.diagnostics {
		all = append(all, diags...)
	}
	return all
}

// Ready returns a channel closed once the session is ready to report
// diagnostics (immediately for most servers; after Metals' indexing
// heuristic or its bounded timeout for Scala).
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// --- initialize handshake and inbound request handling ---

func (c *Client) initialize(ctx context.Context) error {
	workspaceURI := "file://" + c.workspace
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   workspaceURI,
		"workspaceFolders": []map[string]string{
			{"uri": workspaceURI, "name": c.workspace},
		},
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"publishDiagnostics": map[string]any{
					"relatedInformation": true,
					"versionSupport":     true,
					"codeDescriptionSupport": true,
					"dataSupport":        true,
				},
			},
		},
	}
	if initOpts := c.initializationOptions(); initOpts != nil {
		params["initializationOptions"] = initOpts
	}

	if _, err := c.call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	return c.conn.Notify("initialized", map[string]any{})
}

// initializationOptions returns language-specific init options. Python via
// Pyright needs none up front; its interpreter path arrives via
// workspace/configuration, handled in handleRequest.
func (c *Client) initializationOptions() map[string]any {
	return nil
}

// call sends a JSON-RPC request and waits for the response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := int(c.nextID.Add(1))
	ch := make(chan *JSONRPCMessage, 1)

	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	if err := c.conn.Send(id, method, params); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	}
}

// readLoop dispatches responses to pending callers and handles server
// notifications and inbound server-to-client requests.
func (c *Client) readLoop() {
	defer close(c.done)

	for {
		msg, err := c.conn.ReadMessage()
		if err != nil {
			c.MarkDead()
			return
		}

		if msg.ID != nil && msg.Method == "" {
			c.pendMu.Lock()
			ch, ok := c.pending[*msg.ID]
			c.pendMu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		if msg.ID != nil && msg.Method != "" {
			c.handleServerRequest(msg)
			continue
		}

		switch msg.Method {
		case "textDocument/publishDiagnostics":
			c.handlePublishDiagnostics(msg.Params)
		case "window/logMessage":
			c.handleLogMessage(msg.Params)
		default:
			slog.Debug("lsp notification ignored", "method", msg.Method, "language", c.language.Name)
		}
	}
}

// handleServerRequest answers inbound requests a language server issues to
// its client. Pyright asks for workspace/configuration; build-tool servers
// ask window/showMessageRequest before importing a build, and
// client/registerCapability when they want dynamic registration.
func (c *Client) handleServerRequest(msg *JSONRPCMessage) {
	var result any
	switch msg.Method {
	case "workspace/configuration":
		result = c.workspaceConfiguration(msg.Params)
	case "window/showMessageRequest":
		result = c.firstShowMessageAction(msg.Params)
	case "client/registerCapability":
		result = map[string]any{}
	default:
		result = nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	resp := JSONRPCMessage{JSONRPC: "2.0", ID: msg.ID, Result: raw}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = c.conn.writeMessage(data)
}

// workspaceConfiguration answers Pyright's interpreter-path / analysis-mode
// query, pointing at an in-project virtual environment when one is found.
func (c *Client) workspaceConfiguration(raw json.RawMessage) []map[string]any {
	var req struct {
		Items []struct {
			Section string `json:"section"`
		} `json:"items"`
	}
	_ = json.Unmarshal(raw, &req)

	venv := detectVirtualenv(c.workspace)
	block := map[string]any{
		"python": map[string]any{
			"pythonPath":    venv,
			"analysis":      map[string]any{"autoSearchPaths": true, "diagnosticMode": "workspace"},
		},
	}

	out := make([]map[string]any, len(req.Items))
	for i := range req.Items {
		out[i] = block
	}
	return out
}

// firstShowMessageAction selects the first offered action to suppress
// interactive build-import prompts (e.g. Metals' "import build?").
func (c *Client) firstShowMessageAction(raw json.RawMessage) any {
	var req struct {
		Actions []map[string]any `json:"actions"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || len(req.Actions) == 0 {
		return nil
	}
	return req.Actions[0]
}

// handleLogMessage watches for Metals' indexing-complete announcement.
func (c *Client) handleLogMessage(raw json.RawMessage) {
	if !c.isScala() {
		return
	}
	var params struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}
	if strings.Contains(strings.ToLower(params.Message), "indexing complete") {
		c.MarkReady()
	}
}

// handlePublishDiagnostics translates a publishDiagnostics notification
// into 1-based domain diagnostics and stores it keyed by URI, applying the
// configured cap and Metals' empty-clear suppression.
func (c *Client) handlePublishDiagnostics(raw json.RawMessage) {
	var params struct {
		URI         string                      `json:"uri"`
		Diagnostics []lspdomain.WireDiagnostic `json:"diagnostics"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		slog.Warn("lsp: failed to unmarshal diagnostics", "error", err)
		return
	}

	translated := make([]diagnostic.Diagnostic, 0, len(params.Diagnostics))
	for _, d := range params.Diagnostics {
		translated = append(translated, diagnostic.Diagnostic{
			File:     uriToPath(params.URI),
			Line:     d.Range.Start.Line + 1,
			Column:   d.Range.Start.Character + 1,
			Severity: severityFromLSP(d.Severity),
			Message:  d.Message,
			Source:   d.Source,
			RuleID:   d.Code,
		})
	}

	if c.cfg.MaxDiagnostics > 0 && len(translated) > c.cfg.MaxDiagnostics {
		translated = translated[:c.cfg.MaxDiagnostics]
	}

	c.diagMu.Lock()
	if len(translated) == 0 && c.isScala() && len(c.diagnostics[params.URI]) > 0 {
		// Metals is observed to briefly clear results during recompile;
		// keep the last non-empty publication in that case.
	} else {
		c.diagnostics[params.URI] = translated
	}
	c.diagMu.Unlock()
}

func severityFromLSP(sev int) diagnostic.Severity {
	switch sev {
	case lspdomain.SeverityError:
		return diagnostic.SeverityError
	case lspdomain.SeverityWarning:
		return diagnostic.SeverityWarning
	case lspdomain.SeverityInfo:
		return diagnostic.SeverityInfo
	default:
		return diagnostic.SeverityHint
	}
}

func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// detectVirtualenv looks for a conventional in-project virtual-environment
// directory and returns its interpreter path, or "" if none is found.
func detectVirtualenv(workspace string) string {
	for _, dir := range []string{".venv", "venv"} {
		candidate := workspace + "/" + dir + "/bin/python"
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// stdioPipe combines a stdin (writer) and stdout (reader) into an io.ReadWriteCloser.
type stdioPipe struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p stdioPipe) Close() error {
	_ = p.stdin.Close()
	return p.stdout.Close()
}
