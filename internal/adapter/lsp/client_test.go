package lsp

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	lspdomain "github.com/claude-lsp/sidecar/internal/domain/lsp"
)

// fakeServer speaks just enough LSP over a JSONRPCConn to drive Client
// through initialize/initialized and publish one diagnostics notification.
type fakeServer struct {
	conn *JSONRPCConn
}

func (s *fakeServer) serveOnce(t *testing.T, uri string, wireDiags []lspdomain.WireDiagnostic) {
	t.Helper()
	msg, err := s.conn.ReadMessage()
	if err != nil {
		t.Errorf("fakeServer read initialize: %v", err)
		return
	}
	if msg.Method != "initialize" {
		t.Errorf("expected initialize, got %q", msg.Method)
		return
	}
	resp := JSONRPCMessage{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage(`{}`)}
	data, _ := json.Marshal(resp)
	if err := s.conn.writeMessage(data); err != nil {
		t.Errorf("write initialize response: %v", err)
		return
	}

	msg, err = s.conn.ReadMessage()
	if err != nil {
		t.Errorf("fakeServer read initialized: %v", err)
		return
	}
	if msg.Method != "initialized" {
		t.Errorf("expected initialized, got %q", msg.Method)
		return
	}

	params, _ := json.Marshal(map[string]any{"uri": uri, "diagnostics": wireDiags})
	notif := JSONRPCMessage{JSONRPC: "2.0", Method: "textDocument/publishDiagnostics", Params: params}
	data, _ = json.Marshal(notif)
	if err := s.conn.writeMessage(data); err != nil {
		t.Errorf("write publishDiagnostics: %v", err)
	}
}

func newClientServerPipe(c *Client) *JSONRPCConn {
	clientSideR, serverSideW := io.Pipe()
	serverSideR, clientSideW := io.Pipe()
	c.conn = NewJSONRPCConn(pipeRWC{r: clientSideR, w: clientSideW})
	return NewJSONRPCConn(pipeRWC{r: serverSideR, w: serverSideW})
}

func TestClientOpenChangeCloseVersioning(t *testing.T) {
	c := NewClient(lspdomain.Language{Name: "go"}, config.LSP{MaxDiagnostics: 100}, t.TempDir())
	server := newClientServerPipe(c)
	c.done = make(chan struct{})

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		fs := &fakeServer{conn: server}
		fs.serveOnce(t, "file:///proj/main.go", []lspdomain.WireDiagnostic{
			{
				Range:    lspdomain.Range{Start: lspdomain.Position{Line: 4, Character: 2}},
				Severity: lspdomain.SeverityError,
				Source:   "go-vet",
				Message:  "bad thing",
			},
		})
	}()

	go c.readLoop()

	if err := c.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := c.OpenFile("file:///proj/main.go", "go", "package main"); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	c.docsMu.Lock()
	v := c.docs["file:///proj/main.go"].version
	c.docsMu.Unlock()
	if v != 1 {
		t.Fatalf("expected version 1 after open, got %d", v)
	}

	if err := c.ChangeFile("file:///proj/main.go", "package main\n"); err != nil {
		t.Fatalf("ChangeFile: %v", err)
	}
	c.docsMu.Lock()
	v = c.docs["file:///proj/main.go"].version
	c.docsMu.Unlock()
	if v != 2 {
		t.Fatalf("expected version 2 after change, got %d", v)
	}

	<-serverDone
	deadline := time.Now().Add(time.Second)
	for len(c.Diagnostics("file:///proj/main.go")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	diags := c.Diagnostics("file:///proj/main.go")
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Line != 5 || diags[0].Column != 3 {
		t.Errorf("expected 1-based line=5 col=3, got line=%d col=%d", diags[0].Line, diags[0].Column)
	}

	if err := c.CloseFile("file:///proj/main.go"); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	c.docsMu.Lock()
	_, stillOpen := c.docs["file:///proj/main.go"]
	c.docsMu.Unlock()
	if stillOpen {
		t.Error("expected document state removed after close")
	}
}

func TestClientScalaSuppressesEmptyClear(t *testing.T) {
	c := NewClient(lspdomain.Language{Name: "scala"}, config.LSP{}, t.TempDir())

	nonEmpty := []diagnostic.Diagnostic{{File: "/proj/A.scala", Line: 1, Column: 1, Message: "x"}}
	c.diagMu.Lock()
	c.diagnostics["file:///proj/A.scala"] = nonEmpty
	c.diagMu.Unlock()

	emptyParams, _ := json.Marshal(map[string]any{"uri": "file:///proj/A.scala", "diagnostics": []lspdomain.WireDiagnostic{}})
	c.handlePublishDiagnostics(emptyParams)

	got := c.Diagnostics("file:///proj/A.scala")
	if len(got) != 1 {
		t.Fatalf("expected empty publication to be suppressed, still had %d diagnostics", len(got))
	}
}

func TestClientNonScalaClearsOnEmpty(t *testing.T) {
	c := NewClient(lspdomain.Language{Name: "go"}, config.LSP{}, t.TempDir())

	nonEmpty := []diagnostic.Diagnostic{{File: "/proj/a.go", Line: 1, Column: 1, Message: "x"}}
	c.diagMu.Lock()
	c.diagnostics["file:///proj/a.go"] = nonEmpty
	c.diagMu.Unlock()

	emptyParams, _ := json.Marshal(map[string]any{"uri": "file:///proj/a.go", "diagnostics": []lspdomain.WireDiagnostic{}})
	c.handlePublishDiagnostics(emptyParams)

	got := c.Diagnostics("file:///proj/a.go")
	if len(got) != 0 {
		t.Fatalf("expected go diagnostics to clear on empty publication, got %d", len(got))
	}
}

func TestClientFirstShowMessageAction(t *testing.T) {
	c := NewClient(lspdomain.Language{Name: "scala"}, config.LSP{}, t.TempDir())
	raw, _ := json.Marshal(map[string]any{
		"actions": []map[string]any{{"title": "Import build"}, {"title": "Dismiss"}},
	})

	action := c.firstShowMessageAction(raw)
	m, ok := action.(map[string]any)
	if !ok || m["title"] != "Import build" {
		t.Fatalf("expected first action selected, got %v", action)
	}
}
