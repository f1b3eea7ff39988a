package lsp

import (
	"encoding/json"
	"io"
	"testing"
)

type pipeRWC struct {
	r io.Reader
	w io.Writer
}

func (p pipeRWC) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeRWC) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p pipeRWC) Close() error                { return nil }

func TestJSONRPCRoundTrip(t *testing.T) {
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	client := NewJSONRPCConn(pipeRWC{r: clientR, w: clientW})
	server := NewJSONRPCConn(pipeRWC{r: serverR, w: serverW})

	done := make(chan struct{})
	go func() {
		defer close(done)
		msg, err := server.ReadMessage()
		if err != nil {
			t.Errorf("server ReadMessage: %v", err)
			return
		}
		if msg.Method != "initialize" {
			t.Errorf("expected method initialize, got %q", msg.Method)
		}
		resp := JSONRPCMessage{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage(`{"capabilities":{}}`)}
		data, _ := json.Marshal(resp)
		_ = server.writeMessage(data)
	}()

	if err := client.Send(1, "initialize", map[string]any{"processId": 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	reply, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client ReadMessage: %v", err)
	}
	if reply.ID == nil || *reply.ID != 1 {
		t.Fatalf("expected reply ID 1, got %v", reply.ID)
	}

	<-done
}

func TestJSONRPCNotification(t *testing.T) {
	clientR, serverW := io.Pipe()
	_, clientW := io.Pipe()

	client := NewJSONRPCConn(pipeRWC{r: clientR, w: clientW})
	server := NewJSONRPCConn(pipeRWC{r: nil, w: serverW})

	done := make(chan struct{})
	go func() {
		defer close(done)
		msg, err := client.ReadMessage()
		if err != nil {
			t.Errorf("ReadMessage: %v", err)
			return
		}
		if msg.ID != nil {
			t.Error("expected notification to have nil ID")
		}
		if msg.Method != "textDocument/didOpen" {
			t.Errorf("expected didOpen, got %q", msg.Method)
		}
	}()

	if err := server.Notify("textDocument/didOpen", map[string]any{"uri": "file:///a.go"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	<-done
}
