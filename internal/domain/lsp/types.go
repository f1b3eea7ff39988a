// Package lsp defines domain types for Language Server Protocol integration
// and the static language registry consulted by project detection, the LSP
// multiplexer, and the direct-invocation back end.
package lsp

// Position in a text document (0-based line and character), matching the
// wire representation. Adapters add one to both fields when constructing a
// 1-based diagnostic.Diagnostic.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// DiagnosticSeverity mirrors LSP DiagnosticSeverity.
const (
	SeverityError   = 1
	SeverityWarning = 2
	SeverityInfo    = 3
	SeverityHint    = 4
)

// WireDiagnostic is the diagnostic shape as published by a language server
// over textDocument/publishDiagnostics, before translation to the
// domain-level diagnostic.Diagnostic.
type WireDiagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Source   string `json:"source"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

// ServerStatus represents the lifecycle state of a language server session.
type ServerStatus string

const (
	ServerStatusStopped  ServerStatus = "stopped"
	ServerStatusStarting ServerStatus = "starting"
	ServerStatusReady    ServerStatus = "ready"
	ServerStatusFailed   ServerStatus = "failed"
	ServerStatusDead     ServerStatus = "dead"
)

// ServerInfo describes a running language server instance, surfaced by the
// GET /languages endpoint and the `status` CLI subcommand.
type ServerInfo struct {
	Language    string       `json:"language"`
	Status      ServerStatus `json:"status"`
	Command     string       `json:"command"`
	PID         int          `json:"pid,omitempty"`
	Error       string       `json:"error,omitempty"`
	Diagnostics int          `json:"diagnostics"`
}
