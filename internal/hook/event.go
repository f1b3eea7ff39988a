// Package hook implements the dispatcher the host invokes directly: it
// reads one JSON event from standard input, talks to the per-project
// supervisor (spawning it if absent), deduplicates against the persisted
// fingerprint store, and emits at most one system-message line.
package hook

import (
	"encoding/json"
	"io"
)

// EventKind classifies a hook invocation.
type EventKind string

const (
	EventToolUseCompletion EventKind = "tool-use-completion"
	EventSessionStart      EventKind = "session-start"
	EventStop              EventKind = "stop"
	EventOther             EventKind = "other"
)

// fileSpecificTools names tool invocations that target a single file; the
// dispatcher treats these as candidates for a pending-check rather than an
// immediate full report.
var fileSpecificTools = map[string]bool{
	"Edit":         true,
	"Write":        true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// rawEvent mirrors the host's JSON payload, accepting both naming
// conventions the two source implementations used.
type rawEvent struct {
	SessionID       string `json:"session_id"`
	SessionIDCamel  string `json:"sessionId"`
	Cwd             string `json:"cwd"`
	WorkingDirCamel string `json:"workingDirectory"`
	ToolName        string `json:"toolName"`
	Input           struct {
		FilePath  string `json:"file_path"`
		InputPath string `json:"input_path"`
		Path      string `json:"path"`
	} `json:"input"`
}

// Event is the dispatcher's normalized view of one stdin payload.
type Event struct {
	SessionID  string
	WorkingDir string
	ToolName   string
	FilePath   string
}

// IsFileSpecific reports whether ToolName targets a single file, making
// the event eligible for pending-check handling.
func (e Event) IsFileSpecific() bool {
	return e.FilePath != "" && fileSpecificTools[e.ToolName]
}

// ParseEvent decodes one JSON object from r. An empty or malformed body is
// not an error — the caller treats it as a no-op event, per the host
// contract that an unparsable hook payload must never fail loudly.
func ParseEvent(r io.Reader) (Event, bool) {
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return Event{}, false
	}

	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, false
	}

	e := Event{
		SessionID:  firstNonEmpty(raw.SessionID, raw.SessionIDCamel),
		WorkingDir: firstNonEmpty(raw.Cwd, raw.WorkingDirCamel),
		ToolName:   raw.ToolName,
		FilePath:   firstNonEmpty(raw.Input.FilePath, raw.Input.InputPath, raw.Input.Path),
	}
	return e, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
