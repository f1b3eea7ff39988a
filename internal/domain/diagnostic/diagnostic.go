// Package diagnostic defines the shared diagnostic shape produced by both
// the LSP and direct-invocation back ends, and its deduplication
// fingerprint.
package diagnostic

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// Severity levels, ordered most to least severe.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// Diagnostic is the external, 1-based representation of a single finding.
// File is an absolute path; Line and Column are 1-based. LSP children
// report 0-based positions, so adapters translating from LSP diagnostics
// must add one to both before constructing this type.
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Source   string   `json:"source"`
	RuleID   string   `json:"ruleId,omitempty"`
	TimedOut bool     `json:"timedOut,omitempty"`
}

// Fingerprint computes a stable hash over the fields that determine
// diagnostic identity for deduplication purposes: the diagnostic's
// position and message, but the file path relative to the project root
// rather than absolute, so identity is stable across project relocation.
func (d Diagnostic) Fingerprint(projectRoot string) string {
	rel := d.File
	if r, err := filepath.Rel(projectRoot, d.File); err == nil {
		rel = r
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00%s\x00%s\x00%s\x00%s",
		rel, d.Line, d.Column, d.Severity, d.Message, d.Source, d.RuleID)
	return hex.EncodeToString(h.Sum(nil))
}
