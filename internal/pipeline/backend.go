// Package pipeline discovers a project's files, drives either the LSP
// multiplexer or the direct-invocation back end over them, and returns a
// deduplicated diagnostics bundle for a project-wide or single-file scope.
package pipeline

import (
	"context"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

// Scope names how wide a diagnostics collection pass should reach.
// Pipeline exposes the two widths as CollectProject and CollectFile; no
// function in this package takes a Scope argument.
type Scope int

const (
	// ScopeProject collects diagnostics across every discovered,
	// non-ignored file in the project.
	ScopeProject Scope = iota
	// ScopeFile restricts collection to a single file.
	ScopeFile
)

func (s Scope) String() string {
	if s == ScopeFile {
		return "file"
	}
	return "project"
}

// Bundle is the result of one collection pass.
type Bundle struct {
	Diagnostics []diagnostic.Diagnostic
	// TimedOut lists the files or checkers that hit their soft timeout
	// without necessarily invalidating the rest of the bundle.
	TimedOut []string
}

// Backend abstracts over the LSP multiplexer and the direct-invocation
// back end so the rest of the pipeline does not need to know which one
// is collecting diagnostics for a given project.
type Backend interface {
	// CheckProject collects diagnostics across every file the backend
	// considers relevant under root.
	CheckProject(ctx context.Context, root string, files []string) (Bundle, error)
	// CheckFile collects diagnostics for a single file.
	CheckFile(ctx context.Context, root, file string) (Bundle, error)
	// Close releases any resources (child processes, caches) held by the
	// backend. Safe to call more than once.
	Close(ctx context.Context) error
}
