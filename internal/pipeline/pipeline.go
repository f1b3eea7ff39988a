package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/claude-lsp/sidecar/internal/adapter/ignore"
	"github.com/claude-lsp/sidecar/internal/domain/project"
)

func relTo(root, path string) (string, error) {
	return filepath.Rel(root, path)
}

// Pipeline ties file discovery and a diagnostics Backend together for one
// project. It deliberately knows nothing about deduplication: the dedup
// store is opened and closed per-hook by the dispatcher, not held open
// here (see internal/hook).
type Pipeline struct {
	Root    string
	Backend Backend
	Matcher *ignore.Matcher
}

// CollectProject discovers every in-scope file under p.Root and runs the
// backend across them.
func (p *Pipeline) CollectProject(ctx context.Context) (Bundle, error) {
	langs := project.DetectLanguages(p.Root)
	files, err := DiscoverFiles(ctx, p.Root, langs, p.Matcher)
	if err != nil {
		return Bundle{}, fmt.Errorf("discover files: %w", err)
	}

	bundle, err := p.Backend.CheckProject(ctx, p.Root, files)
	if err != nil {
		return Bundle{}, fmt.Errorf("check project: %w", err)
	}
	bundle.Diagnostics = ignore.FilterIgnored(ctx, p.Matcher, p.Root, bundle.Diagnostics)
	return bundle, nil
}

// CollectFile restricts collection to a single file, still subject to the
// ignore predicate. The backend's result is filtered again before return:
// a direct checker for one file (e.g. Metals compiling a whole target) can
// surface diagnostics against sibling files the caller never asked about.
func (p *Pipeline) CollectFile(ctx context.Context, file string) (Bundle, error) {
	rel, err := relTo(p.Root, file)
	if err == nil && p.Matcher != nil && p.Matcher.Ignored(ctx, rel) {
		return Bundle{}, nil
	}

	bundle, err := p.Backend.CheckFile(ctx, p.Root, file)
	if err != nil {
		return Bundle{}, fmt.Errorf("check file: %w", err)
	}
	bundle.Diagnostics = ignore.FilterIgnored(ctx, p.Matcher, p.Root, bundle.Diagnostics)
	return bundle, nil
}
