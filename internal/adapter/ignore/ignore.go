// Package ignore implements the gitignore-style exclusion predicate
// consulted before every file discovery and every diagnostic delivery.
package ignore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	"github.com/claude-lsp/sidecar/internal/port/cache"
)

// DefaultFileName is the gitignore-style file consulted at the project
// root, in addition to the built-in ignore list, when the configuration
// names no ignore file (config.Defaults names ".gitignore").
const DefaultFileName = ".claudeignore"

var matchTTL = 10 * time.Minute

// Matcher answers "is this relative path ignored?" by unioning a loaded
// gitignore-style file with a fixed built-in list. Match results are
// memoized in a bounded cache to avoid re-evaluating patterns against the
// same path repeatedly during a large project scan.
type Matcher struct {
	root      string
	builtins  *gitignore.GitIgnore
	project   *gitignore.GitIgnore // nil if no ignore file present
	predicate cache.Cache
}

// New builds a Matcher for root. builtIns are glob patterns (gitignore
// syntax) applied unconditionally; fileName is the project-local ignore
// file to additionally load, if present (empty string disables it).
func New(root string, builtIns []string, fileName string, predicate cache.Cache) (*Matcher, error) {
	builtins := gitignore.CompileIgnoreLines(builtIns...)

	m := &Matcher{root: root, builtins: builtins, predicate: predicate}

	if fileName == "" {
		return m, nil
	}
	path := filepath.Join(root, fileName)
	if _, err := os.Stat(path); err == nil {
		proj, err := gitignore.CompileIgnoreFile(path)
		if err != nil {
			return nil, err
		}
		m.project = proj
	}
	return m, nil
}

// Reload re-reads the project-local ignore file, for use by the file
// watcher when it changes on disk. Results already memoized in the
// predicate cache are not cleared; a path checked before the reload keeps
// its earlier answer until its cache entry expires (matchTTL).
func (m *Matcher) Reload(fileName string) error {
	if fileName == "" {
		m.project = nil
		return nil
	}
	path := filepath.Join(m.root, fileName)
	if _, err := os.Stat(path); err != nil {
		m.project = nil
		return nil
	}
	proj, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return err
	}
	m.project = proj
	return nil
}

// FilterIgnored returns diags with every diagnostic under an ignored path
// removed. root is the project root diagnostic.File paths are made
// relative to before matching. This is the delivery-time counterpart to
// the discovery-time filtering DiscoverFiles applies: an LSP server can
// publish diagnostics for files it opened on its own (a project-wide
// tsserver/gopls/rust-analyzer session is not limited to files this
// process explicitly requested), so the predicate must be re-applied
// here rather than trusted to have already run once.
func FilterIgnored(ctx context.Context, matcher *Matcher, root string, diags []diagnostic.Diagnostic) []diagnostic.Diagnostic {
	if matcher == nil {
		return diags
	}
	out := make([]diagnostic.Diagnostic, 0, len(diags))
	for _, d := range diags {
		rel, err := filepath.Rel(root, d.File)
		if err != nil {
			out = append(out, d)
			continue
		}
		if matcher.Ignored(ctx, rel) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Ignored reports whether relPath (relative to the project root) is
// ignored by either the built-in list or the project's ignore file.
func (m *Matcher) Ignored(ctx context.Context, relPath string) bool {
	relPath = filepath.ToSlash(relPath)

	if m.predicate != nil {
		if cached, ok, _ := m.predicate.Get(ctx, relPath); ok {
			return len(cached) == 1 && cached[0] == 1
		}
	}

	ignored := m.builtins.MatchesPath(relPath) || (m.project != nil && m.project.MatchesPath(relPath))

	if m.predicate != nil {
		val := []byte{0}
		if ignored {
			val = []byte{1}
		}
		_ = m.predicate.Set(ctx, relPath, val, matchTTL)
	}

	return ignored
}
