package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/claude-lsp/sidecar/internal/adapter/ignore"
	lspdomain "github.com/claude-lsp/sidecar/internal/domain/lsp"
)

// DiscoverFiles walks root and returns every file whose extension belongs
// to one of langs, skipping well-known non-source directories and
// anything matched by matcher (the project's configured ignore file plus
// the built-in ignore list). Paths are returned absolute.
func DiscoverFiles(ctx context.Context, root string, langs []lspdomain.Language, matcher *ignore.Matcher) ([]string, error) {
	exts := make(map[string]bool)
	for _, l := range langs {
		for _, e := range l.Extensions {
			exts[e] = true
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort walk, skip unreadable entries
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if isBuiltinSkipped(d.Name()) {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.Ignored(ctx, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !exts[filepath.Ext(path)] {
			return nil
		}
		if matcher != nil && matcher.Ignored(ctx, rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

var builtinSkip = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".terraform":   true,
	".idea":        true,
	".vscode":      true,
}

func isBuiltinSkipped(name string) bool {
	return builtinSkip[name]
}
