package project

import (
	"os"
	"path/filepath"

	lspdomain "github.com/claude-lsp/sidecar/internal/domain/lsp"
)

// DetectLanguages enumerates marker files and extension-only triggers under
// root and returns the set of languages present, in registry order.
func DetectLanguages(root string) []lspdomain.Language {
	var found []lspdomain.Language
	extSeen := make(map[string]bool)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}

	for _, lang := range lspdomain.Registry {
		if lang.ExtensionOnly {
			continue
		}
		for _, marker := range lang.Markers {
			if names[marker] {
				found = append(found, lang)
				break
			}
		}
	}

	for _, lang := range lspdomain.Registry {
		if !lang.ExtensionOnly {
			continue
		}
		if hasExtension(root, lang.Extensions, extSeen) {
			found = append(found, lang)
		}
	}

	return found
}

// hasExtension walks the whole tree under root, pruning skip-list
// directories, and stops at the first file matching one of exts.
func hasExtension(root string, exts []string, cache map[string]bool) bool {
	key := root
	for _, e := range exts {
		key += e
	}
	if v, ok := cache[key]; ok {
		return v
	}

	found := false
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if d.Name() != filepath.Base(root) && isSkipped(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		for _, e := range exts {
			if ext == e {
				found = true
				return filepath.SkipAll
			}
		}
		return nil
	})

	cache[key] = found
	return found
}

// skipList names well-known non-source directories pruned from both
// language detection and project discovery.
var skipList = map[string]bool{
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

func isSkipped(name string) bool {
	return skipList[name]
}
