package project

import (
	"os"
	"path/filepath"
)

const (
	maxDiscoveryDepth = 3
	maxDiscoveredRoots = 16
)

// Discover finds nested project roots beneath base, at most maxDiscoveryDepth
// levels below it, stopping at maxDiscoveredRoots. Once a directory is
// classified as a project (it has at least one detected language), its
// subtree is not descended further.
func Discover(base string) ([]string, error) {
	canonicalBase, err := Canonicalize(base)
	if err != nil {
		return nil, err
	}

	var roots []string
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if len(roots) >= maxDiscoveredRoots {
			return nil
		}
		if len(DetectLanguages(dir)) > 0 {
			roots = append(roots, dir)
			return nil
		}
		if depth >= maxDiscoveryDepth {
			return nil
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			if len(roots) >= maxDiscoveredRoots {
				return nil
			}
			if !e.IsDir() || isSkipped(e.Name()) {
				continue
			}
			if err := walk(filepath.Join(dir, e.Name()), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(canonicalBase, 0); err != nil {
		return nil, err
	}
	return roots, nil
}
