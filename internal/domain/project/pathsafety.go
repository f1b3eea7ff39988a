package project

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/claude-lsp/sidecar/internal/domain"
)

// ValidatePath resolves candidate against root, canonicalizes it, and
// returns the canonical absolute path if and only if it lies within root.
// candidate may be relative (resolved against root) or absolute. A file
// path crossing the system boundary from an untrusted source (request
// parameter, hook event field, discovery result) must pass through here
// before it is ever opened.
func ValidatePath(root, candidate string) (string, error) {
	if candidate == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrValidation)
	}

	target := candidate
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}

	canonicalRoot, err := Canonicalize(root)
	if err != nil {
		return "", fmt.Errorf("%w: invalid project root: %v", domain.ErrValidation, err)
	}

	canonicalTarget, err := canonicalizeLoose(target)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve path: %v", domain.ErrValidation, err)
	}

	rel, err := filepath.Rel(canonicalRoot, canonicalTarget)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPathEscape, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", domain.ErrPathEscape
	}

	return canonicalTarget, nil
}

// canonicalizeLoose canonicalizes a path that may not exist yet (e.g. a
// file about to be created) by resolving symlinks on the deepest existing
// ancestor and rejoining the remainder.
func canonicalizeLoose(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir := filepath.Dir(abs)
	if dir == abs {
		return abs, nil
	}
	base := filepath.Base(abs)
	resolvedDir, err := canonicalizeLoose(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
