// Package project provides project identity, path safety, language
// registry, and discovery for the diagnostics sidecar.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Fingerprint returns the 16-hex-character identity for a project root. It
// is stable across trailing slashes and symlinks because the caller is
// expected to pass an already-canonicalized path (see Canonicalize).
func Fingerprint(canonicalRoot string) string {
	sum := sha256.Sum256([]byte(canonicalRoot))
	return hex.EncodeToString(sum[:])[:16]
}

// Canonicalize resolves root to an absolute, symlink-free, clean path.
// Two roots that differ only in trailing slash or symlinks canonicalize
// identically.
func Canonicalize(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return filepath.Clean(resolved), nil
}

// Root is a canonicalized project root together with its derived identity.
type Root struct {
	Path string
	ID   string
}

// NewRoot canonicalizes path and computes its identity fingerprint.
func NewRoot(path string) (Root, error) {
	canonical, err := Canonicalize(path)
	if err != nil {
		return Root{}, err
	}
	return Root{Path: canonical, ID: Fingerprint(canonical)}, nil
}
