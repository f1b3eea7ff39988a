package project

import (
	"os/exec"
	"path/filepath"

	lspdomain "github.com/claude-lsp/sidecar/internal/domain/lsp"
)

// Installed reports whether lang's language server (or, absent one, its
// direct-invocation tool) can be resolved: on the global search path, or
// at one of its local candidate paths relative to root.
func Installed(lang lspdomain.Language, root string) bool {
	var cmd string
	switch {
	case len(lang.ServerCommand) > 0:
		cmd = lang.ServerCommand[0]
	case len(lang.DirectCommand) > 0:
		cmd = lang.DirectCommand[0]
	default:
		return false
	}

	if lang.ServerOnGlobalPath || len(lang.ServerCommand) == 0 {
		if _, err := exec.LookPath(cmd); err == nil {
			return true
		}
	}

	for _, candidate := range lang.LocalCandidates {
		if _, err := exec.LookPath(filepath.Join(root, candidate)); err == nil {
			return true
		}
	}

	return false
}
