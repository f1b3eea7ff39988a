package hook

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// dedupWindow is how recently a lock file's mtime must fall for a new
// invocation with the same identity to be considered a duplicate.
const dedupWindow = 2 * time.Second

// Suppressed reports whether an invocation with this (eventKind,
// sessionID) pair already ran within the last dedupWindow, and refreshes
// the lock file's timestamp to mark this invocation as claimed if not.
// lockDir is typically the runtime directory.
func Suppressed(lockDir string, eventKind EventKind, sessionID string, now time.Time) bool {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s", eventKind, sessionID)))
	lockPath := filepath.Join(lockDir, "hook-"+hex.EncodeToString(sum[:8])+".lock")

	if info, err := os.Stat(lockPath); err == nil {
		if now.Sub(info.ModTime()) < dedupWindow {
			return true
		}
	}

	_ = os.MkdirAll(lockDir, 0o700)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // G304: path built from internal hash, not user input
	if err != nil {
		return false
	}
	_ = f.Close()
	return false
}
