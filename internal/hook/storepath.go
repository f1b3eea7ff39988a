package hook

import (
	"os"
	"path/filepath"

	"github.com/claude-lsp/sidecar/internal/config"
)

// DedupStorePath resolves the per-project SQLite file location: an
// explicit override, or a cache-area directory keyed by the project's
// identity fingerprint.
func DedupStorePath(cfg config.Dedup, projectID string) (string, error) {
	if cfg.StoreDir != "" {
		return filepath.Join(cfg.StoreDir, projectID+".db"), nil
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cacheDir, "claude-lsp")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, projectID+".db"), nil
}
