package direct

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

var goVetRe = regexp.MustCompile(`^(.+\.go):(\d+):(\d+):\s*(.*)$`)

// checkGo prefers module-aware `go vet ./...` when a go.mod exists above
// file, restricting the result to diagnostics against the target file;
// without a module it falls back to `go vet` on the file's directory.
func checkGo(ctx context.Context, _ config.Direct, projectRoot, file string) ([]diagnostic.Diagnostic, bool, error) {
	dir := filepath.Dir(file)
	target := "./..."
	if findUpward(dir, "go.mod", projectRoot) == "" {
		target = "."
		dir = filepath.Dir(file)
	}

	out, timedOut, err := run(ctx, dir, "go", "vet", target)
	if err != nil && !timedOut {
		return nil, false, err
	}

	var diags []diagnostic.Diagnostic
	for _, line := range strings.Split(out, "\n") {
		m := goVetRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		path := m[1]
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		targetAbs, _ := filepath.Abs(file)
		if abs != targetAbs {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		diags = append(diags, diagnostic.Diagnostic{
			File:     file,
			Line:     lineNo,
			Column:   col,
			Severity: diagnostic.SeverityError,
			Message:  m[4],
			Source:   "go vet",
		})
	}
	return diags, timedOut, nil
}
