package direct

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

var tsErrorRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\):\s*error\s+(TS\d+):\s*(.*)$`)

// checkTypeScript locates the nearest tsconfig.json upward from file,
// synthesizes a temporary project config that extends it and restricts
// `include` to the target file, and runs tsc in no-emit mode against it.
func checkTypeScript(ctx context.Context, _ config.Direct, projectRoot, file string) ([]diagnostic.Diagnostic, bool, error) {
	tsc := resolveTool(projectRoot, "node_modules/.bin/tsc", "tsc")
	if tsc == "" {
		return nil, false, fmt.Errorf("tsc not found")
	}

	tsconfig := findUpward(filepath.Dir(file), "tsconfig.json", projectRoot)

	var args []string
	var cleanup func()
	if tsconfig != "" {
		tempConfig, cleanupFn, err := writeTempConfig(tsconfig, file)
		if err != nil {
			return nil, false, err
		}
		cleanup = cleanupFn
		args = []string{"--noEmit", "--project", tempConfig}
	} else {
		// No tsconfig found: fall back to flags derived from defaults,
		// since there is nothing to extend.
		args = []string{"--noEmit", "--strict", file}
	}
	if cleanup != nil {
		defer cleanup()
	}

	out, timedOut, err := run(ctx, projectRoot, tsc, args...)
	if err != nil && !timedOut {
		return nil, false, err
	}

	var diags []diagnostic.Diagnostic
	for _, line := range strings.Split(out, "\n") {
		m := tsErrorRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		path := m[1]
		abs := path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(projectRoot, path)
		}
		if abs != file {
			continue // keep only diagnostics for the target file
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		diags = append(diags, diagnostic.Diagnostic{
			File:     file,
			Line:     lineNo,
			Column:   col,
			Severity: diagnostic.SeverityError,
			Message:  m[5],
			Source:   "tsc",
			RuleID:   m[4],
		})
	}

	return diags, timedOut, nil
}

// writeTempConfig synthesizes a temporary tsconfig that extends base and
// restricts `include` to target, returning its path and a cleanup func.
func writeTempConfig(base, target string) (string, func(), error) {
	dir := filepath.Dir(base)
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		rel = target
	}

	synthetic := map[string]any{
		"extends": "./" + filepath.Base(base),
		"include": []string{rel},
	}
	data, err := json.Marshal(synthetic)
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp(dir, "tsconfig.claude-lsp-*.json")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", nil, err
	}
	_ = f.Close()

	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

// findUpward walks from dir up to (and including) root looking for name.
func findUpward(dir, name, root string) string {
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if dir == root || dir == filepath.Dir(dir) {
			return ""
		}
		dir = filepath.Dir(dir)
	}
}

// resolveTool checks a project-local candidate before falling back to the
// global search path.
func resolveTool(root, localCandidate, globalName string) string {
	local := filepath.Join(root, localCandidate)
	if st, err := os.Stat(local); err == nil && !st.IsDir() {
		return local
	}
	if path, err := exec.LookPath(globalName); err == nil {
		return path
	}
	return ""
}
