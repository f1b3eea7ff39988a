package direct

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

type pyrightJSON struct {
	GeneralDiagnostics []struct {
		File     string `json:"file"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
		Range    struct {
			Start struct {
				Line      int `json:"line"`
				Character int `json:"character"`
			} `json:"start"`
		} `json:"range"`
		Rule string `json:"rule"`
	} `json:"generalDiagnostics"`
}

// checkPython prefers a JSON-output type checker (pyright), falling back
// to a column-aware linter (flake8) when pyright is unavailable. PYTHONPATH
// is extended with the project root and conventional source directories so
// local package imports resolve.
func checkPython(ctx context.Context, _ config.Direct, projectRoot, file string) ([]diagnostic.Diagnostic, bool, error) {
	env := extendPythonPath(projectRoot)

	if path, err := exec.LookPath("pyright"); err == nil {
		out, timedOut, err := runWithEnv(ctx, projectRoot, env, path, "--outputjson", file)
		if err == nil || timedOut {
			return parsePyright(file, out, hasUnresolvedImportAllowance(projectRoot)), timedOut, nil
		}
	}

	if path, err := exec.LookPath("flake8"); err == nil {
		out, timedOut, err := runWithEnv(ctx, projectRoot, env, path, "--format=%(row)d:%(col)d:%(code)s:%(text)s", file)
		if err != nil && !timedOut {
			return nil, false, err
		}
		return parseFlake8(file, out), timedOut, nil
	}

	return nil, false, nil
}

func parsePyright(file, out string, allowUnresolvedImport bool) []diagnostic.Diagnostic {
	var report pyrightJSON
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		return nil
	}

	var diags []diagnostic.Diagnostic
	for _, d := range report.GeneralDiagnostics {
		if d.File != file {
			continue
		}
		if !allowUnresolvedImport && strings.Contains(d.Message, "could not be resolved") {
			continue
		}
		sev := diagnostic.SeverityError
		switch d.Severity {
		case "warning":
			sev = diagnostic.SeverityWarning
		case "information":
			sev = diagnostic.SeverityInfo
		}
		diags = append(diags, diagnostic.Diagnostic{
			File:     file,
			Line:     d.Range.Start.Line + 1,
			Column:   d.Range.Start.Character + 1,
			Severity: sev,
			Message:  d.Message,
			Source:   "pyright",
			RuleID:   d.Rule,
		})
	}
	return diags
}

func parseFlake8(file, out string) []diagnostic.Diagnostic {
	var diags []diagnostic.Diagnostic
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 4)
		if len(parts) != 4 {
			continue
		}
		diags = append(diags, diagnostic.Diagnostic{
			File:     file,
			Line:     atoiOr(parts[0], 1),
			Column:   atoiOr(parts[1], 1),
			Severity: diagnostic.SeverityWarning,
			Message:  strings.TrimSpace(parts[3]),
			Source:   "flake8",
			RuleID:   parts[2],
		})
	}
	return diags
}

// extendPythonPath prepends the project root and conventional source
// directories ("src", "lib") to PYTHONPATH.
func extendPythonPath(projectRoot string) []string {
	existing := os.Getenv("PYTHONPATH")
	extra := []string{projectRoot, filepath.Join(projectRoot, "src"), filepath.Join(projectRoot, "lib")}
	joined := strings.Join(extra, string(os.PathListSeparator))
	if existing != "" {
		joined = joined + string(os.PathListSeparator) + existing
	}
	return append(os.Environ(), "PYTHONPATH="+joined)
}

// hasUnresolvedImportAllowance reports whether a requirements.txt or
// Pipfile exists at the project root. When one does, every "could not be
// resolved" import diagnostic is kept; when neither does, all of them are
// filtered as local-import false positives. The files' contents are not
// read, so the decision is not made per package, and there is no setting
// that changes it.
func hasUnresolvedImportAllowance(projectRoot string) bool {
	for _, name := range []string{"requirements.txt", "Pipfile"} {
		if _, err := os.Stat(filepath.Join(projectRoot, name)); err == nil {
			return true
		}
	}
	return false
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}
