// Package direct implements the direct-invocation diagnostic back end: an
// alternative to the LSP multiplexer that shells out to each language's
// own compiler or linter and parses its output into the shared Diagnostic
// shape.
package direct

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	lspdomain "github.com/claude-lsp/sidecar/internal/domain/lsp"
)

// Checker runs a language-specific diagnostic check against one file and
// returns the parsed results. Each checker returns timedOut=true rather
// than aborting the whole request when its soft timeout elapses.
type Checker func(ctx context.Context, cfg config.Direct, projectRoot, file string) (diags []diagnostic.Diagnostic, timedOut bool, err error)

// checkers maps language name to its specialized checker. Languages not
// present here fall back to runNative using their registry DirectCommand.
var checkers = map[string]Checker{
	"typescript": checkTypeScript,
	"javascript": checkTypeScript,
	"python":     checkPython,
	"go":         checkGo,
	"scala":      checkScala,
}

// Check runs the direct-invocation checker for file's language against
// project root. Returns (nil, false, nil) if the back end is disabled for
// this language.
func Check(ctx context.Context, cfg config.Direct, projectRoot, file string) ([]diagnostic.Diagnostic, bool, error) {
	if cfg.Disable {
		return nil, false, nil
	}

	lang, ok := lspdomain.ByExtension(filepath.Ext(file))
	if !ok {
		return nil, false, nil
	}
	if cfg.DisableByLanguage[lang.Name] {
		return nil, false, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if fn, ok := checkers[lang.Name]; ok {
		return fn(checkCtx, cfg, projectRoot, file)
	}
	return runNative(checkCtx, lang, projectRoot, file)
}

// runNative handles the "others" category (§4.6): Rust, Java, C/C++, PHP,
// Lua, Elixir, Terraform. Each runs its native tool in syntax-check mode
// and is parsed by a shared well-known-format parser.
func runNative(ctx context.Context, lang lspdomain.Language, projectRoot, file string) ([]diagnostic.Diagnostic, bool, error) {
	if len(lang.DirectCommand) == 0 {
		return nil, false, nil
	}

	args := append([]string{}, lang.DirectCommand[1:]...)
	args = append(args, file)
	out, timedOut, err := run(ctx, projectRoot, lang.DirectCommand[0], args...)
	if err != nil && !timedOut {
		return nil, false, err
	}

	return parseNative(lang.Name, file, out), timedOut, nil
}

// run executes name with args in dir, capturing combined output. It never
// returns an error purely because the tool exited non-zero (compilers do
// that on every reported error); err is only set for inability to run the
// command at all.
func run(ctx context.Context, dir, name string, args ...string) (output string, timedOut bool, err error) {
	if _, lookErr := exec.LookPath(name); lookErr != nil {
		return "", false, fmt.Errorf("%s: %w", name, lookErr)
	}

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // args built from static registry plus validated file path
	cmd.Dir = dir
	out, _ := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return string(out), true, nil
	}
	return string(out), false, nil
}

// runWithEnv behaves like run but replaces the child's environment,
// for checkers (Python) that need to extend PYTHONPATH.
func runWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) (output string, timedOut bool, err error) {
	if _, lookErr := exec.LookPath(name); lookErr != nil {
		return "", false, fmt.Errorf("%s: %w", name, lookErr)
	}

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // args built from static registry plus validated file path
	cmd.Dir = dir
	cmd.Env = env
	out, _ := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return string(out), true, nil
	}
	return string(out), false, nil
}

var nativeLineRe = regexp.MustCompile(`^(?:.*?):(\d+):(\d+)?:?\s*(?:(error|warning)[:\s]+)?(.*)$`)

// parseNative applies a permissive "path:line:col: message" parser shared
// by compilers that don't need a specialized strategy.
func parseNative(source, file, output string) []diagnostic.Diagnostic {
	var out []diagnostic.Diagnostic
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		m := nativeLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[1])
		col := 1
		if m[2] != "" {
			col, _ = strconv.Atoi(m[2])
		}
		sev := diagnostic.SeverityError
		if strings.EqualFold(m[3], "warning") {
			sev = diagnostic.SeverityWarning
		}
		out = append(out, diagnostic.Diagnostic{
			File:     file,
			Line:     lineNo,
			Column:   col,
			Severity: sev,
			Message:  strings.TrimSpace(m[4]),
			Source:   source,
		})
	}
	return out
}

// userGlobalConfigPath returns the path of the per-user JSON file for
// per-language `disable<Name>` overrides. Check does not read this file;
// its disable switches come only from config.Direct.
func userGlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "claude-lsp", "direct.json")
}
