package direct

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

var scalacErrorRe = regexp.MustCompile(`^(.+\.scala):(\d+):\s*(error|warning):\s*(.*)$`)

// knownMultiModuleFalsePositives filters messages scalac emits for symbols
// that only resolve once sibling modules are on the classpath, which a
// best-effort single-file compile cannot see.
var knownMultiModuleFalsePositives = []string{
	"object sbt is not a member of package",
	"not found: type Build",
	"cannot be unambiguously embedded",
}

// checkScala uses a configured build tool (sbt) for a full-project
// compile when available; otherwise it assembles a best-effort classpath
// from conventional build output directories and compiles the target file
// together with its directory siblings, filtering known multi-module false
// positives while keeping real syntax errors.
func checkScala(ctx context.Context, _ config.Direct, projectRoot, file string) ([]diagnostic.Diagnostic, bool, error) {
	if _, err := os.Stat(filepath.Join(projectRoot, "build.sbt")); err == nil {
		if sbt, lookErr := lookPathAny("sbt"); lookErr == "" {
			out, timedOut, err := run(ctx, projectRoot, sbt, "compile")
			if err != nil && !timedOut {
				return nil, false, err
			}
			return filterScala(file, parseScalac(file, out)), timedOut, nil
		}
	}

	scalac, lookErr := lookPathAny("scalac")
	if lookErr != "" {
		return nil, false, nil
	}

	classpath := assembleScalaClasspath(projectRoot)
	args := []string{}
	if classpath != "" {
		args = append(args, "-classpath", classpath)
	}
	args = append(args, siblingScalaFiles(file)...)

	out, timedOut, err := run(ctx, projectRoot, scalac, args...)
	if err != nil && !timedOut {
		return nil, false, err
	}
	return filterScala(file, parseScalac(file, out)), timedOut, nil
}

func parseScalac(file, out string) []diagnostic.Diagnostic {
	var diags []diagnostic.Diagnostic
	for _, line := range strings.Split(out, "\n") {
		m := scalacErrorRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		path := m[1]
		if !filepath.IsAbs(path) {
			continue
		}
		if filepath.Base(path) != filepath.Base(file) {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		sev := diagnostic.SeverityError
		if m[3] == "warning" {
			sev = diagnostic.SeverityWarning
		}
		diags = append(diags, diagnostic.Diagnostic{
			File:     file,
			Line:     lineNo,
			Column:   1,
			Severity: sev,
			Message:  m[4],
			Source:   "scalac",
		})
	}
	return diags
}

func filterScala(file string, diags []diagnostic.Diagnostic) []diagnostic.Diagnostic {
	var kept []diagnostic.Diagnostic
	for _, d := range diags {
		falsePositive := false
		for _, known := range knownMultiModuleFalsePositives {
			if strings.Contains(d.Message, known) {
				falsePositive = true
				break
			}
		}
		if !falsePositive {
			kept = append(kept, d)
		}
	}
	return kept
}

// assembleScalaClasspath joins conventional build output directories if
// present, for a best-effort compile without a configured build tool.
func assembleScalaClasspath(projectRoot string) string {
	var entries []string
	for _, candidate := range []string{
		"target/scala-2.13/classes",
		"target/scala-3/classes",
		"target/classes",
	} {
		path := filepath.Join(projectRoot, candidate)
		if st, err := os.Stat(path); err == nil && st.IsDir() {
			entries = append(entries, path)
		}
	}
	return strings.Join(entries, string(os.PathListSeparator))
}

// siblingScalaFiles returns file together with the other .scala files in
// its directory, since scalac needs related definitions in scope for a
// best-effort single-file compile.
func siblingScalaFiles(file string) []string {
	dir := filepath.Dir(file)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{file}
	}
	files := []string{file}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".scala" {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if full != file {
			files = append(files, full)
		}
	}
	return files
}

// lookPathAny resolves name on the global search path, returning ("", "not
// found") rather than an error value the caller must unwrap, matching this
// package's "not found is a value" convention for tool resolution.
func lookPathAny(name string) (string, string) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", "not found"
	}
	return path, ""
}
