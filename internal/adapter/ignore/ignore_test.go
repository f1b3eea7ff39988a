package ignore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

func TestMatcherBuiltIns(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, []string{"node_modules/**", "*.log"}, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !m.Ignored(context.Background(), "node_modules/foo/index.js") {
		t.Error("expected node_modules path to be ignored")
	}
	if !m.Ignored(context.Background(), "debug.log") {
		t.Error("expected *.log to be ignored")
	}
	if m.Ignored(context.Background(), "main.go") {
		t.Error("did not expect main.go to be ignored")
	}
}

func TestMatcherProjectFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("*.generated.go\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := New(dir, nil, DefaultFileName, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !m.Ignored(context.Background(), "models.generated.go") {
		t.Error("expected generated file to be ignored per project file")
	}
}

func TestMatcherNoProjectFile(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, nil, DefaultFileName, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Ignored(context.Background(), "main.go") {
		t.Error("did not expect match with no project file")
	}
}

func TestMatcherReload(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, nil, DefaultFileName, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Ignored(context.Background(), "main.go") {
		t.Fatal("unexpected ignore before file exists")
	}

	if err := os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("main.go\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(DefaultFileName); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if !m.Ignored(context.Background(), "main.go") {
		t.Error("expected main.go to be ignored after reload")
	}
}

func TestFilterIgnoredDropsMatchedPaths(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, []string{"vendor/**"}, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	diags := []diagnostic.Diagnostic{
		{File: filepath.Join(dir, "vendor", "pkg", "file.go"), Message: "should be dropped"},
		{File: filepath.Join(dir, "main.go"), Message: "should survive"},
	}

	got := FilterIgnored(context.Background(), m, dir, diags)
	if len(got) != 1 || got[0].Message != "should survive" {
		t.Fatalf("expected only the non-ignored diagnostic to survive, got %+v", got)
	}
}

func TestFilterIgnoredNilMatcherIsNoop(t *testing.T) {
	diags := []diagnostic.Diagnostic{{File: "/anything", Message: "kept"}}
	got := FilterIgnored(context.Background(), nil, "/", diags)
	if len(got) != 1 {
		t.Fatalf("expected nil matcher to pass diagnostics through unchanged, got %+v", got)
	}
}
