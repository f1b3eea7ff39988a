package project

import (
	"os"
	"path/filepath"
	"testing"
)

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverFindsNestedProjects(t *testing.T) {
	base := t.TempDir()

	goProj := filepath.Join(base, "services", "api")
	mustMkdirAll(t, goProj)
	mustWriteFile(t, filepath.Join(goProj, "go.mod"), "module api\n")

	pyProj := filepath.Join(base, "services", "worker")
	mustMkdirAll(t, pyProj)
	mustWriteFile(t, filepath.Join(pyProj, "requirements.txt"), "flask\n")

	roots, err := Discover(base)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d: %v", len(roots), roots)
	}
}

func TestDiscoverDoesNotDescendIntoProject(t *testing.T) {
	base := t.TempDir()

	goProj := filepath.Join(base, "app")
	mustMkdirAll(t, goProj)
	mustWriteFile(t, filepath.Join(goProj, "go.mod"), "module app\n")

	nested := filepath.Join(goProj, "vendor", "sub")
	mustMkdirAll(t, nested)
	mustWriteFile(t, filepath.Join(nested, "go.mod"), "module sub\n")

	roots, err := Discover(base)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("expected 1 root (no descent into classified project), got %d: %v", len(roots), roots)
	}
}

func TestDiscoverRespectsDepthCap(t *testing.T) {
	base := t.TempDir()

	deep := filepath.Join(base, "a", "b", "c", "d", "toodeep")
	mustMkdirAll(t, deep)
	mustWriteFile(t, filepath.Join(deep, "go.mod"), "module toodeep\n")

	roots, err := Discover(base)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(roots) != 0 {
		t.Fatalf("expected 0 roots beyond depth cap, got %v", roots)
	}
}

func TestDiscoverSkipsWellKnownDirs(t *testing.T) {
	base := t.TempDir()

	inGit := filepath.Join(base, ".git", "hooks")
	mustMkdirAll(t, inGit)
	mustWriteFile(t, filepath.Join(inGit, "go.mod"), "module x\n")

	roots, err := Discover(base)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(roots) != 0 {
		t.Fatalf("expected 0 roots inside skipped dir, got %v", roots)
	}
}
