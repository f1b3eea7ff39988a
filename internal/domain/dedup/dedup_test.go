package dedup

import (
	"context"
	"testing"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

type fakeStore struct {
	delivered map[string]bool
	committed map[string]string
}

func newFakeStore(delivered map[string]bool) *fakeStore {
	return &fakeStore{delivered: delivered}
}

func (f *fakeStore) LoadDelivered(_ context.Context, _ string) (map[string]bool, error) {
	return f.delivered, nil
}

func (f *fakeStore) CommitDelivered(_ context.Context, _ string, fingerprints map[string]string) error {
	f.committed = fingerprints
	return nil
}

func diag(msg string) diagnostic.Diagnostic {
	return diagnostic.Diagnostic{File: "/proj/a.go", Line: 1, Column: 1, Severity: diagnostic.SeverityError, Message: msg, Source: "go-vet"}
}

func TestComputeAddedAndUnchanged(t *testing.T) {
	d := diag("first")
	fp := d.Fingerprint("/proj")
	store := newFakeStore(map[string]bool{fp: true})

	fresh := []diagnostic.Diagnostic{d, diag("second")}
	diff, err := Compute(context.Background(), store, "/proj", fresh)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(diff.Unchanged) != 1 || len(diff.Added) != 1 {
		t.Fatalf("expected 1 unchanged + 1 added, got %+v", diff)
	}
}

func TestComputeResolved(t *testing.T) {
	stale := diag("stale")
	fp := stale.Fingerprint("/proj")
	store := newFakeStore(map[string]bool{fp: true})

	diff, err := Compute(context.Background(), store, "/proj", nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(diff.Resolved) != 1 || diff.Resolved[0] != fp {
		t.Fatalf("expected resolved=[%s], got %v", fp, diff.Resolved)
	}
	if !diff.NowEmpty || diff.WasEmpty {
		t.Fatalf("expected WasEmpty=false NowEmpty=true, got %+v", diff)
	}
}

func TestShouldReportAddedOrResolved(t *testing.T) {
	if !ShouldReport(Diff{Added: []diagnostic.Diagnostic{diag("x")}}, false) {
		t.Error("expected report on added")
	}
	if !ShouldReport(Diff{Resolved: []string{"fp"}}, false) {
		t.Error("expected report on resolved")
	}
}

func TestShouldReportAllClearOnce(t *testing.T) {
	if !ShouldReport(Diff{WasEmpty: false, NowEmpty: true}, false) {
		t.Error("expected one-time all-clear report")
	}
	if ShouldReport(Diff{WasEmpty: true, NowEmpty: true}, false) {
		t.Error("did not expect report when nothing ever existed")
	}
}

func TestShouldReportTestMode(t *testing.T) {
	if !ShouldReport(Diff{WasEmpty: true, NowEmpty: true}, true) {
		t.Error("expected unconditional report in test mode")
	}
}

func TestCommitPersistsNewSet(t *testing.T) {
	store := newFakeStore(nil)
	diff := Diff{NewSet: map[string]string{"fp1": "error"}}

	if err := Commit(context.Background(), store, "/proj", diff); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if store.committed["fp1"] != "error" {
		t.Fatalf("expected committed set to contain fp1, got %v", store.committed)
	}
}
