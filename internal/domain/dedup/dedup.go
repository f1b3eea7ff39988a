// Package dedup implements diagnostic deduplication: computing the
// added/resolved/unchanged sets against a persisted fingerprint store and
// deciding whether a hook invocation should report anything at all.
package dedup

import (
	"context"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

// Store persists the set of fingerprints already delivered per project.
type Store interface {
	LoadDelivered(ctx context.Context, project string) (map[string]bool, error)
	CommitDelivered(ctx context.Context, project string, fingerprints map[string]string) error
}

// Diff is the result of comparing a fresh diagnostic list against the
// stored fingerprint set.
type Diff struct {
	Added      []diagnostic.Diagnostic
	Resolved   []string // fingerprints no longer present
	Unchanged  []diagnostic.Diagnostic
	NewSet     map[string]string // fingerprint -> severity, for CommitDelivered
	WasEmpty   bool              // true if the previously stored set was empty
	NowEmpty   bool              // true if the new set is empty
}

// Compute diffs a fresh diagnostic list against the project's stored
// fingerprint set.
func Compute(ctx context.Context, store Store, project string, fresh []diagnostic.Diagnostic) (Diff, error) {
	previous, err := store.LoadDelivered(ctx, project)
	if err != nil {
		return Diff{}, err
	}

	diff := Diff{
		NewSet:   make(map[string]string, len(fresh)),
		WasEmpty: len(previous) == 0,
		NowEmpty: len(fresh) == 0,
	}

	seen := make(map[string]bool, len(fresh))
	for _, d := range fresh {
		fp := d.Fingerprint(project)
		diff.NewSet[fp] = string(d.Severity)
		seen[fp] = true
		if previous[fp] {
			diff.Unchanged = append(diff.Unchanged, d)
		} else {
			diff.Added = append(diff.Added, d)
		}
	}

	for fp := range previous {
		if !seen[fp] {
			diff.Resolved = append(diff.Resolved, fp)
		}
	}

	return diff, nil
}

// ShouldReport implements the §4.7 reporting rule: report when anything
// was added or resolved, or to announce "all clear" exactly once when the
// previous state was non-empty and the new state is empty, or
// unconditionally in test mode.
func ShouldReport(diff Diff, testMode bool) bool {
	if testMode {
		return true
	}
	if len(diff.Added) > 0 || len(diff.Resolved) > 0 {
		return true
	}
	return !diff.WasEmpty && diff.NowEmpty
}

// Commit persists the new fingerprint set. Callers must only call this
// after diagnostics have actually been delivered to the caller — a
// diagnostic is "delivered" only once its fingerprint is committed.
func Commit(ctx context.Context, store Store, project string, diff Diff) error {
	return store.CommitDelivered(ctx, project, diff.NewSet)
}
