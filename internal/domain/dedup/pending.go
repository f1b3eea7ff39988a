package dedup

import (
	"context"
	"time"
)

// Default pending-check lifetimes (§4.7): entries older than PendingExpire
// are expired without a report; entries older than PendingPurge are
// deleted outright.
const (
	DefaultPendingExpire = 5 * time.Minute
	DefaultPendingPurge  = time.Hour
	DefaultDrainBudget   = 500 * time.Millisecond
)

// PendingCheck mirrors the persisted pending-file-check row.
type PendingCheck struct {
	FilePath    string
	ProjectRoot string
	CreatedAt   time.Time
}

// PendingStore persists unreported file checks so results can be carried
// across hook invocations when a hook runs out of time before the
// responsible server is ready.
type PendingStore interface {
	MarkPending(ctx context.Context, filePath, projectRoot string) error
	OldestPending(ctx context.Context, preferredProject string) (PendingCheck, bool, error)
	MarkChecked(ctx context.Context, filePath string) error
	ExpireOlderThan(ctx context.Context, cutoff time.Time) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) error
}

// Maintain expires pending rows older than expireAfter and purges rows
// older than purgeAfter, relative to now. Called once per hook invocation
// before attempting to drain a pending check.
func Maintain(ctx context.Context, store PendingStore, now time.Time, expireAfter, purgeAfter time.Duration) error {
	if err := store.ExpireOlderThan(ctx, now.Add(-expireAfter)); err != nil {
		return err
	}
	return store.PurgeOlderThan(ctx, now.Add(-purgeAfter))
}

// DrainOne attempts to pop the oldest unreported pending check, preferring
// one belonging to preferredProject. Returns ok=false if none exist. The
// caller is responsible for marking it checked once handled (or leaving it
// for a later drain if the attempt itself times out before completion).
func DrainOne(ctx context.Context, store PendingStore, preferredProject string) (PendingCheck, bool, error) {
	return store.OldestPending(ctx, preferredProject)
}
