package hook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/claude-lsp/sidecar/internal/adapter/ignore"
	"github.com/claude-lsp/sidecar/internal/adapter/sqlitestore"
	"github.com/claude-lsp/sidecar/internal/adapter/uds"
	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/dedup"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	"github.com/claude-lsp/sidecar/internal/domain/project"
)

// Dispatcher is the hook subcommand's entry point: one Handle call per
// process invocation.
type Dispatcher struct {
	Config config.Config
	Logger *slog.Logger
}

// seenMarker returns the path of the file used to detect whether a
// session-start event has already fired once for this project.
func (d *Dispatcher) seenMarker(runtimeDir, projectID string) string {
	return filepath.Join(runtimeDir, "seen-"+projectID)
}

// Handle runs one hook invocation and returns the process exit code.
func (d *Dispatcher) Handle(ctx context.Context, kind EventKind, stdin io.Reader, stderr io.Writer) int {
	event, ok := ParseEvent(stdin)
	if !ok {
		return 0
	}

	runtimeDir, err := uds.RuntimeDir(d.Config.Server.RuntimeDir)
	if err != nil {
		d.Logger.Error("resolve runtime dir", "error", err)
		return 0
	}

	if Suppressed(runtimeDir, kind, event.SessionID, time.Now()) {
		return 0
	}

	switch kind {
	case EventStop:
		d.handleStop(ctx, event, runtimeDir)
		return 0
	case EventSessionStart:
		return d.handleSessionStart(ctx, event, runtimeDir, stderr)
	case EventToolUseCompletion:
		return d.handleToolUse(ctx, event, runtimeDir, stderr)
	default:
		return 0
	}
}

// resolveRoot picks the project root for an event: the working directory
// when it is set and the event's file (if any) lies inside it; otherwise
// the directory of an absolute file path; otherwise the working directory.
func (d *Dispatcher) resolveRoot(event Event) (project.Root, bool) {
	base := event.WorkingDir
	if event.FilePath != "" {
		if filepath.IsAbs(event.FilePath) {
			base = filepath.Dir(event.FilePath)
		}
		if event.WorkingDir != "" {
			if _, err := project.ValidatePath(event.WorkingDir, event.FilePath); err == nil {
				base = event.WorkingDir
			}
		}
	}
	if base == "" {
		return project.Root{}, false
	}
	root, err := project.NewRoot(base)
	if err != nil {
		return project.Root{}, false
	}
	return root, true
}

func (d *Dispatcher) socketPaths(runtimeDir string, root project.Root) uds.Paths {
	return uds.ForProject(runtimeDir, root.ID)
}

// matcherFor builds a throwaway ignore.Matcher for root, uncached since a
// hook invocation is too short-lived to benefit from memoization. Diagnostics
// a supervisor reports can include files it published on its own (a
// project-wide LSP session is not limited to what this process opened), so
// the predicate is re-applied here, right before a message is composed,
// rather than trusted to have already been enforced upstream.
func (d *Dispatcher) matcherFor(root project.Root) (*ignore.Matcher, error) {
	fileName := d.Config.Ignore.FileName
	if fileName == "" {
		fileName = ignore.DefaultFileName
	}
	return ignore.New(root.Path, d.Config.Ignore.BuiltIns, fileName, nil)
}

func (d *Dispatcher) handleStop(ctx context.Context, event Event, runtimeDir string) {
	root, ok := d.resolveRoot(event)
	if !ok {
		return
	}
	client := NewSupervisorClient(d.socketPaths(runtimeDir, root).Socket)
	client.Shutdown(ctx)
}

func (d *Dispatcher) handleSessionStart(ctx context.Context, event Event, runtimeDir string, stderr io.Writer) int {
	root, ok := d.resolveRoot(event)
	if !ok {
		return 0
	}

	marker := d.seenMarker(runtimeDir, root.ID)
	if _, err := os.Stat(marker); err == nil {
		return 0
	}
	_ = os.MkdirAll(runtimeDir, 0o700)
	_ = os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)), 0o600)

	sockPath := d.socketPaths(runtimeDir, root).Socket
	if err := EnsureRunning(ctx, sockPath, root.Path); err != nil {
		d.Logger.Warn("ensure supervisor running", "error", err)
		return 0
	}

	client := NewSupervisorClient(sockPath)
	diags, err := client.DiagnosticsAll(ctx)
	if err != nil {
		return 0
	}

	return d.reportIfDue(ctx, root, diags, stderr)
}

func (d *Dispatcher) handleToolUse(ctx context.Context, event Event, runtimeDir string, stderr io.Writer) int {
	// A file-specific tool has an unambiguous single root; a non-file tool
	// may touch any of the nested projects under the working directory.
	if event.FilePath != "" {
		root, ok := d.resolveRoot(event)
		if !ok {
			return 0
		}

		sockPath := d.socketPaths(runtimeDir, root).Socket
		if err := EnsureRunning(ctx, sockPath, root.Path); err != nil {
			d.Logger.Warn("ensure supervisor running", "error", err)
			return 0
		}

		if exitCode := d.drainPending(ctx, runtimeDir, root, stderr); exitCode == 2 {
			return 2
		}

		if event.IsFileSpecific() {
			d.storePending(ctx, root, event.FilePath)
			return 0
		}

		client := NewSupervisorClient(sockPath)
		diags, err := client.DiagnosticsAll(ctx)
		if err != nil {
			return 0
		}
		return d.reportIfDue(ctx, root, diags, stderr)
	}

	if event.WorkingDir == "" {
		return 0
	}

	roots, err := project.Discover(event.WorkingDir)
	if err != nil || len(roots) == 0 {
		return 0
	}
	if exitCode := d.drainPendingAny(ctx, runtimeDir, roots, stderr); exitCode == 2 {
		return 2
	}
	return d.reportAcrossRoots(ctx, runtimeDir, roots, stderr)
}

// drainPendingAny tries each discovered root in turn, preferring the
// first, stopping at the first one that produces a reportable message.
func (d *Dispatcher) drainPendingAny(ctx context.Context, runtimeDir string, rootPaths []string, stderr io.Writer) int {
	for _, p := range rootPaths {
		root, err := project.NewRoot(p)
		if err != nil {
			continue
		}
		if exitCode := d.drainPending(ctx, runtimeDir, root, stderr); exitCode == 2 {
			return 2
		}
	}
	return 0
}

// reportAcrossRoots collects fresh diagnostics from every discovered
// project, deduplicates per project, and emits a single combined message
// covering whichever projects actually changed.
func (d *Dispatcher) reportAcrossRoots(ctx context.Context, runtimeDir string, rootPaths []string, stderr io.Writer) int {
	var combined []diagnostic.Diagnostic
	reportable := false

	for _, p := range rootPaths {
		root, err := project.NewRoot(p)
		if err != nil {
			continue
		}

		sockPath := d.socketPaths(runtimeDir, root).Socket
		if err := EnsureRunning(ctx, sockPath, root.Path); err != nil {
			d.Logger.Warn("ensure supervisor running", "error", err, "project", root.Path)
			continue
		}

		client := NewSupervisorClient(sockPath)
		diags, err := client.DiagnosticsAll(ctx)
		if err != nil {
			continue
		}
		if m, err := d.matcherFor(root); err == nil {
			diags = ignore.FilterIgnored(ctx, m, root.Path, diags)
		}

		store, closeFn, err := d.openStore(ctx, root)
		if err != nil {
			continue
		}
		diff, err := dedup.Compute(ctx, store, root.Path, diags)
		if err != nil {
			closeFn()
			continue
		}
		if dedup.ShouldReport(diff, d.Config.Dedup.TestMode) {
			reportable = true
			if err := dedup.Commit(ctx, store, root.Path, diff); err == nil {
				combined = append(combined, diff.Added...)
				combined = append(combined, diff.Unchanged...)
			}
		}
		closeFn()
	}

	if !reportable {
		return 0
	}
	fmt.Fprintln(stderr, FormatSystemMessage(combined))
	return 2
}

// storePending persists an unreported file check for a later hook to
// drain, opening and closing the dedup store for just this write.
func (d *Dispatcher) storePending(ctx context.Context, root project.Root, file string) {
	store, closeFn, err := d.openStore(ctx, root)
	if err != nil {
		d.Logger.Warn("open dedup store", "error", err)
		return
	}
	defer closeFn()

	if err := store.MarkPending(ctx, file, root.Path); err != nil {
		d.Logger.Warn("mark pending", "error", err)
	}
}

// drainPending spends a tight budget attempting to resolve one pending
// check, preferring root. Returns 2 if it produced a reportable message.
func (d *Dispatcher) drainPending(ctx context.Context, runtimeDir string, root project.Root, stderr io.Writer) int {
	store, closeFn, err := d.openStore(ctx, root)
	if err != nil {
		return 0
	}
	defer closeFn()

	budget := d.Config.Dedup.PendingDrainWait
	if budget <= 0 {
		budget = dedup.DefaultDrainBudget
	}
	drainCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	now := time.Now()
	expire := d.Config.Dedup.PendingExpire
	if expire <= 0 {
		expire = dedup.DefaultPendingExpire
	}
	purge := d.Config.Dedup.PendingPurge
	if purge <= 0 {
		purge = dedup.DefaultPendingPurge
	}
	if err := dedup.Maintain(drainCtx, store, now, expire, purge); err != nil {
		d.Logger.Warn("maintain pending", "error", err)
	}

	pc, ok, err := dedup.DrainOne(drainCtx, store, root.Path)
	if err != nil || !ok {
		return 0
	}

	pendingRoot, rErr := project.NewRoot(pc.ProjectRoot)
	if rErr != nil {
		_ = store.MarkChecked(ctx, pc.FilePath)
		return 0
	}

	sockPath := uds.ForProject(runtimeDir, pendingRoot.ID).Socket
	if !uds.HealthOK(drainCtx, sockPath, budget) {
		return 0 // supervisor not ready yet; leave the row for the next drain
	}

	client := NewSupervisorClient(sockPath)
	diags, err := client.DiagnosticsFile(drainCtx, pc.FilePath)
	if err != nil {
		return 0
	}
	_ = store.MarkChecked(ctx, pc.FilePath)

	return d.reportIfDueUsing(ctx, store, pendingRoot, diags, stderr)
}

// reportIfDue diffs diags against the project's delivered set and, if
// shouldReport is true, writes the system message and returns 2.
func (d *Dispatcher) reportIfDue(ctx context.Context, root project.Root, diags []diagnostic.Diagnostic, stderr io.Writer) int {
	store, closeFn, err := d.openStore(ctx, root)
	if err != nil {
		d.Logger.Warn("open dedup store", "error", err)
		return 0
	}
	defer closeFn()
	return d.reportIfDueUsing(ctx, store, root, diags, stderr)
}

func (d *Dispatcher) reportIfDueUsing(ctx context.Context, store *sqlitestore.Store, root project.Root, diags []diagnostic.Diagnostic, stderr io.Writer) int {
	if m, err := d.matcherFor(root); err == nil {
		diags = ignore.FilterIgnored(ctx, m, root.Path, diags)
	}

	diff, err := dedup.Compute(ctx, store, root.Path, diags)
	if err != nil {
		d.Logger.Warn("compute diff", "error", err)
		return 0
	}

	if !dedup.ShouldReport(diff, d.Config.Dedup.TestMode) {
		return 0
	}

	if err := dedup.Commit(ctx, store, root.Path, diff); err != nil {
		d.Logger.Warn("commit diff", "error", err)
		return 0
	}

	fresh := append(append([]diagnostic.Diagnostic{}, diff.Added...), diff.Unchanged...)
	fmt.Fprintln(stderr, FormatSystemMessage(fresh))
	return 2
}

func (d *Dispatcher) openStore(ctx context.Context, root project.Root) (*sqlitestore.Store, func(), error) {
	path, err := DedupStorePath(d.Config.Dedup, root.ID)
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlitestore.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	store := sqlitestore.New(db)
	return store, func() { _ = store.Close() }, nil
}
