package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/claude-lsp/sidecar/internal/adapter/lsp"
	"github.com/claude-lsp/sidecar/internal/adapter/sqlitestore"
	"github.com/claude-lsp/sidecar/internal/config"
	lspdomain "github.com/claude-lsp/sidecar/internal/domain/lsp"
	"github.com/claude-lsp/sidecar/internal/resilience"
)

// LSPBackend drives one long-lived lsp.Client per language detected in the
// project, keeping sessions warm across successive hook invocations. A
// per-(project, language) circuit breaker suppresses repeated spawn
// attempts against a server binary that has already failed to start, and
// an optional store records each running session as persisted
// supervisor state.
type LSPBackend struct {
	cfg        config.LSP
	breakerCfg config.Breaker
	workspace  string
	projectID  string
	store      *sqlitestore.Store // nil disables session bookkeeping

	mu       sync.Mutex
	clients  map[string]*lsp.Client // language name -> client
	breakers map[string]*resilience.Breaker
}

// NewLSPBackend constructs a backend with no running clients; sessions
// start lazily on first use of a given language. store may be nil, in
// which case language server sessions are not recorded to disk.
func NewLSPBackend(cfg config.LSP, breakerCfg config.Breaker, workspace, projectID string, store *sqlitestore.Store) *LSPBackend {
	return &LSPBackend{
		cfg:        cfg,
		breakerCfg: breakerCfg,
		workspace:  workspace,
		projectID:  projectID,
		store:      store,
		clients:    make(map[string]*lsp.Client),
		breakers:   make(map[string]*resilience.Breaker),
	}
}

func pathToURI(path string) string {
	return "file://" + path
}

// breakerFor returns the breaker for lang, creating it on first use. Must
// be called with b.mu held.
func (b *LSPBackend) breakerFor(lang string) *resilience.Breaker {
	br, ok := b.breakers[lang]
	if !ok {
		br = resilience.NewBreaker(b.breakerCfg.MaxFailures, b.breakerCfg.Timeout)
		b.breakers[lang] = br
	}
	return br
}

// ensureClient returns a running client for lang, starting one if absent
// or if the previous one died. Each failed Start counts against that
// language's breaker; after Breaker.MaxFailures consecutive failures it
// opens, and resilience.Breaker rejects further attempts with
// ErrCircuitOpen until its timeout elapses, so a missing server binary is
// not re-spawned on every hook invocation.
func (b *LSPBackend) ensureClient(ctx context.Context, lang lspdomain.Language) (*lsp.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[lang.Name]; ok && c.Status() != lspdomain.ServerStatusDead {
		return c, nil
	}

	br := b.breakerFor(lang.Name)
	c := lsp.NewClient(lang, b.cfg, b.workspace)
	startErr := br.Execute(func() error {
		startCtx, cancel := context.WithTimeout(ctx, b.cfg.StartTimeout)
		defer cancel()
		return c.Start(startCtx)
	})
	if startErr != nil {
		return nil, fmt.Errorf("start %s language server: %w", lang.Name, startErr)
	}
	b.clients[lang.Name] = c

	if b.store != nil {
		if err := b.store.RecordLanguageServer(ctx, b.projectID, lang.Name, c.PID()); err != nil {
			slog.Warn("record language server", "language", lang.Name, "error", err)
		}
	}

	return c, nil
}

// groupByLanguage buckets files by their detected language, dropping
// files with no LSP-capable language or no server command configured.
func groupByLanguage(files []string) map[string][]string {
	groups := make(map[string][]string)
	for _, f := range files {
		lang, ok := lspdomain.ByExtension(filepath.Ext(f))
		if !ok || len(lang.ServerCommand) == 0 {
			continue
		}
		groups[lang.Name] = append(groups[lang.Name], f)
	}
	return groups
}

// openBatched opens files against client in batches of the configured
// size, pausing between batches to avoid overwhelming servers that index
// synchronously on didOpen (notably Metals).
func (b *LSPBackend) openBatched(ctx context.Context, c *lsp.Client, lang lspdomain.Language, files []string) []string {
	batchSize := b.cfg.OpenBatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	var timedOut []string
	for start := 0; start < len(files); start += batchSize {
		end := min(start+batchSize, len(files))
		batch := files[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, f := range batch {
			f := f
			g.Go(func() error {
				content, err := os.ReadFile(f) //nolint:gosec // G304: path comes from project-scoped file discovery
				if err != nil {
					return nil //nolint:nilerr // unreadable file just contributes no diagnostics
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return c.OpenFile(pathToURI(f), lang.Name, string(content))
			})
		}
		if err := g.Wait(); err != nil {
			timedOut = append(timedOut, batch...)
		}

		if end < len(files) && b.cfg.OpenBatchPause > 0 {
			select {
			case <-ctx.Done():
				return timedOut
			case <-time.After(b.cfg.OpenBatchPause):
			}
		}
	}
	return timedOut
}

// CheckProject opens every file across its detected language's client and
// waits a bounded period for diagnostics to settle before collecting them.
func (b *LSPBackend) CheckProject(ctx context.Context, root string, files []string) (Bundle, error) {
	groups := groupByLanguage(files)

	var bundle Bundle
	for name, langFiles := range groups {
		lang, ok := lspdomain.ByName(name)
		if !ok {
			continue
		}
		c, err := b.ensureClient(ctx, lang)
		if err != nil {
			bundle.TimedOut = append(bundle.TimedOut, langFiles...)
			continue
		}

		select {
		case <-c.Ready():
		case <-time.After(b.cfg.MetalsReadyWait):
		case <-ctx.Done():
		}

		bundle.TimedOut = append(bundle.TimedOut, b.openBatched(ctx, c, lang, langFiles)...)
	}

	wait := b.cfg.ProjectWideWait
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}

	for _, name := range languageNames(groups) {
		c, ok := b.clients[name]
		if !ok {
			continue
		}
		bundle.Diagnostics = append(bundle.Diagnostics, c.Diagnostics("")...)
	}

	return bundle, nil
}

// CheckFile opens (or re-sends as a change) a single file and waits a
// shorter bounded period before reading back its diagnostics.
func (b *LSPBackend) CheckFile(ctx context.Context, root, file string) (Bundle, error) {
	lang, ok := lspdomain.ByExtension(filepath.Ext(file))
	if !ok || len(lang.ServerCommand) == 0 {
		return Bundle{}, nil
	}

	c, err := b.ensureClient(ctx, lang)
	if err != nil {
		return Bundle{TimedOut: []string{file}}, nil
	}

	select {
	case <-c.Ready():
	case <-time.After(b.cfg.MetalsReadyWait):
	case <-ctx.Done():
	}

	content, err := os.ReadFile(file) //nolint:gosec // G304: caller-validated project-scoped path
	if err != nil {
		return Bundle{}, fmt.Errorf("read %s: %w", file, err)
	}
	if openErr := c.OpenFile(pathToURI(file), lang.Name, string(content)); openErr != nil {
		return Bundle{TimedOut: []string{file}}, nil
	}

	select {
	case <-ctx.Done():
	case <-time.After(b.cfg.FileScopedWait):
	}

	return Bundle{Diagnostics: c.Diagnostics(pathToURI(file))}, nil
}

// Close stops every running language server session and removes its
// bookkeeping row.
func (b *LSPBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	clients := make(map[string]*lsp.Client, len(b.clients))
	for name, c := range b.clients {
		clients[name] = c
	}
	b.clients = make(map[string]*lsp.Client)
	b.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, b.cfg.ShutdownTimeout)
	defer cancel()

	var firstErr error
	for name, c := range clients {
		if err := c.Stop(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
		if b.store != nil {
			if err := b.store.RemoveLanguageServer(ctx, b.projectID, name); err != nil {
				slog.Warn("remove language server", "language", name, "error", err)
			}
		}
	}
	return firstErr
}

func languageNames(groups map[string][]string) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	return names
}
