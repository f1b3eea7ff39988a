package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/claude-lsp/sidecar/internal/adapter/direct"
	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	lspdomain "github.com/claude-lsp/sidecar/internal/domain/lsp"
	"github.com/claude-lsp/sidecar/internal/resilience"
)

// DirectBackend runs each file through adapter/direct's per-language
// checker, bounded to a fixed number of concurrent child processes. A
// per-language circuit breaker suppresses repeated invocations of a
// compiler or linter binary that is not installed, rather than shelling
// out again on every file that shares its language.
type DirectBackend struct {
	cfg         config.Direct
	breakerCfg  config.Breaker
	concurrency int

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// NewDirectBackend constructs a backend that runs up to concurrency
// checkers at once. concurrency <= 0 defaults to 4.
func NewDirectBackend(cfg config.Direct, breakerCfg config.Breaker, concurrency int) *DirectBackend {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &DirectBackend{
		cfg:         cfg,
		breakerCfg:  breakerCfg,
		concurrency: concurrency,
		breakers:    make(map[string]*resilience.Breaker),
	}
}

func (b *DirectBackend) breakerFor(lang string) *resilience.Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.breakers[lang]
	if !ok {
		br = resilience.NewBreaker(b.breakerCfg.MaxFailures, b.breakerCfg.Timeout)
		b.breakers[lang] = br
	}
	return br
}

// check runs the direct checker for file through the breaker for its
// detected language. direct.Check only ever returns an error when the
// underlying tool could not be located or started, so a tripped breaker
// means exactly "stop trying to spawn this missing binary for a while."
// Files whose language has no direct checker bypass the breaker entirely.
func (b *DirectBackend) check(ctx context.Context, root, file string) ([]diagnostic.Diagnostic, bool, error) {
	lang, ok := lspdomain.ByExtension(filepath.Ext(file))
	if !ok {
		return direct.Check(ctx, b.cfg, root, file)
	}

	br := b.breakerFor(lang.Name)
	var diags []diagnostic.Diagnostic
	var timedOut bool
	err := br.Execute(func() error {
		var checkErr error
		diags, timedOut, checkErr = direct.Check(ctx, b.cfg, root, file)
		return checkErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, false, err
	}
	return diags, timedOut, err
}

// CheckProject runs the direct checker against every file, bounded by the
// backend's configured concurrency.
func (b *DirectBackend) CheckProject(ctx context.Context, root string, files []string) (Bundle, error) {
	var (
		mu     sync.Mutex
		bundle Bundle
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for _, f := range files {
		f := f
		g.Go(func() error {
			diags, timedOut, err := b.check(gctx, root, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				bundle.TimedOut = append(bundle.TimedOut, f)
				return nil //nolint:nilerr // one checker's failure should not abort the whole pass
			}
			if timedOut {
				bundle.TimedOut = append(bundle.TimedOut, f)
			}
			bundle.Diagnostics = append(bundle.Diagnostics, diags...)
			return nil
		})
	}
	_ = g.Wait()

	return bundle, nil
}

// CheckFile runs the direct checker against a single file.
func (b *DirectBackend) CheckFile(ctx context.Context, root, file string) (Bundle, error) {
	diags, timedOut, err := b.check(ctx, root, file)
	if err != nil {
		return Bundle{}, err
	}
	bundle := Bundle{Diagnostics: diags}
	if timedOut {
		bundle.TimedOut = []string{file}
	}
	return bundle, nil
}

// Close is a no-op: the direct back end holds no persistent resources.
func (b *DirectBackend) Close(_ context.Context) error {
	return nil
}
