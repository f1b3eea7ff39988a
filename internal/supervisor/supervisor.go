// Package supervisor owns one project's long-lived diagnostics process:
// the LSP multiplexer (or direct-invocation back end), the HTTP surface
// bound to a unix domain socket, and graceful shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	adapterhttp "github.com/claude-lsp/sidecar/internal/adapter/http"
	"github.com/claude-lsp/sidecar/internal/adapter/ignore"
	"github.com/claude-lsp/sidecar/internal/adapter/ristretto"
	"github.com/claude-lsp/sidecar/internal/adapter/sqlitestore"
	"github.com/claude-lsp/sidecar/internal/adapter/uds"
	"github.com/claude-lsp/sidecar/internal/adapter/watch"
	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	"github.com/claude-lsp/sidecar/internal/domain/project"
	"github.com/claude-lsp/sidecar/internal/hook"
	appmiddleware "github.com/claude-lsp/sidecar/internal/middleware"
	"github.com/claude-lsp/sidecar/internal/pipeline"
)

// Supervisor is one running instance bound to one project root.
type Supervisor struct {
	cfg       config.Config
	root      project.Root
	logger    *slog.Logger
	paths     uds.Paths
	startedAt time.Time

	pipeline    *pipeline.Pipeline
	backend     pipeline.Backend
	store       *sqlitestore.Store // long-lived; holds language_servers bookkeeping for this session
	server      *http.Server
	listener    net.Listener
	shutdownCh  chan struct{}
	ignoreFile  string
	matcher     *ignore.Matcher
	fileWatcher *watch.Watcher
}

// New constructs a Supervisor for projectRoot, choosing the LSP or
// direct-invocation back end per cfg.LSP.Enabled.
func New(cfg config.Config, projectRoot string, logger *slog.Logger) (*Supervisor, error) {
	root, err := project.NewRoot(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	runtimeDir, err := uds.RuntimeDir(cfg.Server.RuntimeDir)
	if err != nil {
		return nil, fmt.Errorf("resolve runtime dir: %w", err)
	}

	matchCache, err := ristretto.New(cfg.Ignore.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("build ignore cache: %w", err)
	}
	ignoreFile := cfg.Ignore.FileName
	if ignoreFile == "" {
		ignoreFile = ignore.DefaultFileName
	}
	matcher, err := ignore.New(root.Path, cfg.Ignore.BuiltIns, ignoreFile, matchCache)
	if err != nil {
		return nil, fmt.Errorf("build ignore matcher: %w", err)
	}

	// The language_servers table records which language server sessions
	// this supervisor has running; the direct-invocation backend spawns
	// no long-lived children, so it needs no store handle.
	var backend pipeline.Backend
	var store *sqlitestore.Store
	if cfg.LSP.Enabled {
		dbPath, err := hook.DedupStorePath(cfg.Dedup, root.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve language server store path: %w", err)
		}
		db, err := sqlitestore.Open(context.Background(), dbPath)
		if err != nil {
			return nil, fmt.Errorf("open language server store: %w", err)
		}
		store = sqlitestore.New(db)
		backend = pipeline.NewLSPBackend(cfg.LSP, cfg.Breaker, root.Path, root.ID, store)
	} else {
		backend = pipeline.NewDirectBackend(cfg.Direct, cfg.Breaker, 4)
	}

	p := &pipeline.Pipeline{Root: root.Path, Backend: backend, Matcher: matcher}

	return &Supervisor{
		cfg:        cfg,
		root:       root,
		logger:     logger,
		paths:      uds.ForProject(runtimeDir, root.ID),
		pipeline:   p,
		backend:    backend,
		store:      store,
		shutdownCh: make(chan struct{}),
		ignoreFile: ignoreFile,
		matcher:    matcher,
	}, nil
}

// collectorAdapter bridges pipeline.Pipeline's Bundle-returning methods to
// the narrower (diagnostics, timedOut, err) shape the HTTP package expects.
type collectorAdapter struct{ p *pipeline.Pipeline }

func (c collectorAdapter) CollectProject(ctx context.Context) ([]diagnostic.Diagnostic, []string, error) {
	b, err := c.p.CollectProject(ctx)
	return b.Diagnostics, b.TimedOut, err
}

func (c collectorAdapter) CollectFile(ctx context.Context, file string) ([]diagnostic.Diagnostic, []string, error) {
	b, err := c.p.CollectFile(ctx, file)
	return b.Diagnostics, b.TimedOut, err
}

// Run binds the socket, serves HTTP until the context is cancelled or a
// shutdown is requested, and cleans up on the way out.
func (s *Supervisor) Run(ctx context.Context) error {
	listener, err := uds.Bind(s.paths)
	if err != nil {
		return fmt.Errorf("bind socket: %w", err)
	}
	s.listener = listener
	s.startedAt = time.Now()

	if err := uds.WriteSidecarFiles(s.paths, s.startedAt); err != nil {
		s.logger.Warn("write sidecar files", "error", err)
	}
	defer uds.Cleanup(s.paths)

	limiter := appmiddleware.NewRateLimiter(s.cfg.Rate.RequestsPerMinute, s.cfg.Rate.Burst, s.cfg.Server.RateLimitHeader)
	stopCleanup := limiter.StartCleanup(s.cfg.Rate.CleanupInterval, s.cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	if fw, err := watch.New([]string{s.root.Path + "/" + s.ignoreFile}, 300*time.Millisecond, s.logger, s.reloadIgnoreFile); err != nil {
		s.logger.Warn("ignore-file watcher disabled", "error", err)
	} else {
		s.fileWatcher = fw
		defer fw.Close()
	}

	handlers := &adapterhttp.Handlers{
		ProjectRoot: s.root.Path,
		ProjectID:   s.root.ID,
		StartedAt:   s.startedAt,
		Collector:   collectorAdapter{s.pipeline},
		Shutdown:    s.beginShutdown,
	}

	router := chi.NewRouter()
	adapterhttp.Mount(router, handlers, limiter)

	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.server.Serve(listener) }()

	s.logger.Info("supervisor started", "project", s.root.Path, "project_id", s.root.ID, "socket", s.paths.Socket)

	select {
	case <-sigCtx.Done():
		s.logger.Info("supervisor received signal, shutting down")
	case <-s.shutdownCh:
		s.logger.Info("supervisor shutting down on request")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	}

	return s.shutdown(context.Background())
}

// beginShutdown is invoked by the /shutdown handler after its response has
// been flushed to the caller. It signals Run to unwind rather than exiting
// the process directly, so callers (tests, or a future in-process host)
// observe a normal return from Run.
func (s *Supervisor) beginShutdown(_ context.Context) {
	grace := s.cfg.Server.ShutdownGracePeriod
	if grace > 0 {
		time.Sleep(grace)
	}
	select {
	case s.shutdownCh <- struct{}{}:
	default:
	}
}

// reloadIgnoreFile re-reads the project's ignore file after a change is
// observed on disk. The built-in ignore list never changes at runtime, so
// only the project-local file is re-parsed.
func (s *Supervisor) reloadIgnoreFile() {
	if err := s.matcher.Reload(s.ignoreFile); err != nil {
		s.logger.Warn("ignore file reload failed", "error", err)
		return
	}
	s.logger.Info("ignore file reloaded", "project", s.root.Path)
}

func (s *Supervisor) shutdown(ctx context.Context) error {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}

	backendErr := s.backend.Close(ctx)

	if s.store != nil {
		_ = s.store.Close()
	}

	uds.Cleanup(s.paths)
	if backendErr != nil {
		return fmt.Errorf("close backend: %w", backendErr)
	}
	return nil
}
