// Package config provides hierarchical configuration loading for the
// diagnostics sidecar. Precedence: defaults < YAML file < environment
// variables < CLI flags.
package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ConfigHolder provides thread-safe access to a Config with hot-reload
// support. Services that hold pointers into the Config will see updated
// values after a reload because fields are swapped in-place.
type ConfigHolder struct {
	mu       sync.RWMutex
	cfg      Config
	yamlPath string
}

// NewHolder creates a ConfigHolder from an initial Config and the YAML
// path used for reloading.
func NewHolder(cfg *Config, yamlPath string) *ConfigHolder {
	return &ConfigHolder{cfg: *cfg, yamlPath: yamlPath}
}

// Get returns a pointer to the Config. Callers must not store the pointer
// long-term; read values immediately and release.
func (h *ConfigHolder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &h.cfg
}

// Reload re-reads the YAML file and environment variables, validates, and
// swaps the config in-place. If validation fails, the old config is
// preserved. Fields that cannot be hot-reloaded (the socket runtime
// directory, the dedup store directory) are logged as warnings if changed.
func (h *ConfigHolder) Reload() error {
	newCfg, err := LoadFrom(h.yamlPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if newCfg.Server.RuntimeDir != h.cfg.Server.RuntimeDir {
		slog.Warn("config reload: server.runtime_dir changed but requires restart",
			"old", h.cfg.Server.RuntimeDir, "new", newCfg.Server.RuntimeDir)
	}
	if newCfg.Dedup.StoreDir != h.cfg.Dedup.StoreDir {
		slog.Warn("config reload: dedup.store_dir changed but requires restart",
			"old", h.cfg.Dedup.StoreDir, "new", newCfg.Dedup.StoreDir)
	}
	if newCfg.Logging.Level != h.cfg.Logging.Level {
		slog.Info("config reload: logging level changed",
			"old", h.cfg.Logging.Level, "new", newCfg.Logging.Level)
	}

	h.cfg = *newCfg
	return nil
}

// Config holds all runtime configuration for the sidecar.
type Config struct {
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
	Breaker Breaker `yaml:"breaker"`
	Rate    Rate    `yaml:"rate"`
	Ignore  Ignore  `yaml:"ignore"`
	LSP     LSP     `yaml:"lsp"`
	Direct  Direct  `yaml:"direct"`
	Dedup   Dedup   `yaml:"dedup"`
	OTEL    OTEL    `yaml:"otel"`
}

// Server holds supervisor/socket configuration.
type Server struct {
	RuntimeDir          string        `yaml:"runtime_dir"`            // override for the platform-appropriate runtime dir; empty means auto-detect
	RateLimitHeader      string        `yaml:"rate_limit_header"`      // header carrying client identity (no peer IP on a unix socket)
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`  // delay between "shutdown initiated" response and actual exit
	HealthProbeTimeout   time.Duration `yaml:"health_probe_timeout"`   // timeout for a liveness probe of an existing socket
	ReadHeaderTimeout    time.Duration `yaml:"read_header_timeout"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for failed LSP servers and
// direct-invocation checkers.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds per-client rate limiter configuration for the supervisor's
// HTTP surface.
type Rate struct {
	RequestsPerMinute float64       `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Ignore holds ignore-engine configuration.
type Ignore struct {
	FileName  string   `yaml:"file_name"`  // gitignore-style file checked per project (default ".gitignore")
	BuiltIns  []string `yaml:"built_ins"`  // always-ignored glob patterns, unioned with the project file
	CacheSize int64    `yaml:"cache_size"` // max bytes for the ignore-predicate memoization cache
}

// LSP holds Language Server Protocol multiplexer configuration.
type LSP struct {
	Enabled           bool          `yaml:"enabled"`
	StartTimeout      time.Duration `yaml:"start_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MetalsReadyWait   time.Duration `yaml:"metals_ready_wait"`   // soft timeout waiting for Metals indexing
	ProjectWideWait   time.Duration `yaml:"project_wide_wait"`   // bounded wait before collecting project-wide diagnostics
	FileScopedWait    time.Duration `yaml:"file_scoped_wait"`    // bounded wait for a single-file query
	FirstPublishCap   time.Duration `yaml:"first_publish_cap"`   // cap on wait-until-first-publish in the server flow
	OpenBatchSize     int           `yaml:"open_batch_size"`     // concurrent file-open batch size (default 5)
	OpenBatchPause    time.Duration `yaml:"open_batch_pause"`    // pause between batches
	MaxDiagnostics    int           `yaml:"max_diagnostics"`     // cap per file buffered per session
	ToolCacheSize     int64         `yaml:"tool_cache_size"`     // not read by any component; tool paths are not memoized
}

// Direct holds direct-invocation back end configuration.
type Direct struct {
	Enabled           bool              `yaml:"enabled"`
	Disable           bool              `yaml:"disable"`             // global kill switch
	DisableByLanguage map[string]bool   `yaml:"disable_by_language"` // per-language switches keyed by registry language name (e.g. "python")
	Timeout           time.Duration     `yaml:"timeout"`
}

// Dedup holds deduplication store configuration.
type Dedup struct {
	StoreDir         string        `yaml:"store_dir"` // override for the per-project SQLite file location
	PendingExpire    time.Duration `yaml:"pending_expire"`
	PendingPurge     time.Duration `yaml:"pending_purge"`
	PendingDrainWait time.Duration `yaml:"pending_drain_wait"`
	TestMode         bool          `yaml:"test_mode"` // forces shouldReport=true; mirrors the source's env-gated test branch
}

// OTEL holds opt-in OpenTelemetry configuration. Disabled by default to
// respect the local-only scope of the sidecar's inbound surface; this
// only controls outbound telemetry export.
type OTEL struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: Server{
			RateLimitHeader:     "X-Client-Id",
			ShutdownGracePeriod: 200 * time.Millisecond,
			HealthProbeTimeout:  500 * time.Millisecond,
			ReadHeaderTimeout:   5 * time.Second,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			IdleTimeout:         60 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "claude-lsp",
			Async:   true,
		},
		Breaker: Breaker{
			MaxFailures: 3,
			Timeout:     time.Minute,
		},
		Rate: Rate{
			RequestsPerMinute: 100,
			Burst:             20,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		Ignore: Ignore{
			FileName: ".gitignore",
			BuiltIns: []string{
				"node_modules/**", ".git/**", "dist/**", "build/**", "target/**",
				"vendor/**", "__pycache__/**", ".venv/**", "venv/**", ".mypy_cache/**",
				".pytest_cache/**", "*.min.js", "*.pyc",
			},
			CacheSize: 8 << 20,
		},
		LSP: LSP{
			Enabled:         true,
			StartTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MetalsReadyWait: 60 * time.Second,
			ProjectWideWait: 2 * time.Second,
			FileScopedWait:  1500 * time.Millisecond,
			FirstPublishCap: 5 * time.Second,
			OpenBatchSize:   5,
			OpenBatchPause:  100 * time.Millisecond,
			MaxDiagnostics:  200,
			ToolCacheSize:   1 << 20,
		},
		Direct: Direct{
			Enabled: true,
			Timeout: 20 * time.Second,
		},
		Dedup: Dedup{
			PendingExpire:    5 * time.Minute,
			PendingPurge:     time.Hour,
			PendingDrainWait: 500 * time.Millisecond,
		},
		OTEL: OTEL{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "claude-lsp",
			Insecure:    true,
			SampleRate:  1.0,
		},
	}
}
