package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "claude-lsp.yaml"

// CLIFlags holds command-line flag values. Nil pointers indicate unset
// flags that should not override the config. Use ParseFlags to populate
// this struct.
type CLIFlags struct {
	ConfigPath *string
	LogLevel   *string
	RuntimeDir *string
}

// ParseFlags parses command-line arguments into CLIFlags. Call this
// before Load/LoadWithCLI. Passing nil args parses os.Args[1:].
func ParseFlags(args []string) (CLIFlags, error) {
	var flags CLIFlags

	fs := flag.NewFlagSet("claude-lsp", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	logLevel := fs.String("log-level", "", "logging level (debug, info, warn, error)")
	runtimeDir := fs.String("runtime-dir", "", "override the socket/pid runtime directory")

	if args == nil {
		args = os.Args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return flags, fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = configPath
		case "log-level":
			flags.LogLevel = logLevel
		case "runtime-dir":
			flags.RuntimeDir = runtimeDir
		}
	})

	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI flags. The YAML path can be overridden
// via CLIFlags.ConfigPath.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.RuntimeDir != nil {
		cfg.Server.RuntimeDir = *flags.RuntimeDir
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg. Returns nil
// if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg. Only non-empty env
// values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.RuntimeDir, "CLAUDE_LSP_RUNTIME_DIR")
	setString(&cfg.Server.RateLimitHeader, "CLAUDE_LSP_RATE_LIMIT_HEADER")
	setDuration(&cfg.Server.ShutdownGracePeriod, "CLAUDE_LSP_SHUTDOWN_GRACE")

	setString(&cfg.Logging.Level, "CLAUDE_LSP_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CLAUDE_LSP_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CLAUDE_LSP_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "CLAUDE_LSP_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CLAUDE_LSP_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerMinute, "CLAUDE_LSP_RATE_PER_MINUTE")
	setInt(&cfg.Rate.Burst, "CLAUDE_LSP_RATE_BURST")

	setBool(&cfg.LSP.Enabled, "CLAUDE_LSP_LSP_ENABLED")
	setDuration(&cfg.LSP.StartTimeout, "CLAUDE_LSP_LSP_START_TIMEOUT")
	setInt(&cfg.LSP.MaxDiagnostics, "CLAUDE_LSP_LSP_MAX_DIAGNOSTICS")
	setInt(&cfg.LSP.OpenBatchSize, "CLAUDE_LSP_LSP_OPEN_BATCH_SIZE")

	setBool(&cfg.Direct.Enabled, "CLAUDE_LSP_DIRECT_ENABLED")
	setBool(&cfg.Direct.Disable, "CLAUDE_LSP_DIRECT_DISABLE")
	setDuration(&cfg.Direct.Timeout, "CLAUDE_LSP_DIRECT_TIMEOUT")

	setString(&cfg.Dedup.StoreDir, "CLAUDE_LSP_STORE_DIR")
	setDuration(&cfg.Dedup.PendingExpire, "CLAUDE_LSP_PENDING_EXPIRE")
	setDuration(&cfg.Dedup.PendingPurge, "CLAUDE_LSP_PENDING_PURGE")
	setBool(&cfg.Dedup.TestMode, "CLAUDE_LSP_TEST_MODE")

	setBool(&cfg.OTEL.Enabled, "CLAUDE_LSP_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "CLAUDE_LSP_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "CLAUDE_LSP_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "CLAUDE_LSP_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "CLAUDE_LSP_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set and constraints are met.
func validate(cfg *Config) error {
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.LSP.OpenBatchSize < 1 {
		return errors.New("lsp.open_batch_size must be >= 1")
	}
	if cfg.Dedup.PendingPurge < cfg.Dedup.PendingExpire {
		return errors.New("dedup.pending_purge must be >= dedup.pending_expire")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
