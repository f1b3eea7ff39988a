package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Breaker.MaxFailures != 3 {
		t.Errorf("expected max_failures 3, got %d", cfg.Breaker.MaxFailures)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.LSP.OpenBatchSize != 5 {
		t.Errorf("expected open batch size 5, got %d", cfg.LSP.OpenBatchSize)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  rate_limit_header: "X-Session-Id"
lsp:
  max_diagnostics: 50
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.RateLimitHeader != "X-Session-Id" {
		t.Errorf("expected rate limit header X-Session-Id, got %s", cfg.Server.RateLimitHeader)
	}
	if cfg.LSP.MaxDiagnostics != 50 {
		t.Errorf("expected max_diagnostics 50, got %d", cfg.LSP.MaxDiagnostics)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults.
	if cfg.Dedup.PendingExpire != 5*time.Minute {
		t.Errorf("expected default pending expire 5m, got %v", cfg.Dedup.PendingExpire)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("CLAUDE_LSP_LOG_LEVEL", "warn")
	t.Setenv("CLAUDE_LSP_BREAKER_TIMEOUT", "2m")
	t.Setenv("CLAUDE_LSP_LSP_MAX_DIAGNOSTICS", "25")

	loadEnv(&cfg)

	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Timeout != 2*time.Minute {
		t.Errorf("expected breaker timeout 2m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.LSP.MaxDiagnostics != 25 {
		t.Errorf("expected max_diagnostics 25, got %d", cfg.LSP.MaxDiagnostics)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
		{
			name:   "zero rate burst",
			modify: func(c *Config) { c.Rate.Burst = 0 },
			errMsg: "rate.burst must be >= 1",
		},
		{
			name:   "zero open batch size",
			modify: func(c *Config) { c.LSP.OpenBatchSize = 0 },
			errMsg: "lsp.open_batch_size must be >= 1",
		},
		{
			name:   "purge before expire",
			modify: func(c *Config) { c.Dedup.PendingPurge = c.Dedup.PendingExpire - time.Second },
			errMsg: "dedup.pending_purge must be >= dedup.pending_expire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}
