package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "claude-lsp"

// Metrics holds the sidecar's metric instruments. Emission is opt-in,
// gated by OTELConfig.Enabled; when disabled these record against a no-op
// meter and cost nothing beyond the call itself.
type Metrics struct {
	HooksHandled       metric.Int64Counter
	SystemMessagesSent metric.Int64Counter
	DiagnosticsFound   metric.Int64Counter
	PendingDrained     metric.Int64Counter
	LSPSessionsStarted metric.Int64Counter
	DirectChecksRun    metric.Int64Counter
	HookDuration       metric.Float64Histogram
	DiagnosticsWait    metric.Float64Histogram
}

// NewMetrics creates all metric instruments against the global meter
// provider (a no-op unless InitTracer was called with Enabled).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.HooksHandled, err = meter.Int64Counter("claude_lsp.hooks.handled",
		metric.WithDescription("Number of hook invocations handled, by event kind"))
	if err != nil {
		return nil, err
	}

	m.SystemMessagesSent, err = meter.Int64Counter("claude_lsp.system_messages.sent",
		metric.WithDescription("Number of [[system-message]] lines emitted"))
	if err != nil {
		return nil, err
	}

	m.DiagnosticsFound, err = meter.Int64Counter("claude_lsp.diagnostics.found",
		metric.WithDescription("Number of diagnostics surfaced, by severity"))
	if err != nil {
		return nil, err
	}

	m.PendingDrained, err = meter.Int64Counter("claude_lsp.pending.drained",
		metric.WithDescription("Number of pending file checks drained on a later hook"))
	if err != nil {
		return nil, err
	}

	m.LSPSessionsStarted, err = meter.Int64Counter("claude_lsp.lsp.sessions_started",
		metric.WithDescription("Number of language-server child processes started, by language"))
	if err != nil {
		return nil, err
	}

	m.DirectChecksRun, err = meter.Int64Counter("claude_lsp.direct.checks_run",
		metric.WithDescription("Number of direct-invocation checker runs, by language"))
	if err != nil {
		return nil, err
	}

	m.HookDuration, err = meter.Float64Histogram("claude_lsp.hook.duration_seconds",
		metric.WithDescription("Hook dispatcher wall-clock duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.DiagnosticsWait, err = meter.Float64Histogram("claude_lsp.diagnostics.wait_seconds",
		metric.WithDescription("Bounded wait time spent collecting published diagnostics"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
