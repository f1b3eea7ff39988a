package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "claude-lsp"

// StartHookSpan starts a span for one hook dispatcher invocation.
func StartHookSpan(ctx context.Context, eventKind, projectID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "hook",
		trace.WithAttributes(
			attribute.String("hook.event_kind", eventKind),
			attribute.String("project.id", projectID),
		),
	)
}

// StartDiagnosticsSpan starts a span for one diagnostics collection pass
// (project-wide or file-scoped) against a supervisor.
func StartDiagnosticsSpan(ctx context.Context, projectID, scope string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "diagnostics",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("diagnostics.scope", scope),
		),
	)
}

// StartLSPSessionSpan starts a span covering one language-server child's
// initialize handshake.
func StartLSPSessionSpan(ctx context.Context, projectID, language string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "lsp_session",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("lsp.language", language),
		),
	)
}
