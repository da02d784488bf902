// Package tracing provides OpenTelemetry span helpers shared by the sync
// pipeline and the HTTP API.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on appdir spans
const (
	AttrIndexURL         = attribute.Key("index.url")
	AttrSyncPhase        = attribute.Key("sync.phase")
	AttrSyncErrorKind    = attribute.Key("sync.error_kind")
	AttrApplicationCount = attribute.Key("applications.count")
	AttrSkippedCount     = attribute.Key("applications.skipped")
	AttrArchiveBytes     = attribute.Key("archive.bytes")
)

// StartSpan starts a span on tracer, or returns the span already in ctx
// when tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed with description.
// An empty description falls back to "operation failed"; the full error is
// kept on the exception event.
func RecordError(span trace.Span, err error, description string) {
	if err == nil || span == nil {
		return
	}
	if description == "" {
		description = "operation failed"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}
