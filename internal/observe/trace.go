package observe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/dialoguelab"

// Tracer returns the dialoguelab tracer from the global provider, so
// whatever provider is installed at call time is honoured.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}

// StartSpan starts a span named name under ctx.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the hex trace ID of the span in ctx, or "" when ctx
// carries no valid span. HTTP responses echo it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns slog.Default, annotated with trace_id and span_id when ctx
// carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return slog.Default()
	}
	return slog.Default().With(
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	)
}

// ── Provider calls ──────────────────────────────────────────────────────────

// Call is one in-flight request to an upstream LLM or speech provider. It
// owns a client span and, when metrics are attached, feeds the latency and
// request counters on [Call.End].
type Call struct {
	span     trace.Span
	metrics  *Metrics
	provider string
	kind     string
	start    time.Time
	once     sync.Once
}

// StartCall opens a client span "<kind>.<op>" for a call to provider and
// returns the context to hand to the provider. m may be nil.
func StartCall(ctx context.Context, m *Metrics, kind, provider, op string) (context.Context, *Call) {
	ctx, span := StartSpan(ctx, kind+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("dialoguelab.provider", provider),
			attribute.String("dialoguelab.provider.kind", kind),
		),
	)
	return ctx, &Call{span: span, metrics: m, provider: provider, kind: kind, start: time.Now()}
}

// End closes the call. A non-nil err marks the span failed and counts as a
// provider error. Only the first End has any effect.
func (c *Call) End(err error) {
	c.once.Do(func() {
		if err != nil {
			c.span.RecordError(err)
			c.span.SetStatus(codes.Error, err.Error())
		}
		c.span.End()
		if c.metrics != nil {
			// The caller's context may already be cancelled; the
			// measurement still belongs to the span.
			ctx := trace.ContextWithSpan(context.Background(), c.span)
			c.metrics.RecordProviderCall(ctx, c.provider, c.kind, c.start, err)
		}
	})
}
