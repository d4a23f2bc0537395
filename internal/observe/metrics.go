// Package observe holds the OpenTelemetry plumbing of the service. Metric
// instruments and provider-call spans live here, as does the HTTP middleware
// that stamps every response with its trace ID.
//
// [InitProvider] installs the SDK; [NewMetrics] builds the instruments over
// any meter provider, so tests can pass one backed by a manual reader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all dialoguelab metrics.
const meterName = "github.com/MrWong99/dialoguelab"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks the time to the end of an LLM completion stream.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// AlignmentDuration tracks parse, segment and highlight mapping time.
	AlignmentDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// TakeLookups counts take cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	TakeLookups metric.Int64Counter

	// HighlightRanges counts emitted highlight ranges. Use with attribute:
	//   attribute.Bool("in_sync", ...)
	HighlightRanges metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of text streams currently being
	// relayed to clients.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote synthesis and generation calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// alignmentBuckets covers the in-process alignment pipeline.
var alignmentBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("dialoguelab.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("dialoguelab.tts.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignmentDuration, err = m.Float64Histogram("dialoguelab.alignment.duration",
		metric.WithDescription("Time spent aligning synthesis timing onto a script."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(alignmentBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("dialoguelab.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("dialoguelab.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.TakeLookups, err = m.Int64Counter("dialoguelab.takes.lookups",
		metric.WithDescription("Take cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.HighlightRanges, err = m.Int64Counter("dialoguelab.highlight.ranges",
		metric.WithDescription("Highlight ranges emitted."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("dialoguelab.active_streams",
		metric.WithDescription("Number of text streams currently relayed to clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("dialoguelab.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTakeLookup records a take cache hit or miss.
func (m *Metrics) RecordTakeLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.TakeLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordHighlight records the number of ranges produced by one alignment.
func (m *Metrics) RecordHighlight(ctx context.Context, ranges int, inSync bool) {
	m.HighlightRanges.Add(ctx, int64(ranges), metric.WithAttributes(attribute.Bool("in_sync", inSync)))
}

// RecordProviderCall records the latency and outcome of one provider call.
// The latency goes to LLMDuration for kind "llm" and to TTSDuration otherwise.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, start time.Time, err error) {
	h := m.TTSDuration
	if kind == "llm" {
		h = m.LLMDuration
	}
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("provider", provider)))

	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
}
