// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge, and structured
// logging via log/slog. The core (C1-C8) never constructs these itself; it
// receives a *Metrics and a *slog.Logger as injected interfaces, exactly as
// spec.md models "logging sinks" and metrics as external collaborators.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tinyagent-go metrics.
const meterName = "github.com/flyingcloud-code/tinyagent-go"

// Metrics holds all OpenTelemetry metric instruments for the application. All
// fields are safe for concurrent use — the underlying OTel types handle their
// own synchronisation.
type Metrics struct {
	// ToolDuration tracks MCP tool call latency (acquire + call + release).
	ToolDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Attributes: tool, server, status
	// (status is "ok" or "error").
	ToolCalls metric.Int64Counter

	// ToolErrors counts tool invocations that resulted in any error, transport
	// or application-level.
	ToolErrors metric.Int64Counter

	// CacheHits counts GetCachedTools calls that returned a non-nil result.
	// Attribute: server.
	CacheHits metric.Int64Counter

	// CacheMisses counts GetCachedTools calls that returned nil because the
	// entry was absent or stale. Attribute: server.
	CacheMisses metric.Int64Counter

	// PoolConnections tracks live pooled connections. Attribute: server.
	PoolConnections metric.Int64UpDownCounter

	// ReasoningIterations records how many ReAct iterations a Run took.
	ReasoningIterations metric.Float64Histogram

	// ReasoningConfidence records the REFLECTING-phase confidence value of
	// every step.
	ReasoningConfidence metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds), tuned for
// tool-call and LLM round-trip latencies rather than sub-10ms operations.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// confidenceBuckets defines histogram bucket boundaries for the [0, 1]
// confidence range.
var confidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// iterationBuckets defines histogram bucket boundaries for iteration counts.
var iterationBuckets = []float64{1, 2, 3, 4, 5, 7, 10, 15, 20}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolDuration, err = m.Float64Histogram("tinyagent.tool.duration",
		metric.WithDescription("Latency of an MCP tool invocation, including pool acquisition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("tinyagent.tool.calls",
		metric.WithDescription("Total tool invocations by tool, server, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolErrors, err = m.Int64Counter("tinyagent.tool.errors",
		metric.WithDescription("Total tool invocations that resulted in an error."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("tinyagent.cache.hits",
		metric.WithDescription("Total tool-cache lookups that hit a fresh entry."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("tinyagent.cache.misses",
		metric.WithDescription("Total tool-cache lookups that missed or found a stale entry."),
	); err != nil {
		return nil, err
	}
	if met.PoolConnections, err = m.Int64UpDownCounter("tinyagent.pool.connections",
		metric.WithDescription("Live pooled connections by server."),
	); err != nil {
		return nil, err
	}
	if met.ReasoningIterations, err = m.Float64Histogram("tinyagent.reasoning.iterations",
		metric.WithDescription("Number of ReAct iterations a Run took."),
		metric.WithExplicitBucketBoundaries(iterationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReasoningConfidence, err = m.Float64Histogram("tinyagent.reasoning.confidence",
		metric.WithDescription("REFLECTING-phase confidence value per step."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment, an optional error increment, and the duration histogram in one
// call.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, server, status string, durationSeconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("server", server),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, durationSeconds, attrs)
	if status != "ok" {
		m.ToolErrors.Add(ctx, 1, attrs)
	}
}

// RecordCacheLookup is a convenience method that increments CacheHits or
// CacheMisses for the given server.
func (m *Metrics) RecordCacheLookup(ctx context.Context, server string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("server", server))
	if hit {
		m.CacheHits.Add(ctx, 1, attrs)
	} else {
		m.CacheMisses.Add(ctx, 1, attrs)
	}
}

// RecordPoolConnectionDelta adjusts PoolConnections for server by delta
// (+1 when a connection is dialed, -1 when one is permanently closed).
func (m *Metrics) RecordPoolConnectionDelta(ctx context.Context, server string, delta int64) {
	m.PoolConnections.Add(ctx, delta, metric.WithAttributes(attribute.String("server", server)))
}
