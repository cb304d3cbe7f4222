// Package observe provides the observability primitives shared by every
// storyvoice pass: OpenTelemetry metrics, tracing, trace-aware structured
// logging, and HTTP middleware for the metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported for
// Prometheus scraping via [InitProvider]. A package-level [DefaultMetrics]
// instance is available for convenience; tests should use [NewMetrics] with a
// dedicated [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all storyvoice metrics.
const meterName = "github.com/MrWong99/storyvoice"

// Attempt outcomes recorded on [Metrics.LLMAttempts].
const (
	StatusOK             = "ok"
	StatusTransportError = "transport_error"
	StatusInvalid        = "invalid"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// LLMCallDuration tracks the latency of a whole validated call, retries
	// included. Attribute: kind.
	LLMCallDuration metric.Float64Histogram

	// LLMAttempts counts individual attempts. Attributes: kind, status.
	LLMAttempts metric.Int64Counter

	// PassDuration tracks the wall time of one pass. Attribute: pass.
	PassDuration metric.Float64Histogram

	// BlocksProcessed counts blocks completed by a pass. Attribute: pass.
	BlocksProcessed metric.Int64Counter

	// SentencesAssigned counts sentences that received a speaker.
	SentencesAssigned metric.Int64Counter

	// ProviderFailovers counts switches from a failing provider to a
	// fallback. Attribute: provider.
	ProviderFailovers metric.Int64Counter

	// HTTPRequestDuration tracks metrics-endpoint request latency.
	// Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// callBuckets covers single fast completions up to multi-minute retry chains.
var callBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMCallDuration, err = m.Float64Histogram("storyvoice.llm.call.duration",
		metric.WithDescription("Latency of a validated LLM call including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMAttempts, err = m.Int64Counter("storyvoice.llm.attempts",
		metric.WithDescription("LLM call attempts by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.PassDuration, err = m.Float64Histogram("storyvoice.pass.duration",
		metric.WithDescription("Wall time of a pipeline pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BlocksProcessed, err = m.Int64Counter("storyvoice.blocks.processed",
		metric.WithDescription("Text blocks completed by pass."),
	); err != nil {
		return nil, err
	}
	if met.SentencesAssigned, err = m.Int64Counter("storyvoice.sentences.assigned",
		metric.WithDescription("Sentences labelled with a speaker."),
	); err != nil {
		return nil, err
	}
	if met.ProviderFailovers, err = m.Int64Counter("storyvoice.provider.failovers",
		metric.WithDescription("Failovers from a provider to its fallback."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("storyvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAttempt increments the attempt counter for kind with status.
func (m *Metrics) RecordAttempt(ctx context.Context, kind, status string) {
	m.LLMAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordCall records the total latency of a validated call.
func (m *Metrics) RecordCall(ctx context.Context, kind string, d time.Duration) {
	m.LLMCallDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordPass records the wall time of a pass.
func (m *Metrics) RecordPass(ctx context.Context, pass string, d time.Duration) {
	m.PassDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("pass", pass)),
	)
}

// RecordBlocks adds n completed blocks for pass.
func (m *Metrics) RecordBlocks(ctx context.Context, pass string, n int) {
	m.BlocksProcessed.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("pass", pass)),
	)
}

// RecordSentences adds n assigned sentences.
func (m *Metrics) RecordSentences(ctx context.Context, n int) {
	m.SentencesAssigned.Add(ctx, int64(n))
}

// RecordFailover increments the failover counter for the provider that failed.
func (m *Metrics) RecordFailover(ctx context.Context, provider string) {
	m.ProviderFailovers.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
