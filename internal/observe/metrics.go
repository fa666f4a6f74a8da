// Package observe provides the OpenTelemetry metrics and tracing used across
// the assistant.
//
// Instruments are created from a [metric.MeterProvider]. [InitProvider] wires a
// Prometheus exporter so metrics can be scraped from /metrics. Tests should use
// [NewMetrics] with their own provider instead of [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "voice-assist"

// Metrics holds every instrument the assistant records.
type Metrics struct {
	// SessionsStarted counts capture sessions started by the user.
	SessionsStarted metric.Int64Counter

	// RecognizerErrors counts recognizer errors by kind.
	RecognizerErrors metric.Int64Counter

	// RecognizerRestarts counts silent restarts scheduled by the retry policy, by kind.
	RecognizerRestarts metric.Int64Counter

	// SessionGiveUps counts sessions abandoned after a retry ceiling, by kind.
	SessionGiveUps metric.Int64Counter

	// GenerationDuration tracks answer generation latency by provider.
	GenerationDuration metric.Float64Histogram

	// GenerationRequests counts generation calls by provider and status.
	GenerationRequests metric.Int64Counter

	// HTTPRequestDuration tracks presentation API latency by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionsStarted, err = m.Int64Counter("voiceassist.sessions.started",
		metric.WithDescription("Capture sessions started by the user."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerErrors, err = m.Int64Counter("voiceassist.recognizer.errors",
		metric.WithDescription("Recognizer errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerRestarts, err = m.Int64Counter("voiceassist.recognizer.restarts",
		metric.WithDescription("Silent recognizer restarts by error kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionGiveUps, err = m.Int64Counter("voiceassist.session.give_ups",
		metric.WithDescription("Sessions abandoned after a retry ceiling, by error kind."),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("voiceassist.generation.duration",
		metric.WithDescription("Latency of answer generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationRequests, err = m.Int64Counter("voiceassist.generation.requests",
		metric.WithDescription("Answer generation requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voiceassist.http.request.duration",
		metric.WithDescription("Presentation API latency by method and path."),
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

// DefaultMetrics returns the package-level instance built on the global meter
// provider. It panics if instrument creation fails.
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

func (m *Metrics) RecordRecognizerError(ctx context.Context, kind string) {
	m.RecognizerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordRestart(ctx context.Context, kind string) {
	m.RecognizerRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordGiveUp(ctx context.Context, kind string) {
	m.SessionGiveUps.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordGeneration records one generation call and its latency in seconds.
func (m *Metrics) RecordGeneration(ctx context.Context, provider, status string, seconds float64) {
	m.GenerationRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
	m.GenerationDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}
