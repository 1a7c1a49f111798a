// Package observe holds the OpenTelemetry instruments recorded by the chat
// client. A package-level default [Metrics] ([DefaultMetrics]) uses the
// global meter provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all client metrics.
const meterName = "github.com/hammamikhairi/tabkha"

// Metrics holds the metric instruments for the client. All fields are safe
// for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptionDuration tracks clip-to-text latency.
	TranscriptionDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-audio latency per chunk.
	SynthesisDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts accepted submits. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("kind", ...)
	Turns metric.Int64Counter

	// RejectedInputs counts refused submits and captures. Use with:
	//   attribute.String("reason", ...)
	RejectedInputs metric.Int64Counter

	// Frames counts inbound frames by type.
	Frames metric.Int64Counter

	// Terminations counts sessions ended, by cause.
	Terminations metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a conversation is open.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds for service calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("tabkha.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("tabkha.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Turns, err = m.Int64Counter("tabkha.turns",
		metric.WithDescription("Accepted user submits by mode and kind."),
	); err != nil {
		return nil, err
	}
	if met.RejectedInputs, err = m.Int64Counter("tabkha.inputs.rejected",
		metric.WithDescription("Refused submits and captures by reason."),
	); err != nil {
		return nil, err
	}
	if met.Frames, err = m.Int64Counter("tabkha.frames",
		metric.WithDescription("Inbound conversation frames by type."),
	); err != nil {
		return nil, err
	}
	if met.Terminations, err = m.Int64Counter("tabkha.terminations",
		metric.WithDescription("Sessions ended by cause."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("tabkha.active_sessions",
		metric.WithDescription("Number of open conversation sessions."),
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
// first call using [otel.GetMeterProvider].
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

// RecordTurn records one accepted submit.
func (m *Metrics) RecordTurn(ctx context.Context, mode, kind string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("kind", kind),
		),
	)
}

// RecordRejected records one refused input.
func (m *Metrics) RecordRejected(ctx context.Context, reason string) {
	m.RejectedInputs.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordFrame records one inbound frame.
func (m *Metrics) RecordFrame(ctx context.Context, frameType string) {
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("type", frameType)))
}

// RecordTermination records the end of a session.
func (m *Metrics) RecordTermination(ctx context.Context, cause string) {
	m.Terminations.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// ObserveTranscription records a transcription latency with its outcome.
func (m *Metrics) ObserveTranscription(ctx context.Context, d time.Duration, err error) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(status(err)))
}

// ObserveSynthesis records a synthesis latency with its outcome.
func (m *Metrics) ObserveSynthesis(ctx context.Context, d time.Duration, err error) {
	m.SynthesisDuration.Record(ctx, d.Seconds(), metric.WithAttributes(status(err)))
}

func status(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "ok")
}
