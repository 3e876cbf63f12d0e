// Package observe provides application-wide observability primitives for
// StageCue: OpenTelemetry metrics and the provider setup that exposes them
// through a Prometheus /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all StageCue metrics.
const meterName = "github.com/stagecue/stagecue"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// TranscriptsProcessed counts partial and final transcripts fed through
	// the matcher. Use with attribute: attribute.String("kind", "partial"|"final").
	TranscriptsProcessed metric.Int64Counter

	// MatchDetections counts confirmed detections. Use with attribute:
	//   attribute.String("kind", "anchor"|"exit")
	MatchDetections metric.Int64Counter

	// SessionRestarts counts recognizer restarts. Use with attribute:
	//   attribute.String("reason", "error"|"flush"|"watchdog")
	SessionRestarts metric.Int64Counter

	// RecognitionErrors counts recognizer errors by class. Use with attribute:
	//   attribute.String("class", ...)
	RecognitionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recognition sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Histograms ---

	// MatchConfidence tracks the confidence of confirmed detections. Use
	// with the same "kind" attribute as MatchDetections.
	MatchConfidence metric.Float64Histogram

	// AudioLevel tracks smoothed microphone levels in [0,1].
	AudioLevel metric.Float64Histogram

	// SessionDuration tracks completed session length in seconds.
	SessionDuration metric.Float64Histogram
}

// confidenceBuckets covers the [0,1] confidence and audio-level range.
var confidenceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1,
}

// sessionBuckets covers session durations from a quick rehearsal check to a
// full headline set (in seconds).
var sessionBuckets = []float64{
	30, 60, 120, 300, 600, 1200, 1800, 2700, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.TranscriptsProcessed, err = m.Int64Counter("stagecue.transcripts.processed",
		metric.WithDescription("Total transcripts fed through the matcher by kind."),
	); err != nil {
		return nil, err
	}
	if met.MatchDetections, err = m.Int64Counter("stagecue.match.detections",
		metric.WithDescription("Total confirmed anchor/exit detections by kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionRestarts, err = m.Int64Counter("stagecue.session.restarts",
		metric.WithDescription("Total recognizer restarts by reason."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("stagecue.recognition.errors",
		metric.WithDescription("Total recognizer errors by class."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("stagecue.active_sessions",
		metric.WithDescription("Number of live recognition sessions."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.MatchConfidence, err = m.Float64Histogram("stagecue.match.confidence",
		metric.WithDescription("Confidence of confirmed detections by kind."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioLevel, err = m.Float64Histogram("stagecue.audio.level",
		metric.WithDescription("Smoothed microphone level samples."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("stagecue.session.duration",
		metric.WithDescription("Completed session duration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordTranscript records one processed transcript of the given kind
// ("partial" or "final").
func (m *Metrics) RecordTranscript(ctx context.Context, kind string) {
	m.TranscriptsProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordDetection records a confirmed detection and its confidence.
func (m *Metrics) RecordDetection(ctx context.Context, kind string, confidence float64) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.MatchDetections.Add(ctx, 1, attrs)
	m.MatchConfidence.Record(ctx, confidence, attrs)
}

// RecordRestart records a recognizer restart with its reason.
func (m *Metrics) RecordRestart(ctx context.Context, reason string) {
	m.SessionRestarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordRecognitionError records a recognizer error of the given class.
func (m *Metrics) RecordRecognitionError(ctx context.Context, class string) {
	m.RecognitionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("class", class)),
	)
}
