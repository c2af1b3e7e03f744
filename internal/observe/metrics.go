// Package observe carries the kiosk's telemetry: OpenTelemetry instruments for
// every stage of a turn, per-step trace spans that double as correlation IDs
// in log lines, and an HTTP middleware for the status server.
//
// Instruments are created from any [metric.MeterProvider]. Production code
// uses the global provider installed by [InitProvider] through
// [DefaultMetrics]; tests build their own with a manual reader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every kiosk meter and tracer.
const meterName = "github.com/MrWong99/voicekiosk"

// Metrics bundles the kiosk's instruments. OTel instruments are safe for
// concurrent use.
type Metrics struct {
	// Turn stage latencies, in seconds.
	STTDuration      metric.Float64Histogram
	DialogueDuration metric.Float64Histogram
	PlaybackDuration metric.Float64Histogram

	// UtteranceLength is the audio length of each segmented utterance.
	UtteranceLength metric.Float64Histogram

	// ProviderRequests is labelled provider, kind and status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors is labelled provider and kind.
	ProviderErrors metric.Int64Counter

	Utterances metric.Int64Counter

	// StateTransitions is labelled from and to.
	StateTransitions metric.Int64Counter

	// DroppedFrames counts capture frames evicted from the full hand-off queue.
	DroppedFrames metric.Int64Counter

	// BreakerTransitions is labelled breaker and to.
	BreakerTransitions metric.Int64Counter

	// ActiveListens is 1 while a listening phase is capturing.
	ActiveListens metric.Int64UpDownCounter

	// HTTPRequestDuration is labelled method, path and status.
	HTTPRequestDuration metric.Float64Histogram
}

var (
	// Turn stages run from tens of milliseconds (local VAD, cached replies)
	// to several seconds (cloud recognition on a slow uplink).
	latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	utteranceBuckets = []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20}
)

// instruments creates instruments on one meter and remembers every failure.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.check(name, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.check(name, err)
	return c
}

func (in *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.check(name, err)
	return g
}

func (in *instruments) check(name string, err error) {
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("%s: %w", name, err))
	}
}

// NewMetrics creates every instrument on mp. The error joins all instruments
// that could not be created.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		STTDuration:      in.seconds("voicekiosk.stt.duration", "Latency of speech-to-text recognition.", latencyBuckets),
		DialogueDuration: in.seconds("voicekiosk.dialogue.duration", "Latency of dialogue service requests.", latencyBuckets),
		PlaybackDuration: in.seconds("voicekiosk.playback.duration", "Time spent fetching and playing synthesized speech.", latencyBuckets),
		UtteranceLength:  in.seconds("voicekiosk.utterance.length", "Audio length of segmented utterances.", utteranceBuckets),

		ProviderRequests:   in.counter("voicekiosk.provider.requests", "Collaborator requests by provider, kind and status."),
		ProviderErrors:     in.counter("voicekiosk.provider.errors", "Collaborator errors by provider and kind."),
		Utterances:         in.counter("voicekiosk.utterances", "Utterances emitted by the segmenter."),
		StateTransitions:   in.counter("voicekiosk.dialogue.transitions", "Dialogue state transitions by source and target state."),
		DroppedFrames:      in.counter("voicekiosk.audio.dropped_frames", "Capture frames dropped because the hand-off queue was full."),
		BreakerTransitions: in.counter("voicekiosk.breaker.transitions", "Circuit breaker state changes by breaker and target state."),

		ActiveListens: in.gauge("voicekiosk.active_listens", "Listening phases currently capturing audio."),

		HTTPRequestDuration: in.seconds("voicekiosk.http.request.duration", "Status server request latency by method, route and status.", nil),
	}
	if len(in.errs) > 0 {
		return nil, fmt.Errorf("observe: create instruments: %w", errors.Join(in.errs...))
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments on the global meter provider, created on
// first use. Because OTel's global provider delegates, instruments created
// before [InitProvider] still reach the exporter it installs.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordProviderRequest counts one collaborator call with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError counts one collaborator failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordUtterance counts an emitted utterance and records its length.
func (m *Metrics) RecordUtterance(ctx context.Context, seconds float64) {
	m.Utterances.Add(ctx, 1)
	m.UtteranceLength.Record(ctx, seconds)
}

func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("to", to),
	))
}
