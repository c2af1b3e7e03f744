package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type middlewareHarness struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

// newHarness wraps h in [Middleware] backed by a manual metric reader and an
// in-memory span exporter installed as the global tracer provider. Tests
// using it must not run in parallel.
func newHarness(t *testing.T, h http.Handler) *middlewareHarness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	return &middlewareHarness{handler: Middleware(m)(h), reader: reader, spans: spans}
}

func (h *middlewareHarness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

// durationAttrs returns the attribute sets recorded on the request duration
// histogram.
func (h *middlewareHarness) durationAttrs(t *testing.T) []attribute.Set {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "voicekiosk.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("request duration is %T, want histogram", met.Data)
	}
	var out []attribute.Set
	for _, dp := range hist.DataPoints {
		out = append(out, dp.Attributes)
	}
	return out
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const incoming = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "generated"},
		{
			name:        "from traceparent",
			traceparent: "00-" + incoming + "-00f067aa0ba902b7-01",
			want:        incoming,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := h.do(req)

			if len(seen) != 32 {
				t.Fatalf("correlation ID %q is not a trace ID", seen)
			}
			if tt.want != "" && seen != tt.want {
				t.Errorf("correlation ID = %q, want %q", seen, tt.want)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != seen {
				t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
			}
			if rec.Header().Get("traceparent") == "" {
				t.Error("response carries no traceparent")
			}
		})
	}
}

func TestMiddleware_SpanNameAndStatus(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))

	h.do(httptest.NewRequest(http.MethodGet, "/missing", nil))

	spans := h.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /missing" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var status int64
	for _, kv := range spans[0].Attributes {
		if kv.Key == "http.response.status_code" {
			status = kv.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("span status code attribute = %d, want 404", status)
	}
}

func TestMiddleware_DurationUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, _ *http.Request) {})
	h := newHarness(t, mux)

	h.do(httptest.NewRequest(http.MethodGet, "/orders/17", nil))
	h.do(httptest.NewRequest(http.MethodGet, "/orders/42", nil))

	sets := h.durationAttrs(t)
	if len(sets) != 1 {
		t.Fatalf("got %d attribute sets, want both requests under one route", len(sets))
	}
	attrs := sets[0]
	if v, _ := attrs.Value("path"); v.AsString() != "/orders/{id}" {
		t.Errorf("path = %q, want route pattern", v.AsString())
	}
	if v, _ := attrs.Value("method"); v.AsString() != http.MethodGet {
		t.Errorf("method = %q", v.AsString())
	}
	if v, _ := attrs.Value("status"); v.AsInt64() != http.StatusOK {
		t.Errorf("status = %d, want 200", v.AsInt64())
	}
}

func TestMiddleware_DurationFallsBackToPath(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	h.do(httptest.NewRequest(http.MethodPost, "/raw", nil))

	sets := h.durationAttrs(t)
	if len(sets) != 1 {
		t.Fatalf("got %d attribute sets, want 1", len(sets))
	}
	if v, _ := sets[0].Value("path"); v.AsString() != "/raw" {
		t.Errorf("path = %q, want /raw", v.AsString())
	}
	if v, _ := sets[0].Value("status"); v.AsInt64() != http.StatusAccepted {
		t.Errorf("status = %d, want 202", v.AsInt64())
	}
}

func TestMiddleware_QuietProbes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	fail := false
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))

	h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if buf.Len() != 0 {
		t.Fatalf("healthy probes logged at info: %s", buf.String())
	}

	fail = true
	h.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if !bytes.Contains(buf.Bytes(), []byte("path=/readyz")) || !bytes.Contains(buf.Bytes(), []byte("status=503")) {
		t.Errorf("failing probe not logged: %s", buf.String())
	}

	buf.Reset()
	fail = false
	h.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	if !bytes.Contains(buf.Bytes(), []byte("path=/status")) {
		t.Errorf("status request not logged: %s", buf.String())
	}
}
