package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// Metrics - Prometheus коллекторы сервиса: исходы циклов и HTTP.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal        *prometheus.CounterVec
	CycleDurationSec   *prometheus.HistogramVec
	ExtractedMetrics   prometheus.Gauge
	LastUpdateUnix     prometheus.Gauge
	LoopPhase          *prometheus.GaugeVec
	SinkFailures       *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
	RateLimitDropped   prometheus.Counter
	WebSocketClients   prometheus.GaugeFunc
}

var _ port.MetricsPublisher = (*Metrics)(nil)

// New регистрирует коллекторы в registry. clients может быть nil.
func New(registry *prometheus.Registry, clients func() int) *Metrics {
	if clients == nil {
		clients = func() int { return 0 }
	}

	m := &Metrics{
		registry: registry,
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_cycles_total",
			Help: "Total number of extraction cycles by outcome.",
		}, []string{"outcome"}),
		CycleDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "extractor_cycle_duration_seconds",
			Help:    "Extraction cycle duration in seconds.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120, 180},
		}, []string{"outcome"}),
		ExtractedMetrics: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "extractor_record_metrics",
			Help: "Number of metric cards in the last published record.",
		}),
		LastUpdateUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "extractor_last_update_timestamp_seconds",
			Help: "Unix time of the last successful cycle.",
		}),
		LoopPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "extractor_loop_phase",
			Help: "Current extraction loop phase (1 for the active phase).",
		}, []string{"phase"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_sink_failures_total",
			Help: "Total number of failed cycle publications by sink.",
		}, []string{"sink"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "extractor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extractor_http_auth_failures_total",
			Help: "Total number of rejected unauthenticated requests.",
		}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extractor_http_ratelimit_dropped_total",
			Help: "Total number of requests dropped by rate limiter.",
		}),
	}
	m.WebSocketClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "extractor_websocket_clients",
		Help: "Number of connected WebSocket clients.",
	}, func() float64 { return float64(clients()) })

	registry.MustRegister(
		m.CyclesTotal,
		m.CycleDurationSec,
		m.ExtractedMetrics,
		m.LastUpdateUnix,
		m.LoopPhase,
		m.SinkFailures,
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
		m.RateLimitDropped,
		m.WebSocketClients,
	)

	// нулевые серии по всем исходам, чтобы rate() работал с первого цикла
	for _, kind := range valueobject.AllOutcomes() {
		m.CyclesTotal.WithLabelValues(kind.String())
	}

	return m
}

// Handler - обработчик /metrics для этого registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Publish учитывает завершенный цикл.
func (m *Metrics) Publish(_ context.Context, metric port.CycleMetric) error {
	outcome := metric.Outcome.String()
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDurationSec.WithLabelValues(outcome).Observe(metric.Duration.Seconds())

	if metric.Outcome == valueobject.OutcomeUpdated {
		m.ExtractedMetrics.Set(float64(metric.MetricCount))
		ts := metric.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		m.LastUpdateUnix.Set(float64(ts.Unix()))
	}
	return nil
}

func (m *Metrics) Flush(context.Context) error {
	return nil
}

// SetPhase выставляет 1 текущей фазе и 0 остальным.
func (m *Metrics) SetPhase(phase valueobject.LoopPhase) {
	for _, p := range valueobject.LoopPhases() {
		value := 0.0
		if p == phase {
			value = 1
		}
		m.LoopPhase.WithLabelValues(p.String()).Set(value)
	}
}

// Chain возвращает publisher, который сначала учитывает цикл здесь,
// затем передает его next (CloudWatch). next может быть nil.
func (m *Metrics) Chain(next port.MetricsPublisher) port.MetricsPublisher {
	if next == nil {
		return m
	}
	return chained{local: m, next: next}
}

type chained struct {
	local *Metrics
	next  port.MetricsPublisher
}

func (c chained) Publish(ctx context.Context, metric port.CycleMetric) error {
	_ = c.local.Publish(ctx, metric)
	return c.next.Publish(ctx, metric)
}

func (c chained) Flush(ctx context.Context) error {
	return c.next.Flush(ctx)
}

// Middleware считает запросы по шаблону маршрута chi.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := routePattern(r)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// routePattern не дает путям статики и 404 раздувать кардинальность.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack нужен для апгрейда /ws.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
