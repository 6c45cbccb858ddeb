package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

type countingPublisher struct{ calls int }

func (c *countingPublisher) Publish(context.Context, port.CycleMetric) error {
	c.calls++
	return nil
}

func (c *countingPublisher) Flush(context.Context) error { return nil }

func TestPublishCountsOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)
	ctx := context.Background()
	ts := time.Unix(1700000000, 0)

	require.NoError(t, m.Publish(ctx, port.CycleMetric{Outcome: valueobject.OutcomeUpdated, Duration: 3 * time.Second, MetricCount: 4, Timestamp: ts}))
	require.NoError(t, m.Publish(ctx, port.CycleMetric{Outcome: valueobject.OutcomeNotReady, Duration: time.Second}))
	require.NoError(t, m.Publish(ctx, port.CycleMetric{Outcome: valueobject.OutcomeNotReady, Duration: time.Second}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("updated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("not_ready")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ExtractedMetrics))
	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(m.LastUpdateUnix))
}

func TestSetPhase(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)

	m.SetPhase(valueobject.PhaseSteady)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoopPhase.WithLabelValues("steady")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LoopPhase.WithLabelValues("bootstrapping")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LoopPhase.WithLabelValues("terminated")))
}

func TestChainForwardsToNext(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)
	next := &countingPublisher{}

	pub := m.Chain(next)
	require.NoError(t, pub.Publish(context.Background(), port.CycleMetric{Outcome: valueobject.OutcomeFailed}))

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("failed")))
	assert.Same(t, m, m.Chain(nil))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry(), func() int { return 3 })

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/records", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/records", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/v1/records", "GET", "418")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "extractor_websocket_clients 3"))
}

func TestNewExposesZeroSeriesForEveryOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)

	assert.Equal(t, len(valueobject.AllOutcomes()), testutil.CollectAndCount(m.CyclesTotal))
	for _, kind := range valueobject.AllOutcomes() {
		assert.Equal(t, 0.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues(kind.String())))
	}
}
