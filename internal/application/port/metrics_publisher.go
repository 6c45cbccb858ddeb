package port

import (
	"context"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// CycleMetric - одна точка телеметрии по завершенному циклу.
type CycleMetric struct {
	Outcome     valueobject.OutcomeKind
	Duration    time.Duration
	MetricCount int
	Timestamp   time.Time
}

// MetricsPublisher defines the interface for publishing cycle metrics to external observability platforms.
type MetricsPublisher interface {
	// Publish buffers a single cycle metric.
	Publish(ctx context.Context, metric CycleMetric) error

	// Flush forces immediate publication of any buffered metrics.
	// Should be called during graceful shutdown to prevent data loss.
	Flush(ctx context.Context) error
}
