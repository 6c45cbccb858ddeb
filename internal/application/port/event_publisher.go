package port

import (
	"context"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
)

// CycleEvent публикуется в брокер после каждого цикла.
type CycleEvent struct {
	CycleID     string               `json:"cycle_id"`
	DashboardID string               `json:"dashboard_id"`
	Outcome     string               `json:"outcome"`
	Status      string               `json:"status"`
	Record      *entity.MetricRecord `json:"record,omitempty"`
	Error       string               `json:"error,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
}

// EventPublisher defines the interface for publishing events to a message broker
type EventPublisher interface {
	// PublishEvent publishes an event to the specified subject
	PublishEvent(ctx context.Context, subject string, event interface{}) error

	// Close closes the connection to the message broker
	Close() error
}
