package entity

import (
	"errors"
	"time"
)

// ArchivedRecord - запись, зафиксированная циклом и сохраненная в архив.
// Архив только пополняется; в состояние цикла он никогда не читается обратно.
type ArchivedRecord struct {
	CycleID     string
	DashboardID string
	CapturedAt  time.Time
	Record      MetricRecord
}

// NewArchivedRecord проверяет инварианты архивной записи.
func NewArchivedRecord(cycleID, dashboardID string, capturedAt time.Time, record *MetricRecord) (*ArchivedRecord, error) {
	if cycleID == "" {
		return nil, errors.New("cycle id cannot be empty")
	}
	if capturedAt.IsZero() {
		return nil, errors.New("captured_at cannot be zero")
	}
	if !record.IsUsable() {
		return nil, errors.New("record has no metrics")
	}

	return &ArchivedRecord{
		CycleID:     cycleID,
		DashboardID: dashboardID,
		CapturedAt:  capturedAt.UTC(),
		Record:      *record.Clone(),
	}, nil
}
