package dto

import (
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
)

// ArchivedRecordDTO - элемент ответа GET /api/v1/records.
type ArchivedRecordDTO struct {
	CycleID     string              `json:"cycle_id"`
	DashboardID string              `json:"dashboard_id"`
	CapturedAt  time.Time           `json:"captured_at"`
	Record      entity.MetricRecord `json:"record"`
}

// FromArchivedRecord конвертирует Domain Entity в DTO
func FromArchivedRecord(r *entity.ArchivedRecord) *ArchivedRecordDTO {
	return &ArchivedRecordDTO{
		CycleID:     r.CycleID,
		DashboardID: r.DashboardID,
		CapturedAt:  r.CapturedAt.UTC(),
		Record:      *r.Record.Clone(),
	}
}

// ToArchivedRecordDTOs конвертирует слайс Entity в слайс DTO
func ToArchivedRecordDTOs(records []*entity.ArchivedRecord) []*ArchivedRecordDTO {
	dtos := make([]*ArchivedRecordDTO, len(records))
	for i, r := range records {
		dtos[i] = FromArchivedRecord(r)
	}
	return dtos
}
