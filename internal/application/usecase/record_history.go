package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/repository"
	"github.com/dreschagin/dashboard-extractor/internal/domain/service"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

type RecordHistoryQuery struct {
	DashboardID string
	// TimeRange nil - последние Limit записей без ограничения по времени.
	TimeRange *valueobject.TimeRange
	Limit     int
}

type RecordSummaryDTO struct {
	DashboardID string                  `json:"dashboard_id"`
	Records     int                     `json:"records"`
	Metrics     []service.MetricSummary `json:"metrics"`
}

// GetRecordHistoryUseCase читает архив зафиксированных записей.
type GetRecordHistoryUseCase struct {
	repository repository.RecordRepository
	aggregator *service.RecordAggregator
	logger     *logger.Logger
}

func NewGetRecordHistoryUseCase(
	repository repository.RecordRepository,
	aggregator *service.RecordAggregator,
	logger *logger.Logger,
) *GetRecordHistoryUseCase {
	if aggregator == nil {
		aggregator = service.NewRecordAggregator()
	}
	return &GetRecordHistoryUseCase{
		repository: repository,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Execute возвращает записи, новые первыми.
func (uc *GetRecordHistoryUseCase) Execute(ctx context.Context, q RecordHistoryQuery) ([]*dto.ArchivedRecordDTO, error) {
	records, err := uc.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return dto.ToArchivedRecordDTOs(records), nil
}

// ExecuteSummary считает min/max/avg по каждому показателю за выборку.
func (uc *GetRecordHistoryUseCase) ExecuteSummary(ctx context.Context, q RecordHistoryQuery) (*RecordSummaryDTO, error) {
	records, err := uc.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return &RecordSummaryDTO{
		DashboardID: strings.TrimSpace(q.DashboardID),
		Records:     len(records),
		Metrics:     uc.aggregator.Summarize(records),
	}, nil
}

func (uc *GetRecordHistoryUseCase) fetch(ctx context.Context, q RecordHistoryQuery) ([]*entity.ArchivedRecord, error) {
	if uc.repository == nil {
		return nil, fmt.Errorf("%w: record archive", ErrNotConfigured)
	}

	dashboardID := strings.TrimSpace(q.DashboardID)
	if !dashboardIDRegex.MatchString(dashboardID) {
		return nil, fmt.Errorf("%w: invalid dashboard_id", ErrInvalidArgument)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var (
		records []*entity.ArchivedRecord
		err     error
	)
	if q.TimeRange != nil {
		uc.logger.Debug("Fetching record history",
			"dashboard_id", dashboardID,
			"start", q.TimeRange.Start(),
			"end", q.TimeRange.End())
		records, err = uc.repository.FindByTimeRange(ctx, dashboardID, *q.TimeRange, limit)
	} else {
		records, err = uc.repository.FindRecent(ctx, dashboardID, limit)
	}
	if err != nil {
		uc.logger.Error("Failed to fetch record history", err, "dashboard_id", dashboardID)
		return nil, fmt.Errorf("failed to fetch record history: %w", err)
	}

	uc.logger.Debug("Fetched record history", "count", len(records))
	return uc.aggregator.SortByTime(records, true), nil
}
