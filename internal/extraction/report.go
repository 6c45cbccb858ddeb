package extraction

import (
	"context"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/application/usecase"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// CyclePublisher - usecase.PublishCycleUseCase.
type CyclePublisher interface {
	Execute(ctx context.Context, report usecase.CycleReport) error
}

// NewReport собирает итог цикла для получателей. Уведомление без цикла
// (переход в Terminated) дает отчет с Terminal = true.
func NewReport(dashboardID string, result CycleResult, snap Snapshot) usecase.CycleReport {
	event := port.CycleEvent{
		CycleID:     result.CycleID,
		DashboardID: dashboardID,
		Outcome:     result.Outcome.Kind.String(),
		Status:      result.Status,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
	}
	if result.Outcome.Err != nil {
		event.Error = result.Outcome.Err.Error()
	}
	if result.Fatal != nil {
		event.Error = result.Fatal.Error()
	}

	report := usecase.CycleReport{
		Event:    event,
		State:    snap.ToDTO(),
		Terminal: !result.IsCycle(),
	}
	if report.Terminal {
		report.Event.Outcome = snap.Phase.String()
		return report
	}

	if result.Outcome.Record.IsUsable() {
		report.Event.Record = result.Outcome.Record.Clone()
	}
	report.Metric = port.CycleMetric{
		Outcome:   result.Outcome.Kind,
		Duration:  result.Duration(),
		Timestamp: result.FinishedAt,
	}
	if result.Outcome.Record != nil {
		report.Metric.MetricCount = len(result.Outcome.Record.Metrics)
	}
	return report
}

// PublishObserver рассылает каждый цикл через publisher. Ошибки получателей
// уже залогированы публикатором, здесь они только отмечаются.
func PublishObserver(publisher CyclePublisher, dashboardID string, log *logger.Logger) CycleObserver {
	return ObserverFunc(func(ctx context.Context, result CycleResult, snap Snapshot) {
		if err := publisher.Execute(ctx, NewReport(dashboardID, result, snap)); err != nil {
			log.Debug("Cycle published with sink errors", "cycle_id", result.CycleID, "error", err.Error())
		}
	})
}
