package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/repository"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// CycleReport - итог цикла (или остановки цикла), который нужно разослать.
type CycleReport struct {
	Event  port.CycleEvent
	State  *dto.StateDTO
	Metric port.CycleMetric
	// Terminal - цикл остановлен; записи и снимки не публикуются.
	Terminal bool
}

// ArtifactArchiver - выгрузка снимка в архив (ArchiveArtifactUseCase).
type ArtifactArchiver interface {
	Execute(ctx context.Context, cmd ArchiveArtifactCommand) (*ArchivedArtifact, error)
}

// PublishSinks - необязательные получатели; nil отключает получателя.
type PublishSinks struct {
	Records  repository.RecordRepository
	Mirror   port.StateMirror
	Events   port.EventPublisher
	Notifier port.NotificationService
	Metrics  port.MetricsPublisher
	Archiver ArtifactArchiver
	Host     port.HostStatsCollector
}

type PublishCycleConfig struct {
	SubjectPrefix string
	SinkTimeout   time.Duration
	// OnSinkFailure вызывается на каждую ошибку получателя (счетчик Prometheus).
	OnSinkFailure func(sink string)
}

// PublishCycleUseCase раздает итог цикла всем подключенным получателям.
// Получатели независимы: отказ одного не мешает остальным и не влияет на цикл.
type PublishCycleUseCase struct {
	sinks  PublishSinks
	config PublishCycleConfig
	logger *logger.Logger
}

func NewPublishCycleUseCase(sinks PublishSinks, config PublishCycleConfig, log *logger.Logger) *PublishCycleUseCase {
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = 5 * time.Second
	}
	config.SubjectPrefix = strings.Trim(config.SubjectPrefix, ".")
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "dashboard.cycle"
	}
	return &PublishCycleUseCase{sinks: sinks, config: config, logger: log}
}

// Subject возвращает NATS subject для исхода: <prefix>.<outcome>.
func (uc *PublishCycleUseCase) Subject(report CycleReport) string {
	if report.Terminal {
		return uc.config.SubjectPrefix + ".terminated"
	}
	return uc.config.SubjectPrefix + "." + report.Event.Outcome
}

// Execute возвращает первую ошибку получателя; все ошибки логируются.
func (uc *PublishCycleUseCase) Execute(ctx context.Context, report CycleReport) error {
	state := report.State
	if state != nil && uc.sinks.Host != nil {
		state = uc.withHostStats(ctx, state)
	}

	var g errgroup.Group
	run := func(sink string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			sinkCtx, cancel := context.WithTimeout(ctx, uc.config.SinkTimeout)
			defer cancel()
			if err := fn(sinkCtx); err != nil {
				uc.logger.Warn("Cycle sink failed",
					"sink", sink,
					"cycle_id", report.Event.CycleID,
					"error", err.Error())
				if uc.config.OnSinkFailure != nil {
					uc.config.OnSinkFailure(sink)
				}
				return fmt.Errorf("%s: %w", sink, err)
			}
			return nil
		})
	}

	if uc.sinks.Notifier != nil && state != nil {
		run("websocket", func(context.Context) error {
			uc.sinks.Notifier.BroadcastState(state)
			return nil
		})
	}
	if uc.sinks.Mirror != nil && state != nil {
		run("redis", func(ctx context.Context) error {
			return uc.sinks.Mirror.Store(ctx, state)
		})
	}
	if uc.sinks.Events != nil {
		subject := uc.Subject(report)
		run("nats", func(ctx context.Context) error {
			return uc.sinks.Events.PublishEvent(ctx, subject, report.Event)
		})
	}
	if uc.sinks.Metrics != nil && !report.Terminal {
		run("cloudwatch", func(ctx context.Context) error {
			return uc.sinks.Metrics.Publish(ctx, report.Metric)
		})
	}

	if !report.Terminal {
		uc.publishArtifacts(ctx, report, run)
	}

	return g.Wait()
}

func (uc *PublishCycleUseCase) publishArtifacts(
	_ context.Context,
	report CycleReport,
	run func(string, func(context.Context) error),
) {
	outcome := valueobject.OutcomeKind(report.Event.Outcome)

	if uc.sinks.Records != nil && outcome == valueobject.OutcomeUpdated && report.Event.Record != nil {
		run("records", func(ctx context.Context) error {
			archived, err := entity.NewArchivedRecord(
				report.Event.CycleID,
				report.Event.DashboardID,
				report.Event.FinishedAt,
				report.Event.Record,
			)
			if err != nil {
				return err
			}
			return uc.sinks.Records.Save(ctx, archived)
		})
	}

	if uc.sinks.Archiver == nil {
		return
	}

	var kind valueobject.ArtifactKind
	switch {
	case outcome == valueobject.OutcomeUpdated:
		kind = valueobject.ArtifactSnapshot
	case outcome.CapturesDebugArtifact():
		kind = valueobject.ArtifactDebug
	default:
		return
	}

	run("artifacts", func(ctx context.Context) error {
		_, err := uc.sinks.Archiver.Execute(ctx, ArchiveArtifactCommand{
			DashboardID: report.Event.DashboardID,
			CycleID:     report.Event.CycleID,
			Kind:        kind,
			CapturedAt:  report.Event.FinishedAt,
		})
		return err
	})
}

func (uc *PublishCycleUseCase) withHostStats(ctx context.Context, state *dto.StateDTO) *dto.StateDTO {
	hostCtx, cancel := context.WithTimeout(ctx, uc.config.SinkTimeout)
	defer cancel()

	stats, err := uc.sinks.Host.Collect(hostCtx)
	if err != nil {
		uc.logger.Debug("Host stats unavailable", "error", err.Error())
		return state
	}

	enriched := *state
	enriched.Host = stats
	return &enriched
}
