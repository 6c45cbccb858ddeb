package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

type memRecordRepository struct {
	mu      sync.Mutex
	saved   []*entity.ArchivedRecord
	records []*entity.ArchivedRecord
	err     error
	lastTR  *valueobject.TimeRange
	lastLim int
}

func (m *memRecordRepository) Save(_ context.Context, r *entity.ArchivedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, r)
	return m.err
}

func (m *memRecordRepository) FindRecent(_ context.Context, _ string, limit int) ([]*entity.ArchivedRecord, error) {
	m.lastLim = limit
	return m.records, m.err
}

func (m *memRecordRepository) FindByTimeRange(_ context.Context, _ string, tr valueobject.TimeRange, limit int) ([]*entity.ArchivedRecord, error) {
	m.lastTR = &tr
	m.lastLim = limit
	return m.records, m.err
}

func (m *memRecordRepository) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type captureEvents struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (c *captureEvents) PublishEvent(_ context.Context, subject string, _ interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	return c.err
}

func (c *captureEvents) Close() error { return nil }

type captureNotifier struct {
	mu     sync.Mutex
	states []*dto.StateDTO
}

func (c *captureNotifier) BroadcastState(s *dto.StateDTO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, s)
}

func (c *captureNotifier) ClientCount() int { return 0 }

type captureMetrics struct {
	mu      sync.Mutex
	metrics []port.CycleMetric
}

func (c *captureMetrics) Publish(_ context.Context, m port.CycleMetric) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, m)
	return nil
}

func (c *captureMetrics) Flush(context.Context) error { return nil }

type captureArchiver struct {
	mu   sync.Mutex
	cmds []ArchiveArtifactCommand
}

func (c *captureArchiver) Execute(_ context.Context, cmd ArchiveArtifactCommand) (*ArchivedArtifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
	return &ArchivedArtifact{Kind: cmd.Kind}, nil
}

type staticHost struct{ err error }

func (s staticHost) Collect(context.Context) (*dto.HostStatsDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.HostStatsDTO{CPUPercent: 12.5}, nil
}

func updatedReport() CycleReport {
	record := &entity.MetricRecord{Metrics: []entity.MetricEntry{{Name: "GMV", Value: "1"}}}
	return CycleReport{
		Event: port.CycleEvent{
			CycleID:     "c-1",
			DashboardID: "main",
			Outcome:     valueobject.OutcomeUpdated.String(),
			Record:      record,
			FinishedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		State:  &dto.StateDTO{Status: "Data updated.", Data: record},
		Metric: port.CycleMetric{Outcome: valueobject.OutcomeUpdated, MetricCount: 1},
	}
}

func TestPublishCycleFansOutUpdated(t *testing.T) {
	records := &memRecordRepository{}
	events := &captureEvents{}
	notifier := &captureNotifier{}
	metrics := &captureMetrics{}
	archiver := &captureArchiver{}

	uc := NewPublishCycleUseCase(PublishSinks{
		Records:  records,
		Events:   events,
		Notifier: notifier,
		Metrics:  metrics,
		Archiver: archiver,
		Host:     staticHost{},
	}, PublishCycleConfig{SubjectPrefix: "dash.cycle."}, logger.NewNop())

	report := updatedReport()
	require.NoError(t, uc.Execute(context.Background(), report))

	require.Len(t, records.saved, 1)
	assert.Equal(t, "c-1", records.saved[0].CycleID)
	assert.Equal(t, []string{"dash.cycle.updated"}, events.subjects)
	require.Len(t, notifier.states, 1)
	require.NotNil(t, notifier.states[0].Host)
	assert.Nil(t, report.State.Host, "caller's state must not be mutated")
	assert.Len(t, metrics.metrics, 1)
	require.Len(t, archiver.cmds, 1)
	assert.Equal(t, valueobject.ArtifactSnapshot, archiver.cmds[0].Kind)
}

func TestPublishCycleArchivesDebugForFailures(t *testing.T) {
	records := &memRecordRepository{}
	archiver := &captureArchiver{}
	uc := NewPublishCycleUseCase(PublishSinks{Records: records, Archiver: archiver}, PublishCycleConfig{}, logger.NewNop())

	for _, outcome := range []valueobject.OutcomeKind{valueobject.OutcomeNotReady, valueobject.OutcomeFailed, valueobject.OutcomeAnalysisEmpty} {
		report := CycleReport{Event: port.CycleEvent{CycleID: "c", DashboardID: "main", Outcome: outcome.String()}}
		require.NoError(t, uc.Execute(context.Background(), report))
	}

	assert.Empty(t, records.saved)
	require.Len(t, archiver.cmds, 2)
	assert.Equal(t, valueobject.ArtifactDebug, archiver.cmds[0].Kind)
	assert.Equal(t, valueobject.ArtifactDebug, archiver.cmds[1].Kind)
}

func TestPublishCycleTerminal(t *testing.T) {
	events := &captureEvents{}
	metrics := &captureMetrics{}
	archiver := &captureArchiver{}
	uc := NewPublishCycleUseCase(PublishSinks{Events: events, Metrics: metrics, Archiver: archiver}, PublishCycleConfig{}, logger.NewNop())

	require.NoError(t, uc.Execute(context.Background(), CycleReport{Terminal: true, Event: port.CycleEvent{DashboardID: "main"}}))

	assert.Equal(t, []string{"dashboard.cycle.terminated"}, events.subjects)
	assert.Empty(t, metrics.metrics)
	assert.Empty(t, archiver.cmds)
}

func TestPublishCycleSinkFailureDoesNotStopOthers(t *testing.T) {
	events := &captureEvents{err: errors.New("nats down")}
	notifier := &captureNotifier{}
	var failed []string
	uc := NewPublishCycleUseCase(
		PublishSinks{Events: events, Notifier: notifier, Host: staticHost{err: errors.New("no stats")}},
		PublishCycleConfig{OnSinkFailure: func(sink string) { failed = append(failed, sink) }},
		logger.NewNop(),
	)

	err := uc.Execute(context.Background(), updatedReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats")
	require.Len(t, notifier.states, 1)
	assert.Nil(t, notifier.states[0].Host)
	assert.Equal(t, []string{"nats"}, failed)
}
