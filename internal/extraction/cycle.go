package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/service"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// CycleConfig - таймауты одного цикла.
type CycleConfig struct {
	ReloadTimeout  time.Duration
	ReadyTimeout   time.Duration
	CaptureTimeout time.Duration
	AnalyzeTimeout time.Duration
	// Interval нужен только для текста статуса "next refresh in N seconds".
	Interval time.Duration
}

func (c *CycleConfig) withDefaults() {
	if c.ReloadTimeout <= 0 {
		c.ReloadTimeout = 90 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 60 * time.Second
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 30 * time.Second
	}
	if c.AnalyzeTimeout <= 0 {
		c.AnalyzeTimeout = 90 * time.Second
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
}

// Cycle выполняет одну попытку reload -> проверка -> снимок -> анализ -> фиксация.
type Cycle struct {
	probe     ReadinessProbe
	analyzer  port.VisionAnalyzer
	artifacts port.ArtifactStore
	validator *service.RecordValidator
	state     *SharedState
	config    CycleConfig
	log       *logger.Logger

	now   func() time.Time
	newID func() string
}

func NewCycle(
	probe ReadinessProbe,
	analyzer port.VisionAnalyzer,
	artifacts port.ArtifactStore,
	validator *service.RecordValidator,
	state *SharedState,
	config CycleConfig,
	log *logger.Logger,
) *Cycle {
	config.withDefaults()
	if validator == nil {
		validator = service.NewRecordValidator(nil)
	}
	return &Cycle{
		probe:     probe,
		analyzer:  analyzer,
		artifacts: artifacts,
		validator: validator,
		state:     state,
		config:    config,
		log:       log,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// RunOnce выполняет цикл и фиксирует его итог в SharedState.
// Ошибки цикла не пробрасываются: они становятся исходом и статусом.
// Только потеря сессии попадает в CycleResult.Fatal.
func (c *Cycle) RunOnce(ctx context.Context, session port.PageSession) CycleResult {
	result := CycleResult{
		CycleID:   c.newID(),
		StartedAt: c.now(),
	}
	log := c.log.With("cycle_id", result.CycleID)

	log.Info("Starting extraction cycle")

	outcome := c.execute(ctx, session, log)

	if ctx.Err() != nil {
		result.Canceled = true
		result.Outcome = outcome
		result.FinishedAt = c.now()
		log.Info("Extraction cycle interrupted by shutdown")
		return result
	}

	if errors.Is(outcome.Err, port.ErrSessionLost) {
		result.Fatal = outcome.Err
	}

	if outcome.Kind.CapturesDebugArtifact() && result.Fatal == nil {
		if err := c.captureDebug(ctx, session); err != nil {
			log.Error("Failed to capture debug snapshot", err)
			if errors.Is(err, port.ErrSessionLost) {
				result.Fatal = fmt.Errorf("debug capture: %w", err)
			}
		}
	}

	result.Outcome = outcome
	result.Status = outcome.StatusText(c.config.Interval)
	result.FinishedAt = c.now()

	c.state.commitCycle(result)

	switch outcome.Kind {
	case valueobject.OutcomeUpdated:
		log.Info("Extraction cycle updated data",
			"metrics", len(outcome.Record.Metrics),
			"update_time", outcome.Record.UpdateTime,
			"duration", result.Duration().String(),
		)
	case valueobject.OutcomeFailed:
		log.Error("Extraction cycle failed", outcome.Err, "duration", result.Duration().String())
	default:
		log.Warn("Extraction cycle produced no data",
			"outcome", outcome.Kind.String(),
			"duration", result.Duration().String(),
		)
	}

	return result
}

func (c *Cycle) execute(ctx context.Context, session port.PageSession, log *logger.Logger) CycleOutcome {
	reloadCtx, cancel := context.WithTimeout(ctx, c.config.ReloadTimeout)
	err := session.Reload(reloadCtx)
	cancel()
	if err != nil {
		return Failed(fmt.Errorf("reload failed: %w", err))
	}

	if !c.probe.AwaitReady(ctx, session, c.config.ReadyTimeout) {
		return NotReady()
	}

	image, err := c.capture(ctx, session)
	if err != nil {
		return Failed(fmt.Errorf("snapshot capture failed: %w", err))
	}

	if c.artifacts != nil {
		if err := c.artifacts.Save(ctx, valueobject.ArtifactSnapshot, image); err != nil {
			// Снимок уже в памяти, анализ от диска не зависит.
			log.Warn("Failed to persist snapshot", "error", err.Error())
		}
	}

	analyzeCtx, cancel := context.WithTimeout(ctx, c.config.AnalyzeTimeout)
	record, err := c.analyzer.Analyze(analyzeCtx, image)
	cancel()
	if err != nil {
		if errors.Is(err, port.ErrMalformedAnalysis) {
			log.Warn("Analyzer returned malformed payload", "error", err.Error())
			return AnalysisEmpty()
		}
		return Failed(fmt.Errorf("analysis failed: %w", err))
	}

	normalized := c.validator.Normalize(record)
	if !normalized.IsUsable() {
		return AnalysisEmpty()
	}

	return Updated(normalized)
}

func (c *Cycle) capture(ctx context.Context, session port.PageSession) ([]byte, error) {
	captureCtx, cancel := context.WithTimeout(ctx, c.config.CaptureTimeout)
	defer cancel()

	image, err := session.CaptureSnapshot(captureCtx)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, errors.New("empty snapshot")
	}
	return image, nil
}

// captureDebug снимает страницу в отладочный слот. Цикл прерывает только
// ErrSessionLost от драйвера; таймаут снимка или ошибка диска - нет.
func (c *Cycle) captureDebug(ctx context.Context, session port.PageSession) error {
	image, err := c.capture(ctx, session)
	if err != nil {
		return err
	}
	if c.artifacts == nil {
		return nil
	}
	if err := c.artifacts.Save(ctx, valueobject.ArtifactDebug, image); err != nil {
		c.log.Warn("Failed to persist debug snapshot", "error", err.Error())
	}
	return nil
}
