package extraction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// ErrTerminated возвращается, когда цикл остановился без возможности продолжить.
var ErrTerminated = errors.New("extraction loop terminated")

// CycleObserver получает результат каждого зафиксированного цикла.
// Вызывается из горутины цикла; долгие операции должны ограничивать себя сами.
type CycleObserver interface {
	OnCycle(ctx context.Context, result CycleResult, snapshot Snapshot)
}

// ObserverFunc адаптирует функцию к CycleObserver.
type ObserverFunc func(ctx context.Context, result CycleResult, snapshot Snapshot)

func (f ObserverFunc) OnCycle(ctx context.Context, result CycleResult, snapshot Snapshot) {
	f(ctx, result, snapshot)
}

type LoopConfig struct {
	TargetURL         string
	Cookie            port.SessionCookie
	NavigationTimeout time.Duration
	FirstReadyTimeout time.Duration
	Interval          time.Duration
}

// Loop владеет браузерной сессией и бесконечно запускает циклы:
// Bootstrapping -> Steady -> Terminated. Ошибки отдельных циклов
// повторяются через фиксированный интервал; ошибки запуска и потеря
// сессии завершают работу без перезапуска.
type Loop struct {
	launcher  port.BrowserLauncher
	probe     ReadinessProbe
	cycle     *Cycle
	state     *SharedState
	artifacts port.ArtifactStore
	config    LoopConfig
	log       *logger.Logger

	observersMu sync.RWMutex
	observers   []CycleObserver

	// циклы никогда не пересекаются, даже если RunSingle вызван параллельно с Run
	runMu sync.Mutex
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewLoop(
	launcher port.BrowserLauncher,
	probe ReadinessProbe,
	cycle *Cycle,
	state *SharedState,
	artifacts port.ArtifactStore,
	config LoopConfig,
	log *logger.Logger,
) *Loop {
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = 90 * time.Second
	}
	if config.FirstReadyTimeout <= 0 {
		config.FirstReadyTimeout = 30 * time.Second
	}
	if config.Interval <= 0 {
		config.Interval = 15 * time.Second
	}
	return &Loop{
		launcher:  launcher,
		probe:     probe,
		cycle:     cycle,
		state:     state,
		artifacts: artifacts,
		config:    config,
		log:       log.With("component", "extraction_loop"),
		sleep:     sleepContext,
	}
}

// Subscribe добавляет наблюдателя за циклами.
func (l *Loop) Subscribe(observer CycleObserver) {
	l.observersMu.Lock()
	defer l.observersMu.Unlock()
	l.observers = append(l.observers, observer)
}

// State возвращает разделяемое состояние цикла.
func (l *Loop) State() *SharedState {
	return l.state
}

// Run работает до отмены ctx или до терминальной ошибки.
// При отмене ctx возвращает nil; терминальная ошибка оборачивает ErrTerminated.
func (l *Loop) Run(ctx context.Context) error {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	session, err := l.bootstrap(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer l.release(session)

	l.state.setPhase(valueobject.PhaseSteady, StatusSteady)
	l.log.Info("Initial page verification passed, entering refresh loop",
		"interval", l.config.Interval.String(),
	)

	for {
		result := l.cycle.RunOnce(ctx, session)
		if result.Canceled || ctx.Err() != nil {
			return nil
		}

		l.notify(ctx, result)

		if result.Fatal != nil {
			return l.terminate(ctx, session, result.Fatal)
		}

		if !l.sleep(ctx, l.config.Interval) {
			return nil
		}
	}
}

// RunSingle поднимает сессию, выполняет ровно один цикл и освобождает ресурсы.
func (l *Loop) RunSingle(ctx context.Context) (CycleResult, error) {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	session, err := l.bootstrap(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	defer l.release(session)

	l.state.setPhase(valueobject.PhaseSteady, StatusSteady)

	result := l.cycle.RunOnce(ctx, session)
	if !result.Canceled {
		l.notify(ctx, result)
	}
	if result.Fatal != nil {
		return result, l.terminate(ctx, session, result.Fatal)
	}
	return result, nil
}

func (l *Loop) bootstrap(ctx context.Context) (port.PageSession, error) {
	if l.config.Cookie.Value == "" {
		l.enterTerminated(StatusCredentialMissing)
		l.log.Error("Cannot start extraction loop", port.ErrCredentialMissing)
		return nil, fmt.Errorf("%w: %w", ErrTerminated, port.ErrCredentialMissing)
	}

	session, err := l.launcher.Open(ctx, l.config.Cookie)
	if err != nil {
		l.enterTerminated(fmt.Sprintf(statusSessionOpenFormat, err))
		l.log.Error("Failed to open browser session", err)
		return nil, fmt.Errorf("%w: open session: %w", ErrTerminated, err)
	}
	l.log.Info("Browser session opened, session cookie applied", "cookie", l.config.Cookie.Name)

	l.log.Info("Navigating to target page", "url", l.config.TargetURL)
	navCtx, cancel := context.WithTimeout(ctx, l.config.NavigationTimeout)
	err = session.Navigate(navCtx, l.config.TargetURL)
	cancel()
	if err != nil {
		l.captureDebugBestEffort(ctx, session)
		l.release(session)
		l.enterTerminated(fmt.Sprintf(statusNavigationFormat, err))
		l.log.Error("Initial navigation failed", err, "url", l.config.TargetURL)
		return nil, fmt.Errorf("%w: navigate: %w", ErrTerminated, err)
	}

	if !l.probe.AwaitReady(ctx, session, l.config.FirstReadyTimeout) {
		l.captureDebugBestEffort(ctx, session)
		l.release(session)
		l.enterTerminated(StatusPageUnverifiable)
		l.log.Error("Initial page verification failed", errors.New(StatusPageUnverifiable))
		return nil, fmt.Errorf("%w: initial readiness check failed", ErrTerminated)
	}

	return session, nil
}

func (l *Loop) terminate(ctx context.Context, session port.PageSession, cause error) error {
	l.captureDebugBestEffort(ctx, session)
	l.enterTerminated(fmt.Sprintf(statusSessionFatalFormat, cause))
	l.log.Error("Browser session is no longer usable, extraction stopped", cause)
	return fmt.Errorf("%w: %w", ErrTerminated, cause)
}

func (l *Loop) enterTerminated(status string) {
	l.state.setPhase(valueobject.PhaseTerminated, status)
	l.notify(context.Background(), CycleResult{Status: status, FinishedAt: time.Now()})
}

func (l *Loop) notify(ctx context.Context, result CycleResult) {
	snap := l.state.Snapshot()

	l.observersMu.RLock()
	observers := append([]CycleObserver(nil), l.observers...)
	l.observersMu.RUnlock()

	for _, o := range observers {
		o.OnCycle(ctx, result, snap)
	}
}

func (l *Loop) captureDebugBestEffort(ctx context.Context, session port.PageSession) {
	if session == nil || l.artifacts == nil {
		return
	}

	// ctx может быть уже отменен - снимок все равно пробуем сделать.
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	image, err := session.CaptureSnapshot(captureCtx)
	if err != nil || len(image) == 0 {
		l.log.Warn("Debug snapshot unavailable", "error", fmt.Sprint(err))
		return
	}
	if err := l.artifacts.Save(captureCtx, valueobject.ArtifactDebug, image); err != nil {
		l.log.Warn("Failed to persist debug snapshot", "error", err.Error())
	}
}

func (l *Loop) release(session port.PageSession) {
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		l.log.Warn("Failed to close browser session", "error", err.Error())
		return
	}
	l.log.Info("Browser session released")
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
