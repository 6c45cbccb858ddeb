package extraction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingObserver struct {
	mu      sync.Mutex
	results []CycleResult
	phases  []valueobject.LoopPhase
}

func (o *recordingObserver) OnCycle(_ context.Context, result CycleResult, snap Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
	o.phases = append(o.phases, snap.Phase)
}

func newTestLoop(launcher port.BrowserLauncher, analyzer port.VisionAnalyzer, artifacts port.ArtifactStore, cookie string) *Loop {
	state := NewSharedState(testInterval)
	log := logger.NewNop()
	cycle := newTestCycle(analyzer, artifacts, state)
	return NewLoop(
		launcher,
		NewTextPresenceProbe("今日实时数据", log),
		cycle,
		state,
		artifacts,
		LoopConfig{
			TargetURL:         "https://dashboard.example/",
			Cookie:            port.SessionCookie{Name: "satoken", Value: cookie, Domain: "dashboard.example", Path: "/"},
			NavigationTimeout: time.Second,
			FirstReadyTimeout: 20 * time.Millisecond,
			Interval:          testInterval,
		},
		log,
	)
}

func TestLoopMissingCredentialIsTerminal(t *testing.T) {
	launcher := &fakeLauncher{session: &fakeSession{}}
	loop := newTestLoop(launcher, &stubAnalyzer{}, newMemArtifactStore(), "")

	err := loop.Run(context.Background())

	if !errors.Is(err, ErrTerminated) || !errors.Is(err, port.ErrCredentialMissing) {
		t.Fatalf("Run() error = %v, want ErrTerminated wrapping ErrCredentialMissing", err)
	}
	if len(launcher.opened) != 0 {
		t.Fatalf("browser launched without credential")
	}
	snap := loop.State().Snapshot()
	if snap.Phase != valueobject.PhaseTerminated || snap.Status != StatusCredentialMissing || snap.Record != nil {
		t.Fatalf("unexpected state: %+v", snap)
	}
}

func TestLoopFirstReadinessFailureIsTerminal(t *testing.T) {
	session := &fakeSession{readySeq: []bool{false}, images: [][]byte{[]byte("login-page")}}
	artifacts := newMemArtifactStore()
	loop := newTestLoop(&fakeLauncher{session: session}, &stubAnalyzer{}, artifacts, "token")

	err := loop.Run(context.Background())

	if !errors.Is(err, ErrTerminated) {
		t.Fatalf("Run() error = %v, want ErrTerminated", err)
	}
	if session.reloads != 0 {
		t.Fatalf("reloads = %d, bootstrap must not retry", session.reloads)
	}
	if !session.isClosed() {
		t.Fatalf("session not released")
	}
	if got := artifacts.get(valueobject.ArtifactDebug); got != "login-page" {
		t.Fatalf("debug artifact = %q", got)
	}
	if status, _ := loop.State().Read(); status != StatusPageUnverifiable {
		t.Fatalf("status = %q", status)
	}
}

func TestLoopSessionOpenFailureIsTerminal(t *testing.T) {
	loop := newTestLoop(&fakeLauncher{err: errors.New("chrome not found")}, &stubAnalyzer{}, newMemArtifactStore(), "token")

	if err := loop.Run(context.Background()); !errors.Is(err, ErrTerminated) {
		t.Fatalf("Run() error = %v", err)
	}
	if loop.State().Snapshot().Phase != valueobject.PhaseTerminated {
		t.Fatalf("phase = %s", loop.State().Snapshot().Phase)
	}
}

func TestLoopKeepsCyclingAfterNotReady(t *testing.T) {
	// bootstrap ready, cycle 1 ready, cycle 2 not ready, cycle 3 ready
	session := &fakeSession{readySeq: []bool{true, true, false, true}}
	analyzer := &stubAnalyzer{replies: []analyzerReply{{record: gmvRecord("1")}, {record: gmvRecord("3")}}}
	loop := newTestLoop(&fakeLauncher{session: session}, analyzer, newMemArtifactStore(), "token")
	observer := &recordingObserver{}
	loop.Subscribe(observer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeps := 0
	loop.sleep = func(ctx context.Context, d time.Duration) bool {
		if d != testInterval {
			t.Errorf("sleep = %v, want fixed interval", d)
		}
		sleeps++
		if sleeps == 3 {
			cancel()
			return false
		}
		return true
	}

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not stop after cancellation")
	}

	kinds := make([]valueobject.OutcomeKind, 0, len(observer.results))
	for _, r := range observer.results {
		kinds = append(kinds, r.Outcome.Kind)
	}
	want := []valueobject.OutcomeKind{valueobject.OutcomeUpdated, valueobject.OutcomeNotReady, valueobject.OutcomeUpdated}
	if len(kinds) != len(want) {
		t.Fatalf("outcomes = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("outcomes = %v, want %v", kinds, want)
		}
	}

	snap := loop.State().Snapshot()
	if snap.Record.Metrics[0].Value != "3" || snap.Phase != valueobject.PhaseSteady {
		t.Fatalf("unexpected final state: %+v", snap)
	}
	if !session.isClosed() {
		t.Fatalf("session not released on shutdown")
	}
}

func TestLoopSessionLossTerminates(t *testing.T) {
	session := &fakeSession{
		reloadErrs:  []error{errors.New("target crashed")},
		captureErrs: []error{errors.New("connection closed")},
	}
	loop := newTestLoop(&fakeLauncher{session: session}, &stubAnalyzer{}, newMemArtifactStore(), "token")
	loop.sleep = func(context.Context, time.Duration) bool {
		t.Errorf("loop slept after fatal session error")
		return false
	}

	err := loop.Run(context.Background())

	if !errors.Is(err, ErrTerminated) || !errors.Is(err, port.ErrSessionLost) {
		t.Fatalf("Run() error = %v", err)
	}
	snap := loop.State().Snapshot()
	if snap.Phase != valueobject.PhaseTerminated {
		t.Fatalf("phase = %s", snap.Phase)
	}
	if !session.isClosed() {
		t.Fatalf("session not released")
	}
}

func TestLoopRunSingle(t *testing.T) {
	session := &fakeSession{}
	analyzer := &stubAnalyzer{replies: []analyzerReply{{record: gmvRecord("7")}}}
	loop := newTestLoop(&fakeLauncher{session: session}, analyzer, newMemArtifactStore(), "token")

	result, err := loop.RunSingle(context.Background())
	if err != nil {
		t.Fatalf("RunSingle() error = %v", err)
	}
	if result.Outcome.Kind != valueobject.OutcomeUpdated {
		t.Fatalf("outcome = %s", result.Outcome.Kind)
	}
	if len(session.navigated) != 1 || session.navigated[0] != "https://dashboard.example/" {
		t.Fatalf("navigated = %v", session.navigated)
	}
	if !session.isClosed() {
		t.Fatalf("session not released")
	}
}
