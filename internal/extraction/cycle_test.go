package extraction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/service"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

const testInterval = 15 * time.Second

func newTestCycle(analyzer port.VisionAnalyzer, artifacts port.ArtifactStore, state *SharedState) *Cycle {
	log := logger.NewNop()
	return NewCycle(
		NewTextPresenceProbe("今日实时数据", log),
		analyzer,
		artifacts,
		service.NewRecordValidator(nil),
		state,
		CycleConfig{
			ReadyTimeout:   20 * time.Millisecond,
			ReloadTimeout:  time.Second,
			CaptureTimeout: time.Second,
			AnalyzeTimeout: time.Second,
			Interval:       testInterval,
		},
		log,
	)
}

func TestCycleFirstSuccessPublishesRecord(t *testing.T) {
	state := NewSharedState(testInterval)
	artifacts := newMemArtifactStore()
	analyzer := &stubAnalyzer{replies: []analyzerReply{{record: gmvRecord("1000")}}}
	session := &fakeSession{images: [][]byte{[]byte("shot-1")}}

	result := newTestCycle(analyzer, artifacts, state).RunOnce(context.Background(), session)

	if result.Outcome.Kind != valueobject.OutcomeUpdated {
		t.Fatalf("outcome = %s, want updated", result.Outcome.Kind)
	}
	status, record := state.Read()
	if status != "Data updated. Next refresh in 15 seconds." {
		t.Fatalf("status = %q", status)
	}
	if diff := cmp.Diff(gmvRecord("1000"), record); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	if got := artifacts.get(valueobject.ArtifactSnapshot); got != "shot-1" {
		t.Fatalf("snapshot artifact = %q, want shot-1", got)
	}
	if artifacts.count(valueobject.ArtifactDebug) != 0 {
		t.Fatalf("debug artifact written on success")
	}
	if string(analyzer.images[0]) != "shot-1" {
		t.Fatalf("analyzer received %q", analyzer.images[0])
	}
}

func TestCycleReadinessTimeoutKeepsLastRecord(t *testing.T) {
	state := NewSharedState(testInterval)
	artifacts := newMemArtifactStore()
	analyzer := &stubAnalyzer{replies: []analyzerReply{{record: gmvRecord("1000")}}}
	session := &fakeSession{
		readySeq: []bool{true, false},
		images:   [][]byte{[]byte("shot-1"), []byte("debug-2")},
	}
	cycle := newTestCycle(analyzer, artifacts, state)

	first := cycle.RunOnce(context.Background(), session)
	second := cycle.RunOnce(context.Background(), session)

	if first.Outcome.Kind != valueobject.OutcomeUpdated || second.Outcome.Kind != valueobject.OutcomeNotReady {
		t.Fatalf("outcomes = %s, %s", first.Outcome.Kind, second.Outcome.Kind)
	}
	if analyzer.calls != 1 {
		t.Fatalf("analyzer calls = %d, want 1 (skipped when not ready)", analyzer.calls)
	}

	status, record := state.Read()
	if status != StatusNotReady {
		t.Fatalf("status = %q, want %q", status, StatusNotReady)
	}
	if diff := cmp.Diff(gmvRecord("1000"), record); diff != "" {
		t.Fatalf("record changed after NotReady (-want +got):\n%s", diff)
	}
	if got := artifacts.get(valueobject.ArtifactDebug); got != "debug-2" {
		t.Fatalf("debug artifact = %q, want debug-2", got)
	}
	if second.Fatal != nil {
		t.Fatalf("NotReady reported fatal: %v", second.Fatal)
	}
}

func TestCycleEmptyAnalysisLeavesRecordUntouched(t *testing.T) {
	state := NewSharedState(testInterval)
	state.Write("previous", gmvRecord("1000"))
	artifacts := newMemArtifactStore()
	analyzer := &stubAnalyzer{replies: []analyzerReply{{record: &entity.MetricRecord{Metrics: []entity.MetricEntry{}}}}}

	result := newTestCycle(analyzer, artifacts, state).RunOnce(context.Background(), &fakeSession{})

	if result.Outcome.Kind != valueobject.OutcomeAnalysisEmpty {
		t.Fatalf("outcome = %s, want analysis_empty", result.Outcome.Kind)
	}
	status, record := state.Read()
	if status != StatusAnalysisEmpty {
		t.Fatalf("status = %q", status)
	}
	if record == nil || record.Metrics[0].Value != "1000" {
		t.Fatalf("record = %+v, want previous record", record)
	}
	if artifacts.count(valueobject.ArtifactDebug) != 0 {
		t.Fatalf("AnalysisEmpty must not write a debug artifact")
	}
}

func TestCycleMalformedAnalysisIsAnalysisEmpty(t *testing.T) {
	state := NewSharedState(testInterval)
	analyzer := &stubAnalyzer{replies: []analyzerReply{{err: fmt.Errorf("decode: %w", port.ErrMalformedAnalysis)}}}

	result := newTestCycle(analyzer, newMemArtifactStore(), state).RunOnce(context.Background(), &fakeSession{})

	if result.Outcome.Kind != valueobject.OutcomeAnalysisEmpty {
		t.Fatalf("outcome = %s, want analysis_empty", result.Outcome.Kind)
	}
	if _, record := state.Read(); record != nil {
		t.Fatalf("record = %+v, want nil", record)
	}
}

func TestCycleFailuresAreRecoverable(t *testing.T) {
	tests := []struct {
		name     string
		session  *fakeSession
		analyzer *stubAnalyzer
	}{
		{
			name:     "reload error",
			session:  &fakeSession{reloadErrs: []error{errors.New("net::ERR_TIMED_OUT")}},
			analyzer: &stubAnalyzer{},
		},
		{
			name:     "capture error",
			session:  &fakeSession{captureErrs: []error{errors.New("capture failed"), nil}},
			analyzer: &stubAnalyzer{},
		},
		{
			name:     "analyzer transport error",
			session:  &fakeSession{},
			analyzer: &stubAnalyzer{replies: []analyzerReply{{err: errors.New("502 bad gateway")}}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state := NewSharedState(testInterval)
			artifacts := newMemArtifactStore()

			result := newTestCycle(tc.analyzer, artifacts, state).RunOnce(context.Background(), tc.session)

			if result.Outcome.Kind != valueobject.OutcomeFailed || result.Outcome.Err == nil {
				t.Fatalf("outcome = %+v, want failed with cause", result.Outcome)
			}
			if result.Fatal != nil {
				t.Fatalf("Fatal = %v, want nil", result.Fatal)
			}
			if status, _ := state.Read(); status != StatusCycleFailed {
				t.Fatalf("status = %q", status)
			}
			if artifacts.count(valueobject.ArtifactDebug) != 1 {
				t.Fatalf("debug artifact saves = %d, want 1", artifacts.count(valueobject.ArtifactDebug))
			}
		})
	}
}

func TestCycleDebugCaptureFailureMeansSessionLost(t *testing.T) {
	state := NewSharedState(testInterval)
	session := &fakeSession{
		reloadErrs:  []error{errors.New("target closed")},
		captureErrs: []error{fmt.Errorf("%w: screenshot: websocket: close 1006", port.ErrSessionLost)},
	}

	result := newTestCycle(&stubAnalyzer{}, newMemArtifactStore(), state).RunOnce(context.Background(), session)

	if !errors.Is(result.Fatal, port.ErrSessionLost) {
		t.Fatalf("Fatal = %v, want ErrSessionLost", result.Fatal)
	}
}

func TestCycleDebugCaptureTimeoutIsRecoverable(t *testing.T) {
	state := NewSharedState(testInterval)
	session := &fakeSession{
		readySeq:    []bool{false},
		captureErrs: []error{context.DeadlineExceeded},
	}

	result := newTestCycle(&stubAnalyzer{}, newMemArtifactStore(), state).RunOnce(context.Background(), session)

	if result.Fatal != nil {
		t.Fatalf("Fatal = %v, want nil for a capture timeout", result.Fatal)
	}
	if result.Outcome.Kind != valueobject.OutcomeNotReady {
		t.Fatalf("outcome = %s, want not_ready", result.Outcome.Kind)
	}
	if status, _ := state.Read(); status != StatusNotReady {
		t.Fatalf("status = %q, want %q", status, StatusNotReady)
	}
}

func TestCycleCanceledDoesNotTouchState(t *testing.T) {
	state := NewSharedState(testInterval)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{reloadErrs: []error{context.Canceled}}
	result := newTestCycle(&stubAnalyzer{}, newMemArtifactStore(), state).RunOnce(ctx, session)

	if !result.Canceled {
		t.Fatalf("Canceled = false")
	}
	if status, _ := state.Read(); status != StatusInitializing {
		t.Fatalf("status = %q, want untouched", status)
	}
	if snap := state.Snapshot(); snap.Cycles != 0 {
		t.Fatalf("cycles = %d, want 0", snap.Cycles)
	}
}
