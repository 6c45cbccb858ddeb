package extraction

import (
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

func TestSharedStateInitialValue(t *testing.T) {
	state := NewSharedState(time.Second)

	status, record := state.Read()
	if status != "Initializing..." || record != nil {
		t.Fatalf("Read() = %q, %+v", status, record)
	}
	if state.Snapshot().Phase != valueobject.PhaseBootstrapping {
		t.Fatalf("phase = %s", state.Snapshot().Phase)
	}
}

func TestSharedStateWriteNilKeepsRecord(t *testing.T) {
	state := NewSharedState(time.Second)
	state.Write("ok", gmvRecord("1"))
	state.Write("degraded", nil)

	status, record := state.Read()
	if status != "degraded" || record == nil || record.Metrics[0].Value != "1" {
		t.Fatalf("Read() = %q, %+v", status, record)
	}
}

func TestSharedStateWriteCopiesRecord(t *testing.T) {
	state := NewSharedState(time.Second)
	rec := gmvRecord("1")
	state.Write("ok", rec)
	rec.Metrics[0].Value = "mutated"

	if _, got := state.Read(); got.Metrics[0].Value != "1" {
		t.Fatalf("state shares record with writer")
	}
}

// Читатели не должны видеть статус одной записи вместе с записью другой.
func TestSharedStateNoTornReads(t *testing.T) {
	state := NewSharedState(time.Second)
	state.Write("v0", gmvRecord("0"))

	const writes = 2000
	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan error, 8)

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := state.Snapshot()
				want := "v" + snap.Record.Metrics[0].Value
				if snap.Status != want {
					errs <- fmt.Errorf("torn read: status %q with record %q", snap.Status, snap.Record.Metrics[0].Value)
					return
				}
			}
		}()
	}

	for i := 1; i <= writes; i++ {
		n := strconv.Itoa(i)
		state.Write("v"+n, gmvRecord(n))
	}
	close(done)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}

func TestSnapshotToDTO(t *testing.T) {
	state := NewSharedState(15 * time.Second)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state.commitCycle(CycleResult{
		CycleID:    "c1",
		Outcome:    Updated(gmvRecord("5")),
		Status:     UpdatedStatus(15 * time.Second),
		StartedAt:  at.Add(-time.Second),
		FinishedAt: at,
	})

	got := state.Snapshot().ToDTO()
	if got.LastOutcome != "updated" || got.LastCycleID != "c1" || got.Updates != 1 || got.Cycles != 1 {
		t.Fatalf("unexpected dto: %+v", got)
	}
	if got.LastUpdatedAt == nil || !got.LastUpdatedAt.Equal(at) {
		t.Fatalf("LastUpdatedAt = %v", got.LastUpdatedAt)
	}
	if got.Interval != "15s" {
		t.Fatalf("Interval = %s", got.Interval)
	}
}
