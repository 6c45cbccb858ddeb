package valueobject

import (
	"testing"
	"time"
)

func TestParseTimeRangeDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tr, err := ParseTimeRange("", "", time.Hour, now)
	if err != nil {
		t.Fatalf("ParseTimeRange() error = %v", err)
	}
	if !tr.End().Equal(now) || !tr.Start().Equal(now.Add(-time.Hour)) {
		t.Fatalf("range = %v..%v", tr.Start(), tr.End())
	}
	if !tr.Contains(now.Add(-30 * time.Minute)) {
		t.Fatalf("Contains() = false for point inside range")
	}
	if tr.Contains(now.Add(time.Second)) {
		t.Fatalf("Contains() = true for point after range")
	}
}

func TestParseTimeRangeRejectsInvertedOrMalformed(t *testing.T) {
	now := time.Now()

	if _, err := ParseTimeRange("2026-03-02T00:00:00Z", "2026-03-01T00:00:00Z", time.Hour, now); err == nil {
		t.Fatalf("inverted range accepted")
	}
	if _, err := ParseTimeRange("yesterday", "", time.Hour, now); err == nil {
		t.Fatalf("malformed from accepted")
	}
}

func TestOutcomeDebugArtifactPolicy(t *testing.T) {
	want := map[OutcomeKind]bool{
		OutcomeUpdated:       false,
		OutcomeAnalysisEmpty: false,
		OutcomeNotReady:      true,
		OutcomeFailed:        true,
	}
	for _, kind := range AllOutcomes() {
		if got := kind.CapturesDebugArtifact(); got != want[kind] {
			t.Fatalf("%s.CapturesDebugArtifact() = %v, want %v", kind, got, want[kind])
		}
	}
}

func TestArtifactKind(t *testing.T) {
	for _, kind := range []ArtifactKind{ArtifactSnapshot, ArtifactDebug} {
		if !kind.Validate() {
			t.Fatalf("%s.Validate() = false", kind)
		}
		if kind.String() != string(kind) {
			t.Fatalf("String() = %q, want %q", kind.String(), string(kind))
		}
	}
	if ArtifactKind("other").Validate() {
		t.Fatalf("unknown kind validated")
	}
}
