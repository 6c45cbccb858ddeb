package extraction

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

func TestTextPresencePredicateQuotesMarker(t *testing.T) {
	got := TextPresencePredicate(`今日"实时"数据`)
	if !strings.Contains(got, `"今日\"实时\"数据"`) {
		t.Fatalf("predicate does not embed a quoted marker: %s", got)
	}
	if !strings.HasPrefix(got, "() =>") {
		t.Fatalf("predicate must be a function expression: %s", got)
	}
}

func TestTextPresenceProbe(t *testing.T) {
	probe := NewTextPresenceProbe("今日实时数据", logger.NewNop())

	if !probe.AwaitReady(context.Background(), &fakeSession{readySeq: []bool{true}}, time.Second) {
		t.Fatalf("AwaitReady() = false for ready page")
	}

	start := time.Now()
	if probe.AwaitReady(context.Background(), &fakeSession{readySeq: []bool{false}}, 30*time.Millisecond) {
		t.Fatalf("AwaitReady() = true for page without marker")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("AwaitReady() took %v, timeout not honored", elapsed)
	}
}

func TestValueChangeProbeWaitsForRealValue(t *testing.T) {
	page := func(v string) string {
		return `<html><body><div class="card"><span class="gmv">` + v + `</span></div></body></html>`
	}
	session := &fakeSession{contents: []string{page("-"), page("0"), page("1,234.50")}}
	probe := NewValueChangeProbe(".card .gmv", time.Millisecond, logger.NewNop())

	if !probe.AwaitReady(context.Background(), session, time.Second) {
		t.Fatalf("AwaitReady() = false, want true once value settles")
	}
	if session.contentReqs != 3 {
		t.Fatalf("content polls = %d, want 3", session.contentReqs)
	}
}

func TestValueChangeProbeTimesOutOnPlaceholder(t *testing.T) {
	session := &fakeSession{contents: []string{`<span class="gmv">--</span>`}}
	probe := NewValueChangeProbe(".gmv", 5*time.Millisecond, logger.NewNop())

	if probe.AwaitReady(context.Background(), session, 40*time.Millisecond) {
		t.Fatalf("AwaitReady() = true for placeholder value")
	}
}

func TestValueChangeProbeContentErrorIsNotReady(t *testing.T) {
	probe := NewValueChangeProbe(".gmv", time.Millisecond, logger.NewNop())

	if probe.AwaitReady(context.Background(), &fakeSession{}, time.Second) {
		t.Fatalf("AwaitReady() = true when content cannot be read")
	}
}

func TestIsSettledValue(t *testing.T) {
	cases := map[string]bool{
		"":         false,
		"  ":       false,
		"-":        false,
		"--":       false,
		"—":        false,
		"0":        false,
		"0.00":     false,
		"¥0":       false,
		"0%":       false,
		"1":        true,
		"1,024.5":  true,
		"¥3,200":   true,
		"+5%":      true,
		"12.3万":    true,
		"loading…": true,
	}
	for in, want := range cases {
		if got := IsSettledValue(in); got != want {
			t.Fatalf("IsSettledValue(%q) = %v, want %v", in, got, want)
		}
	}
}
