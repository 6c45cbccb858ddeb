package logger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

type captureLogPublisher struct {
	mu      sync.Mutex
	entries []port.LogEntry
}

func (c *captureLogPublisher) Publish(_ context.Context, entry port.LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

func (c *captureLogPublisher) PublishBatch(ctx context.Context, entries []port.LogEntry) error {
	for _, e := range entries {
		_ = c.Publish(ctx, e)
	}
	return nil
}

func (c *captureLogPublisher) Flush(context.Context) error { return nil }

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		" warn ":  WARN,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerPublishesEntriesAboveLevel(t *testing.T) {
	log := New("warn")
	pub := &captureLogPublisher{}
	log.SetLogPublisher(pub)

	log.Info("skipped", "k", 1)
	log.Warn("cycle slow", "cycle_id", "abc")
	log.Error("cycle failed", errors.New("boom"), "outcome", "failed")

	if len(pub.entries) != 2 {
		t.Fatalf("published entries = %d, want 2", len(pub.entries))
	}
	if pub.entries[0].Level != port.LogLevelWarn || pub.entries[0].Fields["cycle_id"] != "abc" {
		t.Fatalf("unexpected warn entry: %+v", pub.entries[0])
	}
	if pub.entries[1].Fields["error"] != "boom" {
		t.Fatalf("error field = %v, want boom", pub.entries[1].Fields["error"])
	}
}

func TestLoggerWithCarriesFields(t *testing.T) {
	log := New("debug")
	pub := &captureLogPublisher{}
	log.SetLogPublisher(pub)

	child := log.With("component", "loop")
	child.Debug("tick", "n", 3)

	if len(pub.entries) != 1 {
		t.Fatalf("published entries = %d, want 1", len(pub.entries))
	}
	if pub.entries[0].Fields["component"] != "loop" || pub.entries[0].Fields["n"] != 3 {
		t.Fatalf("fields = %v", pub.entries[0].Fields)
	}

	log.SetLogPublisher(nil)
	child.Info("after detach")
	if len(pub.entries) != 1 {
		t.Fatalf("publisher still attached after SetLogPublisher(nil)")
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	log := NewNop()
	pub := &captureLogPublisher{}
	log.SetLogPublisher(pub)

	log.Error("ignored", errors.New("x"))
	if len(pub.entries) != 0 {
		t.Fatalf("nop logger published %d entries", len(pub.entries))
	}
}
