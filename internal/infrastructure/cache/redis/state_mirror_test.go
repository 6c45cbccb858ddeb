package redis

import (
	"context"
	"testing"
	"time"
)

func TestUpdatesChannel(t *testing.T) {
	if got := updatesChannel("dashboard:state"); got != "dashboard:state:updates" {
		t.Fatalf("updatesChannel() = %s", got)
	}
}

func TestNewStateMirrorFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// порт 1 гарантированно закрыт
	_, err := NewStateMirror(ctx, Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatalf("NewStateMirror() error = nil, want connection error")
	}
}
