package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		lost bool
	}{
		{"nil", nil, false},
		{"timeout", context.DeadlineExceeded, false},
		{"eval error", errors.New("ReferenceError: x is not defined"), false},
		{"eof", fmt.Errorf("read: %w", io.EOF), true},
		{"target closed", errors.New("Target closed"), true},
		{"websocket", errors.New("websocket: close 1006 (abnormal closure)"), true},
		{"already classified", fmt.Errorf("%w: x", port.ErrSessionLost), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyError(tc.err)
			if errors.Is(got, port.ErrSessionLost) != tc.lost {
				t.Fatalf("ClassifyError(%v) = %v, lost want %v", tc.err, got, tc.lost)
			}
			if tc.err != nil && !errors.Is(got, tc.err) {
				t.Fatalf("ClassifyError dropped the original error")
			}
		})
	}
}
