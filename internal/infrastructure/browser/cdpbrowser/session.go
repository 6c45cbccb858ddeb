package cdpbrowser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/browser"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

const pollInterval = 250 * time.Millisecond

// Session - вкладка chromedp. Все действия выполняются в контексте вкладки,
// ограниченном дедлайном и отменой контекста вызывающего.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	log           *logger.Logger

	mu     sync.Mutex
	closed bool
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: session already closed", port.ErrSessionLost)
	}
	if s.browserCtx.Err() != nil {
		return fmt.Errorf("%w: %w", port.ErrSessionLost, s.browserCtx.Err())
	}

	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w (%v)", context.DeadlineExceeded, err)
	}
	if s.browserCtx.Err() != nil {
		return fmt.Errorf("%w: %w", port.ErrSessionLost, err)
	}
	return browser.ClassifyError(err)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (s *Session) WaitFor(ctx context.Context, predicate string) error {
	var ok bool
	if err := s.run(ctx, chromedp.PollFunction(predicate, &ok, chromedp.WithPollingInterval(pollInterval))); err != nil {
		return fmt.Errorf("wait for predicate: %w", err)
	}
	return nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (s *Session) CaptureSnapshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// качество 100 - PNG, иначе chromedp отдает JPEG
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	s.allocCancel()
	s.log.Debug("Chromedp session closed")

	if err != nil && s.browserCtx.Err() == nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
