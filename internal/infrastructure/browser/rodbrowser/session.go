package rodbrowser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/browser"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// Session - вкладка rod с установленной cookie.
type Session struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	log      *logger.Logger
	openedAt time.Time

	mu     sync.Mutex
	closed bool
}

func (s *Session) pageFor(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: session already closed", port.ErrSessionLost)
	}
	return s.page.Context(ctx), nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	page, err := s.pageFor(ctx)
	if err != nil {
		return err
	}

	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return browser.ClassifyError(fmt.Errorf("navigate %s: %w", url, err))
	}
	wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("navigate %s: waiting for DOMContentLoaded: %w", url, err)
	}
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	page, err := s.pageFor(ctx)
	if err != nil {
		return err
	}

	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Reload(); err != nil {
		return browser.ClassifyError(fmt.Errorf("reload: %w", err))
	}
	wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: waiting for DOMContentLoaded: %w", err)
	}
	return nil
}

func (s *Session) WaitFor(ctx context.Context, predicate string) error {
	page, err := s.pageFor(ctx)
	if err != nil {
		return err
	}

	if err := page.Wait(rod.Eval(predicate)); err != nil {
		return browser.ClassifyError(fmt.Errorf("wait for predicate: %w", err))
	}
	return nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	page, err := s.pageFor(ctx)
	if err != nil {
		return "", err
	}

	html, err := page.HTML()
	if err != nil {
		return "", browser.ClassifyError(fmt.Errorf("read html: %w", err))
	}
	return html, nil
}

func (s *Session) CaptureSnapshot(ctx context.Context) ([]byte, error) {
	page, err := s.pageFor(ctx)
	if err != nil {
		return nil, err
	}

	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, browser.ClassifyError(fmt.Errorf("screenshot: %w", err))
	}
	return data, nil
}

// Close закрывает браузер и, если он запускался локально, чистит профиль.
// Повторный вызов ничего не делает.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.browser.Close()
	cleanupLauncher(s.launcher)

	s.log.Debug("Rod session closed", "lifetime", time.Since(s.openedAt).Round(time.Second).String())
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
