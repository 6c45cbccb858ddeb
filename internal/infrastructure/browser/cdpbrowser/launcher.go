// Package cdpbrowser - альтернативный драйвер браузера на chromedp.
package cdpbrowser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

type Config struct {
	RemoteURL      string
	BinaryPath     string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
}

type Launcher struct {
	cfg Config
	log *logger.Logger
}

func NewLauncher(cfg Config, log *logger.Logger) *Launcher {
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1440
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 900
	}
	return &Launcher{cfg: cfg, log: log}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(l.cfg.ViewportWidth, l.cfg.ViewportHeight),
	)
	if l.cfg.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.BinaryPath))
	}
	return opts
}

func (l *Launcher) Open(ctx context.Context, cookie port.SessionCookie) (port.PageSession, error) {
	// Аллокатор живет дольше вызова Open, поэтому не наследует ctx.
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if l.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), l.cfg.RemoteURL)
		l.log.Info("Connecting to remote browser", "url", l.cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	session := &Session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		log:           l.log,
	}

	err := session.run(ctx,
		chromedp.EmulateViewport(int64(l.cfg.ViewportWidth), int64(l.cfg.ViewportHeight)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookie.Domain).
				WithPath(cookie.Path).
				Do(ctx)
		}),
	)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to start browser and set session cookie: %w", err)
	}

	l.log.Info("Chromedp session started", "headless", l.cfg.Headless)
	return session, nil
}
