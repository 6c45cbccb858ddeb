// Package rodbrowser реализует port.BrowserLauncher и port.PageSession на go-rod.
package rodbrowser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

type Config struct {
	// RemoteURL - WebSocket адрес внешнего Chrome. Пусто - запускаем локальный.
	RemoteURL      string
	BinaryPath     string
	Headless       bool
	Stealth        bool
	ViewportWidth  int
	ViewportHeight int
}

// Launcher запускает Chrome (или подключается к удаленному) и открывает вкладку.
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

func (l *Launcher) Open(ctx context.Context, cookie port.SessionCookie) (port.PageSession, error) {
	var (
		wsURL string
		lnch  *launcher.Launcher
	)

	if l.cfg.RemoteURL != "" {
		wsURL = l.cfg.RemoteURL
		l.log.Info("Connecting to remote browser", "url", wsURL)
	} else {
		lnch = launcher.New().
			Headless(l.cfg.Headless).
			NoSandbox(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage")
		if l.cfg.BinaryPath != "" {
			lnch = lnch.Bin(l.cfg.BinaryPath)
		}

		u, err := lnch.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		wsURL = u
		l.log.Info("Launched local browser", "headless", l.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		cleanupLauncher(lnch)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	fail := func(err error) (port.PageSession, error) {
		_ = b.Close()
		cleanupLauncher(lnch)
		return nil, err
	}

	if err := b.SetCookies([]*proto.NetworkCookieParam{{
		Name:   cookie.Name,
		Value:  cookie.Value,
		Domain: cookie.Domain,
		Path:   cookie.Path,
	}}); err != nil {
		return fail(fmt.Errorf("failed to set session cookie: %w", err))
	}

	var (
		page *rod.Page
		err  error
	)
	if l.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return fail(fmt.Errorf("failed to open tab: %w", err))
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             l.cfg.ViewportWidth,
		Height:            l.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		l.log.Warn("Failed to set viewport", "error", err.Error())
	}

	return &Session{
		browser:  b,
		page:     page,
		launcher: lnch,
		log:      l.log,
		openedAt: time.Now(),
	}, nil
}

func cleanupLauncher(l *launcher.Launcher) {
	if l != nil {
		l.Cleanup()
	}
}
