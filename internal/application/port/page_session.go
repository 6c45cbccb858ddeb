package port

import (
	"context"
	"errors"
)

// ErrSessionLost означает, что браузерная сессия больше не пригодна
// (процесс упал, соединение CDP закрыто). Цикл прекращает работу.
var ErrSessionLost = errors.New("browser session lost")

// ErrCredentialMissing - сессионная cookie не задана.
var ErrCredentialMissing = errors.New("dashboard credential is not configured")

// SessionCookie - аутентификационная cookie, которая ставится до первой навигации.
type SessionCookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// PageSession - одна аутентифицированная вкладка браузера.
// Принадлежит фоновому циклу; конкурентные вызовы не поддерживаются.
type PageSession interface {
	// Navigate открывает url и ждет DOMContentLoaded.
	Navigate(ctx context.Context, url string) error

	// Reload перезагружает страницу и ждет DOMContentLoaded.
	Reload(ctx context.Context) error

	// WaitFor блокируется, пока JS-выражение не станет truthy или не истечет ctx.
	WaitFor(ctx context.Context, predicate string) error

	// Content возвращает текущий HTML документа.
	Content(ctx context.Context) (string, error)

	// CaptureSnapshot делает PNG-снимок всей страницы.
	CaptureSnapshot(ctx context.Context) ([]byte, error)

	// Close освобождает вкладку и браузер.
	Close() error
}

// BrowserLauncher создает сессии с уже установленной cookie.
type BrowserLauncher interface {
	Open(ctx context.Context, cookie SessionCookie) (PageSession, error)
}
