package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// ReadinessProbe решает, дала ли перезагрузка пригодную страницу.
// Таймаут и любые ошибки превращаются в false, наружу ничего не пробрасывается.
type ReadinessProbe interface {
	AwaitReady(ctx context.Context, session port.PageSession, timeout time.Duration) bool
}

// TextPresenceProbe ждет, пока маркерный текст появится в отрисованной странице.
type TextPresenceProbe struct {
	marker string
	log    *logger.Logger
}

func NewTextPresenceProbe(marker string, log *logger.Logger) *TextPresenceProbe {
	return &TextPresenceProbe{marker: marker, log: log}
}

func (p *TextPresenceProbe) AwaitReady(ctx context.Context, session port.PageSession, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.log.Debug("Waiting for marker text", "marker", p.marker, "timeout", timeout.String())

	err := session.WaitFor(waitCtx, TextPresencePredicate(p.marker))
	if err == nil {
		p.log.Info("Page verified", "marker", p.marker)
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		p.log.Warn("Marker text not found before timeout", "marker", p.marker, "timeout", timeout.String())
	} else {
		p.log.Error("Readiness check failed", err, "marker", p.marker)
	}
	return false
}

// TextPresencePredicate строит JS-предикат: innerText учитывает только
// видимый текст, поэтому скрытые шаблоны не дают ложного срабатывания.
func TextPresencePredicate(marker string) string {
	quoted, _ := json.Marshal(marker)
	return fmt.Sprintf(`() => { const b = document.body; return !!b && b.innerText.includes(%s); }`, quoted)
}

// ValueChangeProbe опрашивает числовое поле, пока в нем не появится
// реальное значение вместо пустоты, нуля или прочерка.
type ValueChangeProbe struct {
	selector     string
	pollInterval time.Duration
	log          *logger.Logger
}

func NewValueChangeProbe(selector string, pollInterval time.Duration, log *logger.Logger) *ValueChangeProbe {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &ValueChangeProbe{selector: selector, pollInterval: pollInterval, log: log}
}

func (p *ValueChangeProbe) AwaitReady(ctx context.Context, session port.PageSession, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	last := ""
	for {
		value, err := p.readValue(waitCtx, session)
		if err != nil {
			if waitCtx.Err() != nil {
				p.log.Warn("Value field did not settle before timeout", "selector", p.selector, "last", last)
			} else {
				p.log.Error("Readiness check failed", err, "selector", p.selector)
			}
			return false
		}
		last = value

		if IsSettledValue(value) {
			p.log.Info("Page verified", "selector", p.selector, "value", value)
			return true
		}

		select {
		case <-waitCtx.Done():
			p.log.Warn("Value field did not settle before timeout", "selector", p.selector, "last", last)
			return false
		case <-ticker.C:
		}
	}
}

func (p *ValueChangeProbe) readValue(ctx context.Context, session port.PageSession) (string, error) {
	html, err := session.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse page content: %w", err)
	}

	return strings.TrimSpace(doc.Find(p.selector).First().Text()), nil
}

var placeholderValues = map[string]struct{}{
	"":    {},
	"-":   {},
	"--":  {},
	"—":   {},
	"N/A": {},
}

// IsSettledValue - true, если поле содержит настоящее значение.
// Пусто, прочерк и ноль ("0", "0.00", "¥0") считаются незагруженными.
func IsSettledValue(raw string) bool {
	value := strings.TrimSpace(raw)
	if _, placeholder := placeholderValues[value]; placeholder {
		return false
	}

	numeric := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '¥', '￥', '$', '%', '+':
			return -1
		}
		return r
	}, value)

	if f, err := strconv.ParseFloat(numeric, 64); err == nil && f == 0 {
		return false
	}
	return true
}
