package collector

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// имена процессов Chromium на разных платформах
var browserProcessNames = []string{"chrome", "chromium", "chromium-browser", "headless_shell", "google chrome"}

type BrowserProcesses struct {
	Count    int
	RSSBytes uint64
}

// BrowserProcessCollector считает процессы браузера и их суммарный RSS.
type BrowserProcessCollector struct {
	names []string
}

func NewBrowserProcessCollector() *BrowserProcessCollector {
	return &BrowserProcessCollector{names: browserProcessNames}
}

func (c *BrowserProcessCollector) Collect(ctx context.Context) (BrowserProcesses, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return BrowserProcesses{}, err
	}

	var out BrowserProcesses
	for _, p := range procs {
		// процесс мог завершиться между листингом и чтением
		name, err := p.NameWithContext(ctx)
		if err != nil || !c.matches(name) {
			continue
		}
		out.Count++
		if info, err := p.MemoryInfoWithContext(ctx); err == nil && info != nil {
			out.RSSBytes += info.RSS
		}
	}
	return out, nil
}

func (c *BrowserProcessCollector) matches(name string) bool {
	name = strings.ToLower(name)
	for _, n := range c.names {
		if name == n || strings.HasPrefix(name, n+" ") {
			return true
		}
	}
	return false
}
