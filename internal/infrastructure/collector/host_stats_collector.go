package collector

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

const bytesInMB = 1024 * 1024

// HostStatsCollector снимает загрузку хоста с браузером: CPU, память,
// диск под снимками и процессы Chrome.
type HostStatsCollector struct {
	diskPath  string
	cpuWindow time.Duration
	processes *BrowserProcessCollector
	now       func() time.Time
}

var _ port.HostStatsCollector = (*HostStatsCollector)(nil)

// NewHostStatsCollector. diskPath - каталог со снимками; cpuWindow 0 -
// загрузка CPU с момента предыдущего вызова без ожидания.
func NewHostStatsCollector(diskPath string, cpuWindow time.Duration) *HostStatsCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostStatsCollector{
		diskPath:  diskPath,
		cpuWindow: cpuWindow,
		processes: NewBrowserProcessCollector(),
		now:       time.Now,
	}
}

// Collect собирает показатели параллельно. Частичный результат лучше
// пустого, поэтому ошибка возвращается только если не удалось ничего.
func (c *HostStatsCollector) Collect(ctx context.Context) (*dto.HostStatsDTO, error) {
	var (
		out    dto.HostStatsDTO
		mu     sync.Mutex
		failed int
		first  error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		failed++
		if first == nil {
			first = err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		percentages, err := cpu.PercentWithContext(gctx, c.cpuWindow, false)
		if err != nil {
			record(err)
			return nil
		}
		if len(percentages) > 0 {
			mu.Lock()
			out.CPUPercent = round2(percentages[0])
			mu.Unlock()
		}
		return nil
	})
	g.Go(func() error {
		vm, err := mem.VirtualMemoryWithContext(gctx)
		if err != nil {
			record(err)
			return nil
		}
		mu.Lock()
		out.MemoryPercent = round2(vm.UsedPercent)
		out.MemoryUsedMB = round2(float64(vm.Used) / bytesInMB)
		out.MemoryTotalMB = round2(float64(vm.Total) / bytesInMB)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		usage, err := disk.UsageWithContext(gctx, c.diskPath)
		if err != nil {
			record(err)
			return nil
		}
		mu.Lock()
		out.DiskPercent = round2(usage.UsedPercent)
		out.DiskFreeMB = round2(float64(usage.Free) / bytesInMB)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		procs, err := c.processes.Collect(gctx)
		if err != nil {
			record(err)
			return nil
		}
		mu.Lock()
		out.BrowserProcs = procs.Count
		out.BrowserRSSMB = round2(float64(procs.RSSBytes) / bytesInMB)
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	if failed == 4 {
		return nil, first
	}
	out.CollectedAtUTC = c.now().UTC().Format(time.RFC3339)
	return &out, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
