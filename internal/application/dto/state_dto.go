package dto

import (
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
)

// DataResponse - тело ответа GET /data.
// data равен null, пока ни один цикл не завершился успешно.
type DataResponse struct {
	Status string               `json:"status"`
	Data   *entity.MetricRecord `json:"data"`
}

// StateDTO - расширенное состояние цикла для /api/v1/status и WebSocket.
type StateDTO struct {
	Phase         string               `json:"phase"`
	Status        string               `json:"status"`
	Data          *entity.MetricRecord `json:"data"`
	LastOutcome   string               `json:"last_outcome,omitempty"`
	LastCycleID   string               `json:"last_cycle_id,omitempty"`
	LastCycleAt   *time.Time           `json:"last_cycle_at,omitempty"`
	LastUpdatedAt *time.Time           `json:"last_updated_at,omitempty"`
	Cycles        uint64               `json:"cycles"`
	Updates       uint64               `json:"updates"`
	Interval      string               `json:"interval"`
	Host          *HostStatsDTO        `json:"host,omitempty"`
}

// HostStatsDTO - загрузка хоста с браузером.
type HostStatsDTO struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	MemoryUsedMB   float64 `json:"memory_used_mb"`
	MemoryTotalMB  float64 `json:"memory_total_mb"`
	DiskPercent    float64 `json:"disk_percent"`
	DiskFreeMB     float64 `json:"disk_free_mb"`
	BrowserProcs   int     `json:"browser_processes"`
	BrowserRSSMB   float64 `json:"browser_rss_mb"`
	CollectedAtUTC string  `json:"collected_at"`
}
