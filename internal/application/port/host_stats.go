package port

import (
	"context"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
)

// HostStatsCollector снимает загрузку хоста, на котором крутится браузер.
type HostStatsCollector interface {
	Collect(ctx context.Context) (*dto.HostStatsDTO, error)
}
