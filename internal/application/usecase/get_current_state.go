package usecase

import (
	"context"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// StateSource отдает текущее состояние цикла.
type StateSource interface {
	CurrentState() *dto.StateDTO
}

// GetCurrentStateUseCase возвращает состояние цикла, дополненное загрузкой хоста.
type GetCurrentStateUseCase struct {
	source      StateSource
	host        port.HostStatsCollector
	hostTimeout time.Duration
	logger      *logger.Logger
}

// NewGetCurrentStateUseCase создает новый use case. host может быть nil.
func NewGetCurrentStateUseCase(
	source StateSource,
	host port.HostStatsCollector,
	logger *logger.Logger,
) *GetCurrentStateUseCase {
	return &GetCurrentStateUseCase{
		source:      source,
		host:        host,
		hostTimeout: 2 * time.Second,
		logger:      logger,
	}
}

// Execute никогда не возвращает ошибку: недоступная статистика хоста просто не попадает в ответ.
func (uc *GetCurrentStateUseCase) Execute(ctx context.Context) *dto.StateDTO {
	state := uc.source.CurrentState()
	if uc.host == nil {
		return state
	}

	hostCtx, cancel := context.WithTimeout(ctx, uc.hostTimeout)
	defer cancel()

	stats, err := uc.host.Collect(hostCtx)
	if err != nil {
		uc.logger.Debug("Host stats unavailable", "error", err.Error())
		return state
	}
	state.Host = stats
	return state
}
