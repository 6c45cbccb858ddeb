package port

import "github.com/dreschagin/dashboard-extractor/internal/application/dto"

// NotificationService рассылает состояние подключенным клиентам (WebSocket Hub).
type NotificationService interface {
	// BroadcastState отправляет текущее состояние всем клиентам
	BroadcastState(state *dto.StateDTO)

	// ClientCount возвращает количество подключенных клиентов
	ClientCount() int
}
