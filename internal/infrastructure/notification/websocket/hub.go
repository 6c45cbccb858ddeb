package websocket

import (
	"sync"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// Hub держит подключенных клиентов и рассылает им состояние цикла.
type Hub struct {
	clients map[*Client]struct{}

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// последнее состояние отдается новому клиенту сразу после подключения
	last *dto.StateDTO

	mu     sync.RWMutex
	logger *logger.Logger
}

var _ port.NotificationService = (*Hub)(nil)

func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run обслуживает регистрацию и рассылку до вызова Stop.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			if h.last != nil {
				select {
				case client.send <- Message{Type: "state", Data: h.last}:
				default:
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case msg := <-h.broadcast:
			h.mu.Lock()
			if state, ok := msg.Data.(*dto.StateDTO); ok {
				h.last = state
			}
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// медленный клиент, отключаем
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client channel full, disconnected")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop завершает Run и закрывает всех клиентов. Повторный вызов недопустим.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastState не блокирует цикл: при переполненном канале состояние теряется.
func (h *Hub) BroadcastState(state *dto.StateDTO) {
	if state == nil {
		return
	}
	select {
	case h.broadcast <- Message{Type: "state", Data: state}:
	default:
		h.logger.Warn("Broadcast channel full, dropping state")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Message - конверт сообщения клиенту.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
