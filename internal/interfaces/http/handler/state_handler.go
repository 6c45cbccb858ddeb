package handler

import (
	"net/http"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/application/usecase"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/internal/interfaces/http/middleware"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// StateReader - разделяемое состояние цикла (extraction.SharedState).
type StateReader interface {
	Read() (string, *entity.MetricRecord)
	CurrentState() *dto.StateDTO
}

// StateHandler отдает состояние цикла: /data, /api/v1/status и пробы.
type StateHandler struct {
	state      StateReader
	getState   *usecase.GetCurrentStateUseCase
	staleAfter time.Duration
	now        func() time.Time
	logger     *logger.Logger
}

// NewStateHandler. staleAfter - сколько может пройти с последнего цикла,
// прежде чем /readyz начнет отвечать 503.
func NewStateHandler(
	state StateReader,
	getState *usecase.GetCurrentStateUseCase,
	staleAfter time.Duration,
	logger *logger.Logger,
) *StateHandler {
	return &StateHandler{
		state:      state,
		getState:   getState,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// GetData - GET /data. 404 со статусом, пока нет ни одной записи.
func (h *StateHandler) GetData(w http.ResponseWriter, _ *http.Request) {
	status, record := h.state.Read()
	w.Header().Set("Cache-Control", "no-store")

	code := http.StatusOK
	if record == nil {
		code = http.StatusNotFound
	}
	middleware.WriteJSON(w, code, dto.DataResponse{Status: status, Data: record})
}

// GetStatus - GET /api/v1/status.
func (h *StateHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, h.getState.Execute(r.Context()))
}

func (h *StateHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz готов, только пока цикл в Steady и последний цикл не устарел.
func (h *StateHandler) Readyz(w http.ResponseWriter, _ *http.Request) {
	state := h.state.CurrentState()

	if state.Phase != valueobject.PhaseSteady.String() {
		http.Error(w, "not ready: "+state.Status, http.StatusServiceUnavailable)
		return
	}
	if state.LastCycleAt != nil && h.staleAfter > 0 && h.now().Sub(*state.LastCycleAt) > h.staleAfter {
		http.Error(w, "not ready: last cycle is stale", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
