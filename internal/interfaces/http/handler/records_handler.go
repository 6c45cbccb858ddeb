package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/usecase"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/internal/interfaces/http/middleware"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// RecordsHandler - история зафиксированных записей.
type RecordsHandler struct {
	history     *usecase.GetRecordHistoryUseCase
	dashboardID string
	maxRange    time.Duration
	logger      *logger.Logger
}

// NewRecordsHandler. history nil - архив выключен, ответы 503.
func NewRecordsHandler(
	history *usecase.GetRecordHistoryUseCase,
	dashboardID string,
	maxRange time.Duration,
	logger *logger.Logger,
) *RecordsHandler {
	if maxRange <= 0 {
		maxRange = 31 * 24 * time.Hour
	}
	return &RecordsHandler{
		history:     history,
		dashboardID: dashboardID,
		maxRange:    maxRange,
		logger:      logger,
	}
}

// List - GET /api/v1/records?dashboard_id=&limit=&from=&to=
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "Record archive is not configured", http.StatusServiceUnavailable)
		return
	}

	query, err := h.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.history.Execute(r.Context(), query)
	if err != nil {
		h.writeError(w, "Failed to fetch records", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"dashboard_id": query.DashboardID,
		"items":        records,
	})
}

// Summary - GET /api/v1/records/summary, те же параметры.
func (h *RecordsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "Record archive is not configured", http.StatusServiceUnavailable)
		return
	}

	query, err := h.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.history.ExecuteSummary(r.Context(), query)
	if err != nil {
		h.writeError(w, "Failed to summarize records", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

func (h *RecordsHandler) parseQuery(r *http.Request) (usecase.RecordHistoryQuery, error) {
	q := r.URL.Query()

	query := usecase.RecordHistoryQuery{DashboardID: strings.TrimSpace(q.Get("dashboard_id"))}
	if query.DashboardID == "" {
		query.DashboardID = h.dashboardID
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query, errors.New("invalid 'limit'")
		}
		query.Limit = limit
	}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		tr, err := valueobject.ParseTimeRange(from, to, 24*time.Hour, time.Now().UTC())
		if err != nil {
			return query, err
		}
		if tr.End().Sub(tr.Start()) > h.maxRange {
			return query, errors.New("time range is too large")
		}
		query.TimeRange = &tr
	}
	return query, nil
}

func (h *RecordsHandler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, usecase.ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error(msg, err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
