package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/usecase"
	"github.com/dreschagin/dashboard-extractor/internal/interfaces/http/middleware"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// ArtifactsHandler - листинг архива снимков в S3/DynamoDB.
type ArtifactsHandler struct {
	list        *usecase.ListArtifactsUseCase
	dashboardID string
	logger      *logger.Logger
}

// NewArtifactsHandler. list nil - архив выключен, ответы 503.
func NewArtifactsHandler(list *usecase.ListArtifactsUseCase, dashboardID string, logger *logger.Logger) *ArtifactsHandler {
	return &ArtifactsHandler{list: list, dashboardID: dashboardID, logger: logger}
}

// List - GET /api/v1/artifacts?dashboard_id=&kind=&limit=&cursor=&from=&to=
func (h *ArtifactsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.list == nil {
		http.Error(w, "Artifact archive is not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	cmd := usecase.ListArtifactsCommand{
		DashboardID:  strings.TrimSpace(q.Get("dashboard_id")),
		Cursor:       q.Get("cursor"),
		ArtifactType: q.Get("kind"),
	}
	if cmd.DashboardID == "" {
		cmd.DashboardID = h.dashboardID
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid 'limit'", http.StatusBadRequest)
			return
		}
		cmd.Limit = limit
	}

	var err error
	if cmd.From, err = parseOptionalTime(q.Get("from")); err != nil {
		http.Error(w, "invalid 'from': expected RFC3339", http.StatusBadRequest)
		return
	}
	if cmd.To, err = parseOptionalTime(q.Get("to")); err != nil {
		http.Error(w, "invalid 'to': expected RFC3339", http.StatusBadRequest)
		return
	}

	result, err := h.list.Execute(r.Context(), cmd)
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, result)
	case errors.Is(err, usecase.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, usecase.ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error("Failed to list artifacts", err, "dashboard_id", cmd.DashboardID)
		http.Error(w, "Failed to list artifacts", http.StatusInternalServerError)
	}
}

func parseOptionalTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
