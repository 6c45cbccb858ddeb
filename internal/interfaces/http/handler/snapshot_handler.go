package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

// SnapshotHandler отдает снимки из слотов ArtifactStore.
type SnapshotHandler struct {
	store  port.ArtifactStore
	logger *logger.Logger
}

func NewSnapshotHandler(store port.ArtifactStore, logger *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{store: store, logger: logger}
}

// ServeDebug - GET /debug_screenshot.
func (h *SnapshotHandler) ServeDebug(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, valueobject.ArtifactDebug)
}

// ServeSnapshot - GET /snapshot, последний успешный снимок.
func (h *SnapshotHandler) ServeSnapshot(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, valueobject.ArtifactSnapshot)
}

func (h *SnapshotHandler) serve(w http.ResponseWriter, r *http.Request, kind valueobject.ArtifactKind) {
	artifact, err := h.store.Load(r.Context(), kind)
	if errors.Is(err, port.ErrArtifactNotFound) {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load artifact", err, "kind", string(kind))
		http.Error(w, "Failed to load screenshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, string(kind)+".png", artifact.ModifiedAt, bytes.NewReader(artifact.Data))
}
