package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/application/usecase"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

type staticState struct {
	state *dto.StateDTO
}

func (s staticState) Read() (string, *entity.MetricRecord) {
	return s.state.Status, s.state.Data
}

func (s staticState) CurrentState() *dto.StateDTO {
	copied := *s.state
	return &copied
}

func newStateHandler(state *dto.StateDTO, now time.Time) *StateHandler {
	src := staticState{state: state}
	h := NewStateHandler(src, usecase.NewGetCurrentStateUseCase(src, nil, logger.NewNop()), time.Minute, logger.NewNop())
	h.now = func() time.Time { return now }
	return h
}

func TestReadyz(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Second)
	stale := now.Add(-2 * time.Minute)

	cases := []struct {
		name  string
		state *dto.StateDTO
		want  int
	}{
		{"bootstrapping", &dto.StateDTO{Phase: "bootstrapping"}, http.StatusServiceUnavailable},
		{"steady without cycles", &dto.StateDTO{Phase: "steady"}, http.StatusOK},
		{"steady recent cycle", &dto.StateDTO{Phase: "steady", LastCycleAt: &recent}, http.StatusOK},
		{"steady stale cycle", &dto.StateDTO{Phase: "steady", LastCycleAt: &stale}, http.StatusServiceUnavailable},
		{"terminated", &dto.StateDTO{Phase: "terminated", LastCycleAt: &recent}, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newStateHandler(tc.state, now).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetDataKeepsStatusWithoutRecord(t *testing.T) {
	rec := httptest.NewRecorder()
	newStateHandler(&dto.StateDTO{Status: "Initializing..."}, time.Now()).GetData(rec, httptest.NewRequest(http.MethodGet, "/data", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"Initializing...","data":null}`, rec.Body.String())
}

type fakeObjectStorage struct {
	objects []port.ObjectInfo
}

func (f *fakeObjectStorage) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", nil
}

func (f *fakeObjectStorage) ListObjects(_ context.Context, _ string, _ int) ([]port.ObjectInfo, error) {
	return f.objects, nil
}

func (f *fakeObjectStorage) GetObjectURL(_ context.Context, key string) (string, error) {
	return "https://example.invalid/" + key, nil
}

func TestArtifactsList(t *testing.T) {
	storage := &fakeObjectStorage{objects: []port.ObjectInfo{
		{Key: "artifacts/main/20240501T100000Z_snapshot.png", LastModified: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{Key: "artifacts/main/20240501T101500Z_debug.png", LastModified: time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)},
	}}
	list := usecase.NewListArtifactsUseCase(storage, nil, usecase.ListArtifactsConfig{}, logger.NewNop())
	h := NewArtifactsHandler(list, "main", logger.NewNop())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts?kind=snapshot", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result usecase.ListArtifactsResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "snapshot", result.Items[0].Type)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts?from=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// курсор без индекса метаданных не поддерживается
	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts?cursor=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordsWithoutArchive(t *testing.T) {
	h := NewRecordsHandler(nil, "main", 0, logger.NewNop())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/records", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
