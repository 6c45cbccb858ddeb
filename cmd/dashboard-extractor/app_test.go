package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/extraction"
	"github.com/dreschagin/dashboard-extractor/pkg/config"
)

func TestReadinessStaleAfter(t *testing.T) {
	cfg := &config.Config{}
	cfg.Extraction.Interval = 15 * time.Second
	cfg.Extraction.ReadyTimeout = 60 * time.Second
	cfg.Extraction.AnalyzeTimeout = 90 * time.Second
	cfg.Browser.NavigationTimeout = 90 * time.Second

	// 15 + 90 + 60 + 30 + 90
	assert.Equal(t, 285*time.Second, readinessStaleAfter(cfg))

	cfg.Extraction.Interval = 10 * time.Minute
	assert.Equal(t, 30*time.Minute, readinessStaleAfter(cfg))
}

func TestWithDashboard(t *testing.T) {
	in := map[string]string{"Env": "prod"}
	out := withDashboard(in, "life-data")

	assert.Equal(t, map[string]string{"Env": "prod", "Dashboard": "life-data"}, out)
	assert.Len(t, in, 1, "input must not be mutated")

	explicit := withDashboard(map[string]string{"Dashboard": "custom"}, "life-data")
	assert.Equal(t, "custom", explicit["Dashboard"])
}

func TestExitCode(t *testing.T) {
	record := &entity.MetricRecord{Metrics: []entity.MetricEntry{{Name: "GMV", Value: "1"}}}

	assert.Equal(t, 0, exitCode(extraction.CycleResult{Outcome: extraction.Updated(record)}, nil))
	assert.Equal(t, 2, exitCode(extraction.CycleResult{Outcome: extraction.NotReady()}, nil))
	assert.Equal(t, 1, exitCode(extraction.CycleResult{}, errors.New("terminated")))
}
