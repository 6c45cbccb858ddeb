package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectReturnsHostStats(t *testing.T) {
	c := NewHostStatsCollector(t.TempDir(), 0)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	stats, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T10:00:00Z", stats.CollectedAtUTC)
	assert.Greater(t, stats.MemoryTotalMB, 0.0)
	assert.GreaterOrEqual(t, stats.BrowserProcs, 0)
}

func TestBrowserProcessNameMatching(t *testing.T) {
	c := NewBrowserProcessCollector()

	assert.True(t, c.matches("chrome"))
	assert.True(t, c.matches("Chromium"))
	assert.True(t, c.matches("headless_shell"))
	assert.True(t, c.matches("Google Chrome Helper"))
	assert.False(t, c.matches("chromedriver"))
	assert.False(t, c.matches("bash"))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 12.35, round2(12.3456))
	assert.Equal(t, 0.0, round2(0))
}
