package cloudwatch

import (
	"testing"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

func TestConvertToData(t *testing.T) {
	p := newMetricsPublisher(MetricsPublisherConfig{
		Namespace:         "Test/Namespace",
		DefaultDimensions: map[string]string{"Dashboard": "sales"},
		BufferSize:        10,
		StorageResolution: 60,
	}, nil)

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	data := p.convertToData(port.CycleMetric{
		Outcome:     valueobject.OutcomeUpdated,
		Duration:    1500 * time.Millisecond,
		MetricCount: 4,
		Timestamp:   ts,
	})

	if len(data) != 3 {
		t.Fatalf("Expected 3 data points, got %d", len(data))
	}

	byName := map[string]float64{}
	for _, d := range data {
		byName[*d.MetricName] = *d.Value
		if !d.Timestamp.Equal(ts) {
			t.Errorf("%s: timestamp = %v", *d.MetricName, d.Timestamp)
		}
		if d.StorageResolution == nil || *d.StorageResolution != 60 {
			t.Errorf("%s: StorageResolution = %v", *d.MetricName, d.StorageResolution)
		}
	}
	if byName[metricCycles] != 1 || byName[metricCycleDuration] != 1500 || byName[metricRecordMetrics] != 4 {
		t.Errorf("Unexpected values: %v", byName)
	}

	dims := map[string]string{}
	for _, d := range data[0].Dimensions {
		dims[*d.Name] = *d.Value
	}
	if dims["Dashboard"] != "sales" || dims["Outcome"] != valueobject.OutcomeUpdated.String() {
		t.Errorf("Unexpected dimensions: %v", dims)
	}
}

func TestConvertToDataSkipsEmptyMetricCount(t *testing.T) {
	p := newMetricsPublisher(MetricsPublisherConfig{Namespace: "ns", BufferSize: 10}, nil)

	data := p.convertToData(port.CycleMetric{Outcome: valueobject.OutcomeNotReady, Duration: time.Second})
	if len(data) != 2 {
		t.Fatalf("Expected 2 data points, got %d", len(data))
	}
	if data[0].Timestamp == nil || data[0].Timestamp.IsZero() {
		t.Error("Expected Timestamp to default to now")
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name      string
		config    MetricsPublisherConfig
		expectErr bool
	}{
		{"valid config", MetricsPublisherConfig{Namespace: "ns", Region: "us-east-1"}, false},
		{"missing namespace", MetricsPublisherConfig{Region: "us-east-1"}, true},
		{"missing region", MetricsPublisherConfig{Namespace: "ns"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			err := cfg.normalize()
			if (err != nil) != tt.expectErr {
				t.Fatalf("normalize() error = %v, expectErr %v", err, tt.expectErr)
			}
			if err != nil {
				return
			}
			if cfg.BufferSize != 100 || cfg.FlushInterval != time.Minute || cfg.StorageResolution != 60 {
				t.Errorf("defaults not applied: %+v", cfg)
			}
		})
	}
}
