package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

const (
	// лимит PutMetricData
	maxMetricsPerRequest = 1000
	maxRetries           = 3
	initialBackoff       = 100 * time.Millisecond
)

// Имена метрик цикла в CloudWatch.
const (
	metricCycles        = "Cycles"
	metricCycleDuration = "CycleDuration"
	metricRecordMetrics = "ExtractedMetrics"
)

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string            // e.g. "DashboardExtractor"
	Region            string
	Endpoint          string            // LocalStack
	AccessKeyID       string
	SecretAccessKey   string
	DefaultDimensions map[string]string // добавляются ко всем метрикам (Dashboard, Host)
	BufferSize        int
	FlushInterval     time.Duration
	StorageResolution int32 // 1 или 60
}

// MetricsPublisher буферизует телеметрию циклов и отправляет ее в CloudWatch.
type MetricsPublisher struct {
	client            *cloudwatch.Client
	namespace         string
	defaultDimensions map[string]string
	storageResolution int32

	buffer     []types.MetricDatum
	bufferSize int
	mu         sync.Mutex

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	onError     func(error)
}

var _ port.MetricsPublisher = (*MetricsPublisher)(nil)

func (c *MetricsPublisherConfig) normalize() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Minute
	}
	if c.StorageResolution != 1 && c.StorageResolution != 60 {
		c.StorageResolution = 60
	}
	return nil
}

// NewMetricsPublisher. onError получает ошибки фонового flush (может быть nil).
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig, onError func(error)) (*MetricsPublisher, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newMetricsPublisher(cfg, onError)
	p.client = cloudwatch.NewFromConfig(awsCfg)
	p.flushTicker = time.NewTicker(cfg.FlushInterval)

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

func newMetricsPublisher(cfg MetricsPublisherConfig, onError func(error)) *MetricsPublisher {
	if onError == nil {
		onError = func(error) {}
	}
	return &MetricsPublisher{
		namespace:         cfg.Namespace,
		defaultDimensions: cfg.DefaultDimensions,
		storageResolution: cfg.StorageResolution,
		buffer:            make([]types.MetricDatum, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
		stopCh:            make(chan struct{}),
		onError:           onError,
	}
}

// Publish кладет точки цикла в буфер; при заполнении буфер сбрасывается сразу.
func (p *MetricsPublisher) Publish(ctx context.Context, metric port.CycleMetric) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, p.convertToData(metric)...)
	if len(p.buffer) >= p.bufferSize {
		if err := p.flushBufferUnsafe(ctx); err != nil {
			return fmt.Errorf("failed to flush buffer: %w", err)
		}
	}
	return nil
}

func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushBufferUnsafe(ctx)
}

// Close останавливает фоновый flush и отправляет остаток буфера.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	if p.flushTicker != nil {
		p.flushTicker.Stop()
	}
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.Flush(ctx); err != nil {
				p.onError(err)
			}
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// flushBufferUnsafe - вызывающий держит p.mu.
func (p *MetricsPublisher) flushBufferUnsafe(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	for i := 0; i < len(p.buffer); i += maxMetricsPerRequest {
		end := min(i+maxMetricsPerRequest, len(p.buffer))
		if err := p.publishBatchWithRetry(ctx, p.buffer[i:end]); err != nil {
			// неотправленный хвост остается в буфере до следующего flush
			p.buffer = append(p.buffer[:0], p.buffer[i:]...)
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	p.buffer = p.buffer[:0]
	return nil
}

func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// convertToData раскладывает один цикл на точки CloudWatch:
// счетчик по исходу, длительность и число извлеченных метрик (только для updated).
func (p *MetricsPublisher) convertToData(metric port.CycleMetric) []types.MetricDatum {
	ts := metric.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	outcome := metric.Outcome.String()

	data := []types.MetricDatum{
		p.datum(metricCycles, 1, types.StandardUnitCount, ts, outcome),
		p.datum(metricCycleDuration, float64(metric.Duration.Milliseconds()), types.StandardUnitMilliseconds, ts, outcome),
	}
	if metric.MetricCount > 0 {
		data = append(data, p.datum(metricRecordMetrics, float64(metric.MetricCount), types.StandardUnitCount, ts, ""))
	}
	return data
}

func (p *MetricsPublisher) datum(name string, value float64, unit types.StandardUnit, ts time.Time, outcome string) types.MetricDatum {
	dimensions := make([]types.Dimension, 0, len(p.defaultDimensions)+1)
	for key, val := range p.defaultDimensions {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(val),
		})
	}
	if outcome != "" {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String("Outcome"),
			Value: aws.String(outcome),
		})
	}

	d := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(ts),
		Dimensions: dimensions,
	}
	if p.storageResolution > 0 {
		d.StorageResolution = aws.Int32(p.storageResolution)
	}
	return d
}

// buildAWSConfig: без статических ключей используется стандартная цепочка AWS.
func buildAWSConfig(ctx context.Context, region, endpoint, accessKeyID, secretAccessKey string) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKeyID != "" && secretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}
