package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

// лимиты PutLogEvents
const (
	maxLogEventsPerRequest = 10000
	maxLogBatchSize        = 1048576
	maxLogEventSize        = 256000
	// служебные байты на событие в подсчете размера батча
	logEventOverhead = 26
	// сколько полных буферов копим, пока CloudWatch недоступен
	maxBufferedBatches = 20
)

type LogsPublisherConfig struct {
	LogGroupName    string
	LogStreamName   string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BufferSize      int
	FlushInterval   time.Duration
	AutoCreate      bool
	// StaticFields добавляются в каждое событие (dashboard, host).
	StaticFields map[string]string
}

func (c *LogsPublisherConfig) normalize() error {
	if c.LogGroupName == "" {
		return fmt.Errorf("log group name is required")
	}
	if c.LogStreamName == "" {
		return fmt.Errorf("log stream name is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 50
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	return nil
}

// LogsPublisher отправляет записи zap-логгера в CloudWatch Logs.
type LogsPublisher struct {
	client        *cloudwatchlogs.Client
	logGroupName  string
	logStreamName string
	staticFields  map[string]string

	buffer      []port.LogEntry
	bufferSize  int
	maxBuffered int
	dropped     uint64
	mu          sync.Mutex
	// sendMu упорядочивает PutLogEvents, не блокируя Publish
	sendMu sync.Mutex

	flushTicker *time.Ticker
	flushCh     chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

var _ port.LogPublisher = (*LogsPublisher)(nil)

func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := &LogsPublisher{
		client:        cloudwatchlogs.NewFromConfig(awsCfg),
		logGroupName:  cfg.LogGroupName,
		logStreamName: cfg.LogStreamName,
		staticFields:  cfg.StaticFields,
		buffer:        make([]port.LogEntry, 0, cfg.BufferSize),
		bufferSize:    cfg.BufferSize,
		maxBuffered:   cfg.BufferSize * maxBufferedBatches,
		flushTicker:   time.NewTicker(cfg.FlushInterval),
		flushCh:       make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}

	if cfg.AutoCreate {
		if err := p.ensureLogGroupAndStream(ctx); err != nil {
			p.flushTicker.Stop()
			return nil, fmt.Errorf("failed to create log group/stream: %w", err)
		}
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

func (p *LogsPublisher) Publish(ctx context.Context, entry port.LogEntry) error {
	return p.PublishBatch(ctx, []port.LogEntry{entry})
}

// PublishBatch только буферизует записи. Полный буфер будит flushLoop,
// сама отправка идет в его горутине, поэтому вызывающий не ждет сеть.
// При переполнении отбрасываются самые старые записи.
func (p *LogsPublisher) PublishBatch(_ context.Context, entries []port.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, entries...)
	if p.maxBuffered > 0 && len(p.buffer) > p.maxBuffered {
		over := len(p.buffer) - p.maxBuffered
		p.buffer = append(p.buffer[:0], p.buffer[over:]...)
		p.dropped += uint64(over)
	}
	full := len(p.buffer) >= p.bufferSize
	p.mu.Unlock()

	if full {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Dropped - сколько записей отброшено из-за переполнения буфера.
func (p *LogsPublisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Flush отправляет накопленное синхронно. Буфер забирается под p.mu,
// сеть - уже без него.
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	pending := p.buffer
	p.buffer = make([]port.LogEntry, 0, p.bufferSize)
	p.mu.Unlock()

	return p.send(ctx, pending)
}

func (p *LogsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *LogsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			p.backgroundFlush()
		case <-p.flushCh:
			p.backgroundFlush()
		case <-p.stopCh:
			return
		}
	}
}

// ошибки фонового flush не логируем: логгер сам пишет сюда
func (p *LogsPublisher) backgroundFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = p.Flush(ctx)
}

// send не возвращает записи в буфер при ошибке, иначе при недоступном AWS
// он рос бы без ограничений.
func (p *LogsPublisher) send(ctx context.Context, entries []port.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	for _, batch := range p.buildBatches(entries) {
		if err := p.putLogEvents(ctx, batch); err != nil {
			return fmt.Errorf("failed to publish batch: %w", err)
		}
	}
	return nil
}

// buildBatches сортирует записи по времени и режет на батчи в пределах
// лимитов PutLogEvents по числу событий и суммарному размеру.
func (p *LogsPublisher) buildBatches(entries []port.LogEntry) [][]types.InputLogEvent {
	sorted := make([]port.LogEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		batches [][]types.InputLogEvent
		current []types.InputLogEvent
		size    int
	)
	for _, entry := range sorted {
		event, err := p.convertToLogEvent(entry)
		if err != nil {
			continue
		}
		eventSize := len(*event.Message) + logEventOverhead
		if len(current) > 0 && (len(current) >= maxLogEventsPerRequest || size+eventSize > maxLogBatchSize) {
			batches = append(batches, current)
			current, size = nil, 0
		}
		current = append(current, event)
		size += eventSize
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (p *LogsPublisher) putLogEvents(ctx context.Context, events []types.InputLogEvent) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(p.logGroupName),
			LogStreamName: aws.String(p.logStreamName),
			LogEvents:     events,
		})
		if err == nil {
			return nil
		}
		lastErr = err

		// отклоненные (слишком старые) события повторять бессмысленно
		var rejected *types.InvalidParameterException
		if errors.As(err, &rejected) {
			return err
		}

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

func (p *LogsPublisher) convertToLogEvent(entry port.LogEntry) (types.InputLogEvent, error) {
	logData := map[string]interface{}{
		"timestamp": entry.Timestamp.UTC().Format(time.RFC3339Nano),
		"level":     string(entry.Level),
		"message":   entry.Message,
	}
	for k, v := range p.staticFields {
		logData[k] = v
	}
	if len(entry.Fields) > 0 {
		logData["fields"] = entry.Fields
	}

	messageJSON, err := json.Marshal(logData)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	message := string(messageJSON)
	if len(message) > maxLogEventSize {
		message = message[:maxLogEventSize-3] + "..."
	}

	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
	}, nil
}

func (p *LogsPublisher) ensureLogGroupAndStream(ctx context.Context) error {
	var exists *types.ResourceAlreadyExistsException

	_, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.logGroupName),
	})
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("failed to create log group: %w", err)
	}

	_, err = p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.logGroupName),
		LogStreamName: aws.String(p.logStreamName),
	})
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("failed to create log stream: %w", err)
	}

	return nil
}
