package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// Application
	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/application/usecase"

	// Domain
	"github.com/dreschagin/dashboard-extractor/internal/domain/repository"
	"github.com/dreschagin/dashboard-extractor/internal/domain/service"

	// Extraction
	"github.com/dreschagin/dashboard-extractor/internal/extraction"

	// Infrastructure
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/browser/cdpbrowser"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/browser/rodbrowser"
	redisInfra "github.com/dreschagin/dashboard-extractor/internal/infrastructure/cache/redis"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/collector"
	natsInfra "github.com/dreschagin/dashboard-extractor/internal/infrastructure/messaging/nats"
	wsInfra "github.com/dreschagin/dashboard-extractor/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/observability/metrics"
	dynamodbRepo "github.com/dreschagin/dashboard-extractor/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/persistence/sqlstore"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/storage/filesystem"
	s3storage "github.com/dreschagin/dashboard-extractor/internal/infrastructure/storage/s3"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/vision/gemini"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/vision/openai"

	// Interfaces
	httpInterface "github.com/dreschagin/dashboard-extractor/internal/interfaces/http"
	"github.com/dreschagin/dashboard-extractor/internal/interfaces/http/handler"
	"github.com/dreschagin/dashboard-extractor/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/dashboard-extractor/pkg/config"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

const (
	captureTimeout  = 30 * time.Second
	hostCPUWindow   = 200 * time.Millisecond
	closeTimeout    = 10 * time.Second
	recordsMaxRange = 31 * 24 * time.Hour
)

// app - собранный граф зависимостей одного процесса.
type app struct {
	state   *extraction.SharedState
	loop    *extraction.Loop
	hub     *wsInfra.Hub
	metrics *metrics.Metrics
	handler http.Handler

	closers   []func(ctx context.Context) error
	closeOnce sync.Once
	log       *logger.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// 1. CloudWatch Logs - до остального, чтобы ошибки сборки тоже ушли в облако
	if cfg.CloudWatch.LogsEnabled {
		logs, initErr := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:    cfg.CloudWatch.LogGroupName,
			LogStreamName:   cfg.CloudWatch.LogStreamName,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			BufferSize:      cfg.CloudWatch.LogsBufferSize,
			FlushInterval:   cfg.CloudWatch.LogsFlushInterval,
			AutoCreate:      true,
			StaticFields:    map[string]string{"dashboard_id": cfg.Target.DashboardID},
		})
		if initErr != nil {
			return nil, fmt.Errorf("failed to initialize CloudWatch logs publisher: %w", initErr)
		}
		log.SetLogPublisher(logs)
		a.closers = append(a.closers, logs.Close)
		log.Info("CloudWatch logs publisher initialized", "group", cfg.CloudWatch.LogGroupName)
	}

	// 2. Снимки на диске и разделяемое состояние
	artifacts, err := filesystem.NewArtifactStore(
		cfg.Extraction.SnapshotPath,
		cfg.Extraction.DebugSnapshotPath,
		cfg.Extraction.MaxSnapshotBytes,
	)
	if err != nil {
		return nil, err
	}
	a.state = extraction.NewSharedState(cfg.Extraction.Interval)

	// 3. Браузер, анализатор, проверка готовности
	launcher := newLauncher(cfg.Browser, log)
	analyzer, err := newAnalyzer(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	probe := newProbe(cfg, log)

	cycle := extraction.NewCycle(
		probe,
		analyzer,
		artifacts,
		service.NewRecordValidator(cfg.Target.MetricNames),
		a.state,
		extraction.CycleConfig{
			ReloadTimeout:  cfg.Browser.NavigationTimeout,
			ReadyTimeout:   cfg.Extraction.ReadyTimeout,
			CaptureTimeout: captureTimeout,
			AnalyzeTimeout: cfg.Extraction.AnalyzeTimeout,
			Interval:       cfg.Extraction.Interval,
		},
		log.With("component", "extraction_cycle"),
	)

	a.loop = extraction.NewLoop(
		launcher,
		probe,
		cycle,
		a.state,
		artifacts,
		extraction.LoopConfig{
			TargetURL: cfg.Target.URL,
			Cookie: port.SessionCookie{
				Name:   cfg.Target.CookieName,
				Value:  cfg.Target.CookieValue,
				Domain: cfg.Target.CookieDomain,
				Path:   cfg.Target.CookiePath,
			},
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			FirstReadyTimeout: cfg.Extraction.FirstReadyTimeout,
			Interval:          cfg.Extraction.Interval,
		},
		log,
	)

	// 4. Архив записей
	records, err := a.openRecords(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}

	// 5. Получатели итогов цикла
	a.hub = wsInfra.NewHub(log)
	sinks := usecase.PublishSinks{Notifier: a.hub}
	if records != nil {
		sinks.Records = records
	}

	if cfg.Redis.Enabled {
		mirror, initErr := redisInfra.NewStateMirror(ctx, redisInfra.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			TTL:      cfg.Redis.TTL,
		})
		if initErr != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", initErr)
		}
		sinks.Mirror = mirror
		a.closers = append(a.closers, func(context.Context) error { return mirror.Close() })
		log.Info("Redis state mirror enabled", "key", cfg.Redis.Key, "channel", mirror.UpdatesChannel())
	}

	if cfg.NATS.Enabled {
		events, initErr := natsInfra.NewPublisher(natsInfra.Config{
			URL:       cfg.NATS.URL,
			JetStream: cfg.NATS.JetStream,
			Name:      "dashboard-extractor-" + cfg.Target.DashboardID,
		}, log)
		if initErr != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", initErr)
		}
		sinks.Events = events
		a.closers = append(a.closers, func(context.Context) error { return events.Close() })
		log.Info("NATS event publisher enabled", "subject_prefix", cfg.NATS.SubjectPrefix)
	}

	// 6. Архив снимков: S3 + индекс в DynamoDB
	var listArtifacts *usecase.ListArtifactsUseCase
	if cfg.S3.Enabled {
		storage, metadata, initErr := openArtifactArchive(ctx, cfg)
		if initErr != nil {
			return nil, initErr
		}
		listArtifacts = usecase.NewListArtifactsUseCase(storage, metadata, usecase.ListArtifactsConfig{
			KeyPrefix:           cfg.S3.KeyPrefix,
			FallbackToS3OnError: true,
		}, log)
		if cfg.Storage.ArchiveArtifacts {
			sinks.Archiver = usecase.NewArchiveArtifactUseCase(artifacts, storage, metadata, usecase.ArchiveArtifactConfig{
				KeyPrefix:      cfg.S3.KeyPrefix,
				MetadataTTL:    time.Duration(cfg.Storage.MetadataTTLDays) * 24 * time.Hour,
				MetadataStrict: cfg.Storage.MetadataStrict,
			}, log)
		}
		log.Info("Artifact archive enabled", "bucket", cfg.S3.Bucket, "upload", cfg.Storage.ArchiveArtifacts)
	}

	// 7. Метрики: Prometheus всегда, CloudWatch по флагу
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(registry, a.hub.ClientCount)
	a.metrics.SetPhase(a.state.Snapshot().Phase)

	var cloudMetrics port.MetricsPublisher
	if cfg.CloudWatch.MetricsEnabled {
		publisher, initErr := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			Namespace:         cfg.CloudWatch.MetricsNamespace,
			Region:            cfg.CloudWatch.Region,
			Endpoint:          cfg.CloudWatch.Endpoint,
			AccessKeyID:       cfg.CloudWatch.AccessKeyID,
			SecretAccessKey:   cfg.CloudWatch.SecretAccessKey,
			DefaultDimensions: withDashboard(cfg.CloudWatch.MetricsDimensions, cfg.Target.DashboardID),
			BufferSize:        cfg.CloudWatch.MetricsBufferSize,
			FlushInterval:     cfg.CloudWatch.MetricsFlushInterval,
		}, func(err error) {
			log.Warn("CloudWatch metrics flush failed", "error", err.Error())
		})
		if initErr != nil {
			return nil, fmt.Errorf("failed to initialize CloudWatch metrics publisher: %w", initErr)
		}
		cloudMetrics = publisher
		a.closers = append(a.closers, publisher.Close)
		log.Info("CloudWatch metrics publisher initialized")
	}
	sinks.Metrics = a.metrics.Chain(cloudMetrics)

	host := collector.NewHostStatsCollector(filepath.Dir(cfg.Extraction.SnapshotPath), hostCPUWindow)
	sinks.Host = host

	publish := usecase.NewPublishCycleUseCase(sinks, usecase.PublishCycleConfig{
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		SinkTimeout:   cfg.Extraction.PublishTimeout,
		OnSinkFailure: func(sink string) {
			a.metrics.SinkFailures.WithLabelValues(sink).Inc()
		},
	}, log)

	a.loop.Subscribe(extraction.ObserverFunc(func(_ context.Context, _ extraction.CycleResult, snap extraction.Snapshot) {
		a.metrics.SetPhase(snap.Phase)
	}))
	a.loop.Subscribe(extraction.PublishObserver(publish, cfg.Target.DashboardID, log))

	// 8. HTTP
	var history *usecase.GetRecordHistoryUseCase
	if records != nil {
		history = usecase.NewGetRecordHistoryUseCase(records, service.NewRecordAggregator(), log)
	}
	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}

	router := httpInterface.NewRouter(
		httpInterface.Handlers{
			State: handler.NewStateHandler(
				a.state,
				usecase.NewGetCurrentStateUseCase(a.state, host, log),
				readinessStaleAfter(cfg),
				log,
			),
			Snapshots: handler.NewSnapshotHandler(artifacts, log),
			Records:   handler.NewRecordsHandler(history, cfg.Target.DashboardID, recordsMaxRange, log),
			Artifacts: handler.NewArtifactsHandler(listArtifacts, cfg.Target.DashboardID, log),
			WebSocket: handler.NewWebSocketHandler(a.hub, cfg.Security.AllowedOrigins, log),
			Auth:      handler.NewAuthAPIHandler(authConfig, log),
			Metrics:   a.metrics,
		},
		cfg.Security,
		cfg.RateLimit,
		log,
	)
	a.handler = router.Setup()

	return a, nil
}

func (a *app) openRecords(ctx context.Context, cfg config.ArchiveConfig) (repository.RecordRepository, error) {
	var (
		db      *sql.DB
		dialect sqlstore.Dialect
		err     error
	)

	switch cfg.Driver {
	case "postgres":
		db, err = sqlstore.OpenPostgres(ctx, cfg.Database.DSN(), sqlstore.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		dialect = sqlstore.DialectPostgres
	case "sqlite":
		db, err = sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		dialect = sqlstore.DialectSQLite
	default:
		a.log.Warn("Record archive is disabled, /api/v1/records will answer 503")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open record archive: %w", err)
	}

	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	a.log.Info("Record archive connected", "driver", cfg.Driver)
	return sqlstore.NewRecordRepository(db, dialect), nil
}

func openArtifactArchive(ctx context.Context, cfg *config.Config) (port.ObjectStorage, port.ArtifactMetadataRepository, error) {
	storage, err := s3storage.NewObjectStorage(ctx, s3storage.Config{
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UsePathStyle:    cfg.S3.UsePathStyle,
		URLMode:         s3storage.URLMode(cfg.S3.URLMode),
		PresignedTTL:    cfg.S3.PresignedTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}

	if !cfg.Dynamo.Enabled {
		return storage, nil, nil
	}

	metadata, err := dynamodbRepo.NewArtifactRepository(ctx, dynamodbRepo.Config{
		TableName:       cfg.Dynamo.TableArtifacts,
		Region:          cfg.Dynamo.Region,
		Endpoint:        cfg.Dynamo.Endpoint,
		AccessKeyID:     cfg.Dynamo.AccessKeyID,
		SecretAccessKey: cfg.Dynamo.SecretAccessKey,
		StrongReads:     cfg.Dynamo.StrongReads,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize artifact metadata repository: %w", err)
	}
	return storage, metadata, nil
}

func newLauncher(cfg config.BrowserConfig, log *logger.Logger) port.BrowserLauncher {
	if cfg.Driver == "chromedp" {
		return cdpbrowser.NewLauncher(cdpbrowser.Config{
			RemoteURL:      cfg.RemoteURL,
			BinaryPath:     cfg.BinaryPath,
			Headless:       cfg.Headless,
			ViewportWidth:  cfg.ViewportWidth,
			ViewportHeight: cfg.ViewportHeight,
		}, log)
	}
	return rodbrowser.NewLauncher(rodbrowser.Config{
		RemoteURL:      cfg.RemoteURL,
		BinaryPath:     cfg.BinaryPath,
		Headless:       cfg.Headless,
		Stealth:        cfg.Stealth,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
	}, log)
}

func newAnalyzer(ctx context.Context, cfg *config.Config, log *logger.Logger) (port.VisionAnalyzer, error) {
	if cfg.Analyzer.Provider == "gemini" {
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.Analyzer.APIKey,
			Model:       cfg.Analyzer.Model,
			Prompt:      cfg.Target.Prompt,
			MaxTokens:   cfg.Analyzer.MaxTokens,
			Temperature: cfg.Analyzer.Temperature,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini analyzer: %w", err)
		}
		return client, nil
	}

	if cfg.Analyzer.APIKey == "" {
		log.Warn("ANALYZER_API_KEY is empty, requests to the analyzer will be unauthenticated")
	}
	return openai.NewClient(openai.Config{
		BaseURL:     cfg.Analyzer.BaseURL,
		APIKey:      cfg.Analyzer.APIKey,
		Model:       cfg.Analyzer.Model,
		Prompt:      cfg.Target.Prompt,
		MaxTokens:   cfg.Analyzer.MaxTokens,
		Temperature: cfg.Analyzer.Temperature,
		Timeout:     cfg.Analyzer.RequestTimeout,
	}, log), nil
}

func newProbe(cfg *config.Config, log *logger.Logger) extraction.ReadinessProbe {
	if cfg.Extraction.ReadinessStrategy == "value" {
		return extraction.NewValueChangeProbe(cfg.Target.ValueSelector, cfg.Extraction.PollInterval, log)
	}
	return extraction.NewTextPresenceProbe(cfg.Target.MarkerText, log)
}

// readinessStaleAfter: самый долгий цикл плюс интервал, но не меньше трех интервалов.
func readinessStaleAfter(cfg *config.Config) time.Duration {
	interval := cfg.Extraction.Interval
	worstCycle := cfg.Browser.NavigationTimeout + cfg.Extraction.ReadyTimeout + captureTimeout + cfg.Extraction.AnalyzeTimeout
	return max(3*interval, interval+worstCycle)
}

func withDashboard(dimensions map[string]string, dashboardID string) map[string]string {
	out := make(map[string]string, len(dimensions)+1)
	for k, v := range dimensions {
		out[k] = v
	}
	if _, ok := out["Dashboard"]; !ok && dashboardID != "" {
		out["Dashboard"] = dashboardID
	}
	return out
}

// close освобождает ресурсы в обратном порядке. Повторный вызов ничего не делает.
func (a *app) close() {
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				a.log.Warn("Failed to release resource", "error", err.Error())
			}
		}
	})
}
