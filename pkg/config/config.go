package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultTargetURL   = "https://www.life-data.cn/?channel_id=laike_data_first_menu&groupid=1768205901316096"
	DefaultMarkerText  = "今日实时数据"
	DefaultCookieName  = "satoken"
	DefaultCookieHost  = "www.life-data.cn"
	DefaultAnalyzerURL = "https://api-inference.modelscope.cn/v1/"
	DefaultModel       = "Qwen/Qwen2.5-VL-7B-Instruct"
)

// DefaultMetricNames - карточки, которые нужно извлекать с дашборда.
var DefaultMetricNames = []string{"成交金额", "核销金额", "商品访问人数", "核销券数"}

// DefaultPrompt повторяет формат ответа, который потом разбирает vision.ParseRecord.
const DefaultPrompt = `你是一个专业的数据分析师。请分析这张仪表盘截图，并提取所有关键指标卡片的信息。
严格按照以下JSON格式返回，不要添加任何额外的解释或Markdown标记。
{ "update_time": "...", "comparison_date": "...", "metrics": [ { "name": "...", "value": "...", "comparison": "...", "status": "..." } ] }
请确保：
1. **只提取以下指标**：成交金额、核销金额、商品访问人数、核销券数。
2. **忽略“退款金额”** 以及其他所有未列出的指标。
3. 所有字段都从图片中准确提取。`

type Config struct {
	Server     ServerConfig
	Target     TargetConfig
	Browser    BrowserConfig
	Extraction ExtractionConfig
	Analyzer   AnalyzerConfig
	Storage    StorageConfig
	Archive    ArchiveConfig
	Redis      RedisConfig
	NATS       NATSConfig
	S3         S3Config
	Dynamo     DynamoConfig
	CloudWatch CloudWatchConfig
	Security   SecurityConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// TargetConfig описывает страницу дашборда и сессионную cookie.
type TargetConfig struct {
	DashboardID   string
	URL           string
	CookieName    string
	CookieValue   string
	CookieDomain  string
	CookiePath    string
	MarkerText    string
	ValueSelector string
	MetricNames   []string
	Prompt        string
	ProfileFile   string
}

type BrowserConfig struct {
	Driver            string // rod | chromedp
	RemoteURL         string // ws:// адрес уже запущенного браузера, пусто - запускаем свой
	BinaryPath        string
	Headless          bool
	Stealth           bool
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
}

type ExtractionConfig struct {
	Interval          time.Duration
	FirstReadyTimeout time.Duration
	ReadyTimeout      time.Duration
	ReadinessStrategy string // text | value
	PollInterval      time.Duration
	AnalyzeTimeout    time.Duration
	PublishTimeout    time.Duration
	SnapshotPath      string
	DebugSnapshotPath string
	MaxSnapshotBytes  int
}

type AnalyzerConfig struct {
	Provider       string // openai | gemini
	BaseURL        string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
}

type StorageConfig struct {
	ArchiveArtifacts bool
	MetadataTTLDays  int
	MetadataStrict   bool
}

// ArchiveConfig - история зафиксированных записей (Postgres или SQLite).
type ArchiveConfig struct {
	Driver     string // "", postgres, sqlite
	SQLitePath string
	Database   DatabaseConfig
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
	JetStream     bool
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
	URLMode         string
	PresignedTTL    time.Duration
}

type DynamoConfig struct {
	Enabled         bool
	TableArtifacts  string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
}

type CloudWatchConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	MetricsEnabled       bool
	MetricsNamespace     string
	MetricsDimensions    map[string]string
	MetricsBufferSize    int
	MetricsFlushInterval time.Duration

	LogsEnabled       bool
	LogGroupName      string
	LogStreamName     string
	LogsBufferSize    int
	LogsFlushInterval time.Duration
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	// TrustedProxies - CIDR или адреса прокси, которым верим X-Forwarded-For.
	TrustedProxies []string
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	p := &parser{}

	interval := p.duration("EXTRACTION_INTERVAL", "15s")
	firstReady := p.duration("EXTRACTION_FIRST_READY_TIMEOUT", "30s")
	ready := p.duration("EXTRACTION_READY_TIMEOUT", "60s")
	poll := p.duration("EXTRACTION_POLL_INTERVAL", "500ms")
	analyzeTimeout := p.duration("ANALYZER_TIMEOUT", "90s")
	publishTimeout := p.duration("EXTRACTION_PUBLISH_TIMEOUT", "5s")
	navTimeout := p.duration("BROWSER_NAVIGATION_TIMEOUT", "90s")
	presignedTTL := p.duration("S3_PRESIGNED_TTL", "5m")
	redisTTL := p.duration("REDIS_TTL", "0s")
	cwMetricsFlush := p.duration("CLOUDWATCH_METRICS_FLUSH_INTERVAL", "60s")
	cwLogsFlush := p.duration("CLOUDWATCH_LOGS_FLUSH_INTERVAL", "5s")
	readTimeout := p.duration("SERVER_READ_TIMEOUT", "10s")
	writeTimeout := p.duration("SERVER_WRITE_TIMEOUT", "30s")

	maxTokens := p.integer("ANALYZER_MAX_TOKENS", "2048")
	maxSnapshotMB := p.integer("EXTRACTION_MAX_SNAPSHOT_MB", "20")
	viewportW := p.integer("BROWSER_VIEWPORT_WIDTH", "1440")
	viewportH := p.integer("BROWSER_VIEWPORT_HEIGHT", "900")
	redisDB := p.integer("REDIS_DB", "0")
	metadataTTL := p.integer("ARTIFACT_METADATA_TTL_DAYS", "30")
	cwMetricsBuf := p.integer("CLOUDWATCH_METRICS_BUFFER_SIZE", "20")
	cwLogsBuf := p.integer("CLOUDWATCH_LOGS_BUFFER_SIZE", "50")
	burst := p.integer("RATE_LIMIT_BURST", "20")

	temperature := p.float("ANALYZER_TEMPERATURE", "0.1")
	rps := p.float("RATE_LIMIT_RPS", "10")

	if p.err != nil {
		return nil, p.err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "7860"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Target: TargetConfig{
			DashboardID:   getEnv("DASHBOARD_ID", "life-data"),
			URL:           getEnv("TARGET_URL", DefaultTargetURL),
			CookieName:    getEnv("TARGET_COOKIE_NAME", DefaultCookieName),
			CookieValue:   strings.TrimSpace(getEnv("DASHBOARD_COOKIE", os.Getenv("LIFE_DATA_COOKIE"))),
			CookieDomain:  getEnv("TARGET_COOKIE_DOMAIN", DefaultCookieHost),
			CookiePath:    getEnv("TARGET_COOKIE_PATH", "/"),
			MarkerText:    getEnv("TARGET_MARKER_TEXT", DefaultMarkerText),
			ValueSelector: getEnv("TARGET_VALUE_SELECTOR", ""),
			MetricNames:   splitCSV(getEnv("TARGET_METRICS", "")),
			Prompt:        getEnv("ANALYZER_PROMPT", ""),
			ProfileFile:   getEnv("TARGET_PROFILE_FILE", ""),
		},
		Browser: BrowserConfig{
			Driver:            strings.ToLower(getEnv("BROWSER_DRIVER", "rod")),
			RemoteURL:         getEnv("BROWSER_REMOTE_URL", ""),
			BinaryPath:        getEnv("BROWSER_BIN", ""),
			Headless:          getEnvBool("BROWSER_HEADLESS", true),
			Stealth:           getEnvBool("BROWSER_STEALTH", true),
			NavigationTimeout: navTimeout,
			ViewportWidth:     viewportW,
			ViewportHeight:    viewportH,
		},
		Extraction: ExtractionConfig{
			Interval:          interval,
			FirstReadyTimeout: firstReady,
			ReadyTimeout:      ready,
			ReadinessStrategy: strings.ToLower(getEnv("READINESS_STRATEGY", "text")),
			PollInterval:      poll,
			AnalyzeTimeout:    analyzeTimeout,
			PublishTimeout:    publishTimeout,
			SnapshotPath:      getEnv("SNAPSHOT_PATH", "dashboard_screenshot.png"),
			DebugSnapshotPath: getEnv("DEBUG_SNAPSHOT_PATH", "debug_screenshot.png"),
			MaxSnapshotBytes:  maxSnapshotMB * 1024 * 1024,
		},
		Analyzer: AnalyzerConfig{
			Provider:       strings.ToLower(getEnv("ANALYZER_PROVIDER", "openai")),
			BaseURL:        getEnv("ANALYZER_BASE_URL", DefaultAnalyzerURL),
			APIKey:         getEnv("ANALYZER_API_KEY", ""),
			Model:          getEnv("ANALYZER_MODEL", DefaultModel),
			MaxTokens:      maxTokens,
			Temperature:    temperature,
			RequestTimeout: analyzeTimeout,
		},
		Storage: StorageConfig{
			ArchiveArtifacts: getEnvBool("ARTIFACT_ARCHIVE_ENABLED", false),
			MetadataTTLDays:  metadataTTL,
			MetadataStrict:   getEnvBool("ARTIFACT_METADATA_STRICT", false),
		},
		Archive: ArchiveConfig{
			Driver:     strings.ToLower(getEnv("ARCHIVE_DRIVER", "")),
			SQLitePath: getEnv("ARCHIVE_SQLITE_PATH", "records.db"),
			Database: DatabaseConfig{
				Host:            getEnv("DB_HOST", "localhost"),
				Port:            getEnv("DB_PORT", "5432"),
				User:            getEnv("DB_USER", "postgres"),
				Password:        getEnv("DB_PASSWORD", "postgres"),
				Database:        getEnv("DB_NAME", "dashboard"),
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 10 * time.Minute,
			},
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			Key:      getEnv("REDIS_STATE_KEY", "dashboard:state"),
			TTL:      redisTTL,
		},
		NATS: NATSConfig{
			Enabled:       getEnvBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "dashboard.cycle"),
			JetStream:     getEnvBool("NATS_JETSTREAM", false),
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "ru-central1"),
			Endpoint:        getEnv("S3_ENDPOINT", "https://storage.yandexcloud.net"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "artifacts"),
			URLMode:         getEnv("S3_URL_MODE", "presigned"),
			PresignedTTL:    presignedTTL,
		},
		Dynamo: DynamoConfig{
			Enabled:         getEnvBool("DYNAMO_ENABLED", false),
			TableArtifacts:  getEnv("DYNAMO_TABLE_ARTIFACTS", "dashboard_artifacts"),
			Region:          getEnv("DYNAMO_REGION", getEnv("AWS_REGION", "us-east-1")),
			Endpoint:        getEnv("DYNAMO_ENDPOINT", ""),
			AccessKeyID:     getEnv("DYNAMO_ACCESS_KEY_ID", getEnv("AWS_ACCESS_KEY_ID", "")),
			SecretAccessKey: getEnv("DYNAMO_SECRET_ACCESS_KEY", getEnv("AWS_SECRET_ACCESS_KEY", "")),
			StrongReads:     getEnvBool("DYNAMO_STRONG_READS", false),
		},
		CloudWatch: CloudWatchConfig{
			Region:               getEnv("CLOUDWATCH_REGION", getEnv("AWS_REGION", "us-east-1")),
			Endpoint:             getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MetricsEnabled:       getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			MetricsNamespace:     getEnv("CLOUDWATCH_METRICS_NAMESPACE", "DashboardExtractor"),
			MetricsDimensions:    parseKeyValues(getEnv("CLOUDWATCH_METRICS_DIMENSIONS", "")),
			MetricsBufferSize:    cwMetricsBuf,
			MetricsFlushInterval: cwMetricsFlush,
			LogsEnabled:          getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			LogGroupName:         getEnv("CLOUDWATCH_LOG_GROUP", "/dashboard-extractor"),
			LogStreamName:        getEnv("CLOUDWATCH_LOG_STREAM", hostnameOr("local")),
			LogsBufferSize:       cwLogsBuf,
			LogsFlushInterval:    cwLogsFlush,
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:7860,http://127.0.0.1:7860")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RPS:            rps,
			Burst:          burst,
			TrustedProxies: splitCSV(getEnv("TRUSTED_PROXIES", "")),
		},
	}

	if cfg.Target.ProfileFile != "" {
		profile, err := LoadProfile(cfg.Target.ProfileFile)
		if err != nil {
			return nil, err
		}
		profile.ApplyTo(&cfg.Target)
	}

	if len(cfg.Target.MetricNames) == 0 {
		cfg.Target.MetricNames = append([]string(nil), DefaultMetricNames...)
	}
	if cfg.Target.Prompt == "" {
		cfg.Target.Prompt = DefaultPrompt
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет согласованность настроек. Отсутствие cookie здесь не ошибка:
// это предусловие запуска цикла, и HTTP при этом должен продолжать работать.
func (c *Config) Validate() error {
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if c.Extraction.Interval <= 0 {
		return fmt.Errorf("EXTRACTION_INTERVAL must be positive")
	}
	if c.Extraction.FirstReadyTimeout <= 0 || c.Extraction.ReadyTimeout <= 0 {
		return fmt.Errorf("readiness timeouts must be positive")
	}

	switch c.Extraction.ReadinessStrategy {
	case "text":
		if c.Target.MarkerText == "" {
			return fmt.Errorf("TARGET_MARKER_TEXT is required for text readiness")
		}
	case "value":
		if c.Target.ValueSelector == "" {
			return fmt.Errorf("TARGET_VALUE_SELECTOR is required for value readiness")
		}
	default:
		return fmt.Errorf("unknown READINESS_STRATEGY %q", c.Extraction.ReadinessStrategy)
	}

	switch c.Browser.Driver {
	case "rod", "chromedp":
	default:
		return fmt.Errorf("unknown BROWSER_DRIVER %q", c.Browser.Driver)
	}

	switch c.Analyzer.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown ANALYZER_PROVIDER %q", c.Analyzer.Provider)
	}

	switch c.Archive.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown ARCHIVE_DRIVER %q", c.Archive.Driver)
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}

	for _, proxy := range c.RateLimit.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
		}
	}

	return nil
}

// HasCredential сообщает, задана ли сессионная cookie.
func (t TargetConfig) HasCredential() bool {
	return strings.TrimSpace(t.CookieValue) != ""
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// parser копит первую ошибку разбора, чтобы Load не превращался в лестницу if err != nil.
type parser struct {
	err error
}

func (p *parser) duration(key, def string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return d
}

func (p *parser) integer(key, def string) int {
	n, err := strconv.Atoi(getEnv(key, def))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

func (p *parser) float(key, def string) float64 {
	f, err := strconv.ParseFloat(getEnv(key, def), 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return f
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseKeyValues разбирает "Env=prod,Region=eu" в map.
func parseKeyValues(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitCSV(raw) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
