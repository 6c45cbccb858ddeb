package logger

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

// Logger оборачивает zap и сохраняет привычный key/value API:
// Info("msg", "key", value, ...), Error("msg", err, "key", value, ...).
type Logger struct {
	zl        *zap.Logger
	level     zap.AtomicLevel
	publisher *atomic.Pointer[publisherHolder]
	fields    []interface{}
}

type publisherHolder struct {
	p port.LogPublisher
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// New создает JSON-логгер zap с уровнем из строки (debug/info/warn/error).
func New(level string) *Logger {
	atomicLevel := zap.NewAtomicLevelAt(toZapLevel(parseLevel(level)))

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	zl, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		zl = zap.NewNop()
	}

	return &Logger{
		zl:        zl,
		level:     atomicLevel,
		publisher: &atomic.Pointer[publisherHolder]{},
	}
}

// NewNop возвращает логгер, который ничего не пишет (для тестов).
func NewNop() *Logger {
	return &Logger{
		zl:        zap.NewNop(),
		level:     zap.NewAtomicLevelAt(zapcore.FatalLevel),
		publisher: &atomic.Pointer[publisherHolder]{},
	}
}

func parseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLevel меняет уровень на лету.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(toZapLevel(parseLevel(level)))
}

// SetLogPublisher дублирует записи во внешнюю систему (CloudWatch Logs).
// nil отключает публикацию.
func (l *Logger) SetLogPublisher(p port.LogPublisher) {
	if p == nil {
		l.publisher.Store(nil)
		return
	}
	l.publisher.Store(&publisherHolder{p: p})
}

// With возвращает дочерний логгер с постоянными полями.
func (l *Logger) With(args ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)

	return &Logger{
		zl:        l.zl,
		level:     l.level,
		publisher: l.publisher,
		fields:    fields,
	}
}

// Sync сбрасывает буферы zap. Ошибку для stdout игнорируем.
func (l *Logger) Sync() {
	_ = l.zl.Sync()
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(zapcore.DebugLevel, msg, nil, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(zapcore.InfoLevel, msg, nil, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(zapcore.WarnLevel, msg, nil, args...)
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	l.log(zapcore.ErrorLevel, msg, err, args...)
}

func (l *Logger) log(level zapcore.Level, msg string, err error, args ...interface{}) {
	if !l.level.Enabled(level) {
		return
	}

	all := args
	if len(l.fields) > 0 {
		all = append(append([]interface{}{}, l.fields...), args...)
	}

	fields := toZapFields(all)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	if ce := l.zl.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}

	l.publish(level, msg, err, all)
}

func (l *Logger) publish(level zapcore.Level, msg string, err error, args []interface{}) {
	holder := l.publisher.Load()
	if holder == nil {
		return
	}

	entry := port.LogEntry{
		Timestamp: time.Now(),
		Level:     toPortLevel(level),
		Message:   msg,
		Fields:    toFieldMap(args),
	}
	if err != nil {
		entry.Fields["error"] = err.Error()
	}

	// LogPublisher не должен блокировать: CloudWatch шлет из своей горутины.
	_ = holder.p.Publish(context.Background(), entry)
}

func toZapFields(args []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			fields = append(fields, zap.String("!BADKEY", key))
			break
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

func toFieldMap(args []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(args)/2+1)
	for i := 0; i+1 < len(args); i += 2 {
		m[fmt.Sprint(args[i])] = args[i+1]
	}
	return m
}

func toPortLevel(level zapcore.Level) port.LogLevel {
	switch level {
	case zapcore.DebugLevel:
		return port.LogLevelDebug
	case zapcore.WarnLevel:
		return port.LogLevelWarn
	case zapcore.ErrorLevel:
		return port.LogLevelError
	default:
		return port.LogLevelInfo
	}
}
