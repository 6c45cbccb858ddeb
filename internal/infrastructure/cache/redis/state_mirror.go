package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// Key - ключ, под которым лежит JSON состояния.
	Key string
	// TTL 0 - без истечения.
	TTL         time.Duration
	DialTimeout time.Duration
}

// StateMirror держит копию состояния цикла в Redis для соседних сервисов.
// Каждая запись полностью заменяет предыдущую; изменения публикуются
// в канал <key>:updates.
type StateMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ port.StateMirror = (*StateMirror)(nil)

func NewStateMirror(ctx context.Context, cfg Config) (*StateMirror, error) {
	if cfg.Key == "" {
		cfg.Key = "dashboard:state"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &StateMirror{client: client, key: cfg.Key, ttl: cfg.TTL}, nil
}

// UpdatesChannel - канал Pub/Sub с уведомлениями об изменении.
func (m *StateMirror) UpdatesChannel() string {
	return updatesChannel(m.key)
}

func updatesChannel(key string) string {
	return key + ":updates"
}

func (m *StateMirror) Store(ctx context.Context, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.key, data, m.ttl)
	pipe.Publish(ctx, m.UpdatesChannel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	return nil
}

func (m *StateMirror) Fetch(ctx context.Context, dest interface{}) error {
	val, err := m.client.Get(ctx, m.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return port.ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return nil
}

func (m *StateMirror) Close() error {
	return m.client.Close()
}
