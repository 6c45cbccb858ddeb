package port

import (
	"context"
	"errors"
)

// ErrCacheMiss - ключ отсутствует в кэше.
var ErrCacheMiss = errors.New("cache miss")

// StateMirror хранит копию последнего состояния во внешнем кэше (Redis),
// чтобы соседние сервисы читали его без HTTP.
type StateMirror interface {
	// Store сохраняет значение под ключом состояния.
	Store(ctx context.Context, value interface{}) error

	// Fetch читает значение в dest. Отсутствие ключа - ErrCacheMiss.
	Fetch(ctx context.Context, dest interface{}) error

	Close() error
}
