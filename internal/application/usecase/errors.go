package usecase

import "errors"

var (
	// ErrInvalidArgument - некорректный запрос (HTTP 400).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotConfigured - нужный адаптер выключен в конфигурации (HTTP 503).
	ErrNotConfigured = errors.New("not configured")
)
