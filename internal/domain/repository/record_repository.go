package repository

import (
	"context"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// RecordRepository - архив зафиксированных записей (Port).
// Реализации: Postgres и SQLite.
type RecordRepository interface {
	// Save сохраняет запись; повторное сохранение того же cycle id игнорируется.
	Save(ctx context.Context, record *entity.ArchivedRecord) error

	// FindRecent возвращает последние записи, новые первыми.
	FindRecent(ctx context.Context, dashboardID string, limit int) ([]*entity.ArchivedRecord, error)

	// FindByTimeRange возвращает записи внутри диапазона, новые первыми.
	FindByTimeRange(ctx context.Context, dashboardID string, tr valueobject.TimeRange, limit int) ([]*entity.ArchivedRecord, error)

	// DeleteOlderThan удаляет записи старше указанного момента.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
