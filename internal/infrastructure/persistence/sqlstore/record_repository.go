package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/repository"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// RecordRepository реализует repository.RecordRepository поверх database/sql.
// Один и тот же SQL работает в Postgres и SQLite.
type RecordRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ repository.RecordRepository = (*RecordRepository)(nil)

func NewRecordRepository(db *sql.DB, dialect Dialect) *RecordRepository {
	return &RecordRepository{db: db, dialect: dialect, now: time.Now}
}

// recordRow - строка таблицы metric_records.
type recordRow struct {
	CycleID        string
	DashboardID    string
	CapturedAtMS   int64
	UpdateTime     string
	ComparisonDate string
	Metrics        string
}

func toRow(r *entity.ArchivedRecord) (*recordRow, error) {
	metrics, err := json.Marshal(r.Record.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics: %w", err)
	}
	return &recordRow{
		CycleID:        r.CycleID,
		DashboardID:    r.DashboardID,
		CapturedAtMS:   r.CapturedAt.UTC().UnixMilli(),
		UpdateTime:     r.Record.UpdateTime,
		ComparisonDate: r.Record.ComparisonDate,
		Metrics:        string(metrics),
	}, nil
}

func (row *recordRow) toEntity() (*entity.ArchivedRecord, error) {
	var metrics []entity.MetricEntry
	if err := json.Unmarshal([]byte(row.Metrics), &metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics of %s: %w", row.CycleID, err)
	}
	return &entity.ArchivedRecord{
		CycleID:     row.CycleID,
		DashboardID: row.DashboardID,
		CapturedAt:  time.UnixMilli(row.CapturedAtMS).UTC(),
		Record: entity.MetricRecord{
			UpdateTime:     row.UpdateTime,
			ComparisonDate: row.ComparisonDate,
			Metrics:        metrics,
		},
	}, nil
}

// Save сохраняет запись. Повтор cycle_id игнорируется.
func (r *RecordRepository) Save(ctx context.Context, record *entity.ArchivedRecord) error {
	row, err := toRow(record)
	if err != nil {
		return err
	}

	query := r.dialect.rebind(`
		INSERT INTO metric_records (cycle_id, dashboard_id, captured_at_ms, update_time, comparison_date, metrics, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cycle_id) DO NOTHING
	`)

	if _, err := r.db.ExecContext(ctx, query,
		row.CycleID,
		row.DashboardID,
		row.CapturedAtMS,
		row.UpdateTime,
		row.ComparisonDate,
		row.Metrics,
		r.now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (r *RecordRepository) FindRecent(ctx context.Context, dashboardID string, limit int) ([]*entity.ArchivedRecord, error) {
	query := r.dialect.rebind(`
		SELECT cycle_id, dashboard_id, captured_at_ms, update_time, comparison_date, metrics
		FROM metric_records
		WHERE dashboard_id = ?
		ORDER BY captured_at_ms DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, dashboardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *RecordRepository) FindByTimeRange(
	ctx context.Context,
	dashboardID string,
	tr valueobject.TimeRange,
	limit int,
) ([]*entity.ArchivedRecord, error) {
	query := r.dialect.rebind(`
		SELECT cycle_id, dashboard_id, captured_at_ms, update_time, comparison_date, metrics
		FROM metric_records
		WHERE dashboard_id = ? AND captured_at_ms BETWEEN ? AND ?
		ORDER BY captured_at_ms DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query,
		dashboardID,
		tr.Start().UTC().UnixMilli(),
		tr.End().UTC().UnixMilli(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by time range: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteOlderThan удаляет записи, снятые раньше before (retention).
func (r *RecordRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := r.dialect.rebind(`DELETE FROM metric_records WHERE captured_at_ms < ?`)

	result, err := r.db.ExecContext(ctx, query, before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}

func scanRecords(rows *sql.Rows) ([]*entity.ArchivedRecord, error) {
	var out []*entity.ArchivedRecord
	for rows.Next() {
		var row recordRow
		if err := rows.Scan(
			&row.CycleID,
			&row.DashboardID,
			&row.CapturedAtMS,
			&row.UpdateTime,
			&row.ComparisonDate,
			&row.Metrics,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		record, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}
