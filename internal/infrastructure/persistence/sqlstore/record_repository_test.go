package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

func newSQLiteRepo(t *testing.T) *RecordRepository {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "archive", "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRecordRepository(db, DialectSQLite)
}

func record(t *testing.T, id string, at time.Time, value string) *entity.ArchivedRecord {
	t.Helper()
	r, err := entity.NewArchivedRecord(id, "main", at, &entity.MetricRecord{
		UpdateTime:     "10:00",
		ComparisonDate: "yesterday",
		Metrics:        []entity.MetricEntry{{Name: "GMV", Value: value, Comparison: "+1%", Status: "up"}},
	})
	require.NoError(t, err)
	return r
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y BETWEEN ? AND ?"
	if got := DialectPostgres.rebind(q); got != "SELECT a FROM t WHERE x = $1 AND y BETWEEN $2 AND $3" {
		t.Fatalf("postgres rebind = %s", got)
	}
	if got := DialectSQLite.rebind(q); got != q {
		t.Fatalf("sqlite rebind changed query: %s", got)
	}
}

func TestSaveAndFindRecent(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := record(t, "c1", t0, "100")
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, record(t, "c2", t0.Add(time.Minute), "200")))
	// повтор cycle_id не дублирует строку
	require.NoError(t, repo.Save(ctx, record(t, "c1", t0, "999")))

	got, err := repo.FindRecent(ctx, "main", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	if got[0].CycleID != "c2" {
		t.Fatalf("newest first expected, got %s", got[0].CycleID)
	}
	if diff := cmp.Diff(first, got[1]); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	other, err := repo.FindRecent(ctx, "other", 10)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestFindByTimeRangeAndRetention(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, record(t, id, t0.Add(time.Duration(i)*time.Hour), "1")))
	}

	tr, err := valueobject.NewTimeRange(t0.Add(30*time.Minute), t0.Add(2*time.Hour))
	require.NoError(t, err)

	got, err := repo.FindByTimeRange(ctx, "main", tr, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].CycleID)

	deleted, err := repo.DeleteOlderThan(ctx, t0.Add(90*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	rest, err := repo.FindRecent(ctx, "main", 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}
