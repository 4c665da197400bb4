package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedharvest/internal/store"
)

func TestUpsertBatchStart(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	batchID := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO batch_runs").
		WithArgs(batchID, batchID, startedAt, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ps.UpsertBatchStart(context.Background(), batchID, startedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteBatchWritesStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	batchID := uuid.New()
	finishedAt := time.Unix(1700003600, 0).UTC()
	errMsg := "feed unreachable"

	mock.ExpectExec("UPDATE batch_runs").
		WithArgs(finishedAt, store.RunError, &errMsg, batchID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, ps.CompleteBatch(context.Background(), batchID, finishedAt, store.RunError, &errMsg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSiteStatsUpdatesExistingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	batchID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE site_stats").
		WithArgs(int64(3), int64(2048), at, batchID, "news.example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = ps.UpsertSiteStats(context.Background(), batchID, "news.example.com", 3, 2048, "2xx", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSiteStatsInsertsWhenMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	batchID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE site_stats").
		WithArgs(int64(1), int64(512), at, batchID, "blog.example.org").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO site_stats").
		WithArgs(batchID, "blog.example.org", at, int64(1), int64(512),
			int64(0), int64(0), int64(1), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = ps.UpsertSiteStats(context.Background(), batchID, "blog.example.org", 1, 512, "4xx", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSiteStatsRejectsUnknownClass(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	err = ps.UpsertSiteStats(context.Background(), uuid.New(), "x", 1, 1, "6xx", time.Now())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBatchRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	batchID := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()
	columns := []string{"id", "batch_id", "started_at", "finished_at", "status", "error_message"}

	mock.ExpectQuery("SELECT id, batch_id, started_at").
		WithArgs(batchID).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(batchID, batchID, startedAt, (*time.Time)(nil), store.RunRunning, (*string)(nil)))

	run, err := ps.GetBatchRun(context.Background(), batchID)
	require.NoError(t, err)
	require.Equal(t, batchID, run.BatchID)
	require.Equal(t, store.RunRunning, run.Status)
	require.Nil(t, run.FinishedAt)
	require.Nil(t, run.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBatchRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	batchID := uuid.New()
	mock.ExpectQuery("SELECT id, batch_id, started_at").
		WithArgs(batchID).
		WillReturnError(pgx.ErrNoRows)

	_, err = ps.GetBatchRun(context.Background(), batchID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBatchRunsFiltersByStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	status := store.RunSuccess
	batchID := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()
	finishedAt := startedAt.Add(time.Minute)
	columns := []string{"id", "batch_id", "started_at", "finished_at", "status", "error_message"}

	mock.ExpectQuery("SELECT id, batch_id, started_at").
		WithArgs(&status, 10, 0).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(batchID, batchID, startedAt, &finishedAt, store.RunSuccess, (*string)(nil)))

	runs, err := ps.ListBatchRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, store.RunSuccess, runs[0].Status)
	require.NotNil(t, runs[0].FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBatchSites(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ps, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	batchID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()
	columns := []string{
		"batch_id", "site", "last_update", "entries", "bytes_total",
		"fetch_2xx", "fetch_3xx", "fetch_4xx", "fetch_5xx",
	}

	mock.ExpectQuery("SELECT batch_id, site, last_update").
		WithArgs(batchID, 25, 0).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(batchID, "news.example.com", at, int64(12), int64(40960),
				int64(10), int64(0), int64(2), int64(0)))

	stats, err := ps.ListBatchSites(context.Background(), batchID, 25, 0)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, "news.example.com", stats[0].Site)
	require.Equal(t, int64(12), stats[0].Entries)
	require.Equal(t, int64(40960), stats[0].BytesTotal)
	require.NoError(t, mock.ExpectationsWereMet())
}
