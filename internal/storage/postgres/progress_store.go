package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/feedharvest/internal/store"
)

// ProgressStore implements store.ProgressRepository using Postgres.
type ProgressStore struct {
	pool pgPool
}

// NewProgressStore creates a new ProgressStore with its own connection pool.
func NewProgressStore(ctx context.Context, dsn string) (*ProgressStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &ProgressStore{pool: pool}, nil
}

// NewProgressStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProgressStoreWithPool(pool pgPool) (*ProgressStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProgressStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *ProgressStore) Close() {
	s.pool.Close()
}

// UpsertBatchStart inserts or updates a batch run's start record.
func (s *ProgressStore) UpsertBatchStart(ctx context.Context, batchID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO batch_runs (id, batch_id, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE batch_runs.status <> EXCLUDED.status;
	`
	_, err := s.pool.Exec(ctx, query, batchID, batchID, startedAt, store.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to upsert batch start: %w", err)
	}
	return nil
}

// CompleteBatch marks a batch run finished with a status and optional error message.
func (s *ProgressStore) CompleteBatch(
	ctx context.Context,
	batchID uuid.UUID,
	finishedAt time.Time,
	status store.BatchRunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE batch_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	_, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, batchID)
	if err != nil {
		return fmt.Errorf("failed to complete batch: %w", err)
	}
	return nil
}

// UpsertSiteStats applies entry/byte deltas for a site within a batch.
func (s *ProgressStore) UpsertSiteStats(
	ctx context.Context,
	batchID uuid.UUID,
	site string,
	deltaEntries,
	deltaBytes int64,
	statusClass string,
	at time.Time,
) error {
	var query string
	switch statusClass {
	case "2xx":
		query = `UPDATE site_stats SET entries = entries + $1,
			bytes_total = bytes_total + $2,
			fetch_2xx = fetch_2xx + $1,
			last_update = $3
			WHERE batch_id = $4 AND site = $5;`
	case "3xx":
		query = `UPDATE site_stats SET entries = entries + $1,
			bytes_total = bytes_total + $2,
			fetch_3xx = fetch_3xx + $1,
			last_update = $3
			WHERE batch_id = $4 AND site = $5;`
	case "4xx":
		query = `UPDATE site_stats SET entries = entries + $1,
			bytes_total = bytes_total + $2,
			fetch_4xx = fetch_4xx + $1,
			last_update = $3
			WHERE batch_id = $4 AND site = $5;`
	case "5xx":
		query = `UPDATE site_stats SET entries = entries + $1,
			bytes_total = bytes_total + $2,
			fetch_5xx = fetch_5xx + $1,
			last_update = $3
			WHERE batch_id = $4 AND site = $5;`
	case "other":
		query = `UPDATE site_stats SET entries = entries + $1,
			bytes_total = bytes_total + $2,
			last_update = $3
			WHERE batch_id = $4 AND site = $5;`
	default:
		return fmt.Errorf("unknown status class: %s", statusClass)
	}

	res, err := s.pool.Exec(ctx, query, deltaEntries, deltaBytes, at, batchID, site)
	if err != nil {
		return fmt.Errorf("failed to update site stats: %w", err)
	}
	if res.RowsAffected() == 0 {
		var fetch2xx, fetch3xx, fetch4xx, fetch5xx int64
		switch statusClass {
		case "2xx":
			fetch2xx = deltaEntries
		case "3xx":
			fetch3xx = deltaEntries
		case "4xx":
			fetch4xx = deltaEntries
		case "5xx":
			fetch5xx = deltaEntries
		}

		query = `
			INSERT INTO site_stats (batch_id, site, last_update, entries, bytes_total, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (batch_id, site) DO NOTHING;
		`
		_, err = s.pool.Exec(
			ctx,
			query,
			batchID,
			site,
			at,
			deltaEntries,
			deltaBytes,
			fetch2xx,
			fetch3xx,
			fetch4xx,
			fetch5xx,
		)
		if err != nil {
			return fmt.Errorf("failed to insert site stats: %w", err)
		}
	}
	return nil
}

// GetBatchRun retrieves a single batch run by its ID.
func (s *ProgressStore) GetBatchRun(ctx context.Context, batchID uuid.UUID) (store.BatchRun, error) {
	query := `
		SELECT id, batch_id, started_at, finished_at, status, error_message
		FROM batch_runs
		WHERE id = $1;
	`
	var run store.BatchRun
	err := s.pool.QueryRow(ctx, query, batchID).Scan(
		&run.ID,
		&run.BatchID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.BatchRun{}, store.ErrNotFound
		}
		return store.BatchRun{}, fmt.Errorf("failed to get batch run: %w", err)
	}
	return run, nil
}

// ListBatchRuns retrieves batch runs, optionally filtered by status.
func (s *ProgressStore) ListBatchRuns(
	ctx context.Context,
	status *store.BatchRunStatus,
	limit,
	offset int,
) ([]store.BatchRun, error) {
	query := `
		SELECT id, batch_id, started_at, finished_at, status, error_message
		FROM batch_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}
	defer rows.Close()

	var runs []store.BatchRun
	for rows.Next() {
		var run store.BatchRun
		err := rows.Scan(
			&run.ID,
			&run.BatchID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch runs: %w", err)
	}
	return runs, nil
}

// ListBatchSites retrieves aggregated site statistics for a batch.
func (s *ProgressStore) ListBatchSites(
	ctx context.Context,
	batchID uuid.UUID,
	limit,
	offset int,
) ([]store.SiteStats, error) {
	query := `
		SELECT batch_id, site, last_update, entries, bytes_total, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx
		FROM site_stats
		WHERE batch_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, batchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch sites: %w", err)
	}
	defer rows.Close()

	var stats []store.SiteStats
	for rows.Next() {
		var stat store.SiteStats
		err := rows.Scan(
			&stat.BatchID,
			&stat.Site,
			&stat.LastUpdate,
			&stat.Entries,
			&stat.BytesTotal,
			&stat.Fetch2xx,
			&stat.Fetch3xx,
			&stat.Fetch4xx,
			&stat.Fetch5xx,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site stats: %w", err)
	}
	return stats, nil
}
