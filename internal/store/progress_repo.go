// Package store declares interfaces for persisting batch progress.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// BatchRunStatus mirrors the batch_runs status column.
type BatchRunStatus string

// Batch run statuses persisted in batch_runs.status.
const (
	RunRunning BatchRunStatus = "running"
	RunSuccess BatchRunStatus = "success"
	RunError   BatchRunStatus = "error"
)

// BatchRun models the batch_runs table for API responses.
type BatchRun struct {
	// ID is the primary key of batch_runs (may match BatchID depending on schema).
	ID uuid.UUID
	// BatchID is the logical harvest identifier shared with workers.
	BatchID uuid.UUID
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status BatchRunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// SiteStats captures per-publisher aggregation for a batch.
type SiteStats struct {
	// BatchID is the owning batch.
	BatchID uuid.UUID
	// Site is the normalized host label (e.g., news.example.com).
	Site string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	// Entries counts terminally processed entries for the site.
	Entries int64
	// BytesTotal accumulates response bytes.
	BytesTotal int64
	// Fetch2xx-5xx hold per-status counts for diagnostics.
	Fetch2xx int64
	Fetch3xx int64
	Fetch4xx int64
	Fetch5xx int64
}

// ProgressRepository persists incremental batch progress.
type ProgressRepository interface {
	// UpsertBatchStart inserts (or idempotently updates) the started_at timestamp.
	UpsertBatchStart(ctx context.Context, batchID uuid.UUID, startedAt time.Time) error
	// CompleteBatch marks the run finished with the provided status and error.
	CompleteBatch(ctx context.Context, batchID uuid.UUID, finishedAt time.Time, status BatchRunStatus, errMsg *string) error
	// UpsertSiteStats applies entry/byte deltas per (batch, site, statusClass).
	UpsertSiteStats(
		ctx context.Context,
		batchID uuid.UUID,
		site string,
		deltaEntries int64,
		deltaBytes int64,
		statusClass string,
		at time.Time,
	) error

	// GetBatchRun loads a single batch run or returns ErrNotFound.
	GetBatchRun(ctx context.Context, batchID uuid.UUID) (BatchRun, error)
	// ListBatchRuns returns batch runs filtered by optional status plus limit/offset.
	ListBatchRuns(ctx context.Context, status *BatchRunStatus, limit, offset int) ([]BatchRun, error)
	// ListBatchSites returns aggregated site stats for one batch.
	ListBatchSites(ctx context.Context, batchID uuid.UUID, limit, offset int) ([]SiteStats, error)
}
