package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

// BatchStore provides an in-memory batch lifecycle store for
// development/testing.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[string]pipeline.Batch
}

// NewBatchStore constructs a BatchStore.
func NewBatchStore() *BatchStore {
	return &BatchStore{batches: make(map[string]pipeline.Batch)}
}

// CreateBatch stores a new batch record.
func (s *BatchStore) CreateBatch(_ context.Context, batch pipeline.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[batch.ID]; exists {
		return errors.New("batch already exists")
	}
	s.batches[batch.ID] = batch
	return nil
}

// UpdateBatchStatus updates status, error text, and the final result.
func (s *BatchStore) UpdateBatchStatus(
	_ context.Context,
	batchID string,
	status pipeline.BatchStatus,
	errText string,
	result *pipeline.BatchResult,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return pipeline.ErrBatchNotFound
	}
	batch.Status = status
	batch.ErrorText = errText
	if result != nil {
		batch.Result = result
	}
	now := time.Now().UTC()
	if status == pipeline.BatchStatusRunning && batch.Started == nil {
		batch.Started = pointerTime(now)
	}
	if isTerminal(status) && batch.Finished == nil {
		batch.Finished = pointerTime(now)
	}
	s.batches[batchID] = batch
	return nil
}

// GetBatch fetches a batch by ID.
func (s *BatchStore) GetBatch(_ context.Context, batchID string) (pipeline.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return pipeline.Batch{}, pipeline.ErrBatchNotFound
	}
	return batch, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status pipeline.BatchStatus) bool {
	switch status {
	case pipeline.BatchStatusSucceeded, pipeline.BatchStatusFailed, pipeline.BatchStatusCanceled:
		return true
	default:
		return false
	}
}
