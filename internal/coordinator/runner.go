package coordinator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/metrics"
	"github.com/JakeFAU/feedharvest/internal/pipeline"
	"github.com/JakeFAU/feedharvest/internal/progress"
)

// start registers the run and spawns its goroutine. It fails only while the
// coordinator is shutting down.
func (c *Coordinator) start(batch pipeline.Batch, entries []pipeline.FeedEntry) error {
	runCtx, cancel := context.WithCancel(c.cfg.BaseContext)
	r := &run{
		batch:     batch,
		entries:   entries,
		collector: pipeline.NewCollector(len(entries)),
		cancel:    cancel,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		err := c.batches.UpdateBatchStatus(
			context.Background(), batch.ID, pipeline.BatchStatusCanceled, "service shutting down", nil,
		)
		if err != nil {
			c.logger.Warn("cancel batch during shutdown failed",
				zap.String("batch_id", batch.ID),
				zap.Error(err),
			)
		}
		return errors.New("coordinator is shutting down")
	}
	c.active[batch.ID] = r
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer cancel()
		c.runBatch(runCtx, r)
	}()
	return nil
}

// runBatch drives one batch to its terminal record. Store writes use a
// background context so a canceled run still gets finalized.
func (c *Coordinator) runBatch(ctx context.Context, r *run) {
	r.started = c.clock.Now()
	c.emitBatch(r.batch.ID, progress.StageBatchStart, 0, "")
	err := c.batches.UpdateBatchStatus(
		context.Background(), r.batch.ID, pipeline.BatchStatusRunning, "", nil,
	)
	if err != nil {
		c.logger.Warn("mark batch running failed",
			zap.String("batch_id", r.batch.ID),
			zap.Error(err),
		)
	}

	tasks := make([]pipeline.EntryTask, len(r.entries))
	for i, entry := range r.entries {
		tasks[i] = pipeline.EntryTask{BatchID: r.batch.ID, Index: i, Entry: entry}
	}
	c.pool(ctx, tasks, c)

	canceled := ctx.Err() != nil
	if canceled {
		// Entries the pool never reached still need a terminal outcome.
		r.collector.FillMissing(r.entries, pipeline.FailTimeout)
	}
	result := r.collector.Result(c.clock.Now().Sub(r.started))
	c.finish(r, result, canceled)
}

func (c *Coordinator) finish(r *run, result pipeline.BatchResult, canceled bool) {
	c.mu.Lock()
	delete(c.active, r.batch.ID)
	c.mu.Unlock()

	status := pipeline.BatchStatusSucceeded
	errText := ""
	switch {
	case canceled:
		status = pipeline.BatchStatusCanceled
		errText = "batch canceled"
	case result.Succeeded == 0:
		status = pipeline.BatchStatusFailed
		errText = "no entries produced articles"
	}

	err := c.batches.UpdateBatchStatus(context.Background(), r.batch.ID, status, errText, &result)
	if err != nil {
		c.logger.Error("finalize batch failed",
			zap.String("batch_id", r.batch.ID),
			zap.Error(err),
		)
	}
	metrics.ObserveBatch(string(status))

	elapsed := time.Duration(result.ElapsedMs) * time.Millisecond
	if status == pipeline.BatchStatusSucceeded {
		c.emitBatch(r.batch.ID, progress.StageBatchDone, elapsed, "")
	} else {
		c.emitBatch(r.batch.ID, progress.StageBatchError, elapsed, errText)
	}

	c.logger.Info("batch finished",
		zap.String("batch_id", r.batch.ID),
		zap.String("status", string(status)),
		zap.Int("requested", result.Requested),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failures)),
		zap.Int64("elapsed_ms", result.ElapsedMs),
	)
}

func (c *Coordinator) emitBatch(batchID string, stage progress.Stage, dur time.Duration, note string) {
	if c.emitter == nil {
		return
	}
	raw, ok := progress.ParseBatchID(batchID)
	if !ok {
		return
	}
	c.emitter.Emit(progress.Event{
		BatchID: raw,
		TS:      c.clock.Now(),
		Stage:   stage,
		Dur:     dur,
		Note:    note,
	})
}

// Shutdown cancels every active batch and waits until their runs have
// finalized, so no batch is left stuck in the running state.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, r := range c.active {
		r.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
