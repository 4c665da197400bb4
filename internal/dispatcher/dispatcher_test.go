// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
	"github.com/JakeFAU/feedharvest/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(
		queue,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		worker.Config{},
		zap.NewNop(),
	)
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherRunReturnsWhenQueueCloses verifies drain shutdown needs no cancel.
func TestDispatcherRunReturnsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	queue := &closedQueue{}
	w := worker.New(
		queue,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		worker.Config{},
		zap.NewNop(),
	)
	dispatch := New(queue, []*worker.Worker{w})

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after queue close")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), pipeline.EntryTask{BatchID: "batch"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ pipeline.EntryTask) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (pipeline.EntryTask, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return pipeline.EntryTask{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type closedQueue struct{}

func (q *closedQueue) Enqueue(context.Context, pipeline.EntryTask) error {
	return pipeline.ErrQueueClosed
}

func (q *closedQueue) Dequeue(context.Context) (pipeline.EntryTask, error) {
	return pipeline.EntryTask{}, pipeline.ErrQueueClosed
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, pipeline.EntryTask) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (pipeline.EntryTask, error) {
	return pipeline.EntryTask{}, nil
}
