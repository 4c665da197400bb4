// Package memory provides the bounded in-memory task queue used by a single
// service process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

// Queue is a bounded in-memory queue with context-aware operations. After
// Close, Dequeue drains the remaining buffered tasks before reporting
// pipeline.ErrQueueClosed.
type Queue struct {
	ch        chan pipeline.EntryTask
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan pipeline.EntryTask, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a task, blocking while the queue is full. It returns once
// the task is accepted, the context ends, or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, task pipeline.EntryTask) error {
	select {
	case <-q.done:
		return pipeline.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return pipeline.ErrQueueClosed
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (pipeline.EntryTask, error) {
	// Buffered tasks win over shutdown so close drains cleanly.
	select {
	case task := <-q.ch:
		return task, nil
	default:
	}
	select {
	case <-ctx.Done():
		return pipeline.EntryTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task := <-q.ch:
		return task, nil
	case <-q.done:
		select {
		case task := <-q.ch:
			return task, nil
		default:
			return pipeline.EntryTask{}, pipeline.ErrQueueClosed
		}
	}
}

// Close stops the queue. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
