package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config tunes the Hub's buffering behavior.
//   - BufferSize: capacity of the intake channel (default 4096).
//   - MaxBatchEvents: flush once this many events accumulate (default 1000).
//   - MaxBatchWait: flush this long after a batch's first event (default 500ms).
//   - SinkTimeout: deadline applied to each sink delivery (default 10s).
//   - BaseContext: parent context for sink calls (default context.Background()).
//   - Logger: optional logger for drop and sink warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropWarnEvery         = 5 * time.Second
)

// Hub collects fetch and batch progress events from many goroutines and fans
// them out to the registered sinks in batches. Emit never blocks: when the
// intake buffer is full, events are counted and dropped rather than stalling
// a worker mid-fetch.
type Hub struct {
	cfg    Config
	sinks  []Sink
	inbox  chan Event
	quit   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	dropped  atomic.Int64
	lastWarn atomic.Int64
	closed   atomic.Bool
	stopOnce sync.Once
	closeCtx context.Context
}

// NewHub starts the collection goroutine and returns a Hub ready for Emit.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		inbox:  make(chan Event, cfg.BufferSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go h.collect()
	return h
}

// Emit queues evt for delivery. Safe on a nil Hub and after Close; invalid
// events are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.inbox <- evt:
	default:
		h.dropped.Add(1)
		h.warnDrops(time.Now())
	}
}

// warnDrops logs the running drop count at most once per dropWarnEvery.
func (h *Hub) warnDrops(now time.Time) {
	last := h.lastWarn.Load()
	if now.UnixNano()-last < dropWarnEvery.Nanoseconds() {
		return
	}
	if !h.lastWarn.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	h.logger.Warn("progress events dropped, buffer full", zap.Int64("dropped", h.dropped.Swap(0)))
}

// Close flushes buffered events through every sink, closes the sinks, and
// waits for the collection goroutine to exit or for ctx to expire. Later
// calls return once the first shutdown completes.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.quit)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) collect() {
	defer close(h.done)

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	// flushC is nil while no flush deadline is pending; the nil channel
	// blocks forever in the select below.
	var flushC <-chan time.Time

	for {
		select {
		case evt := <-h.inbox:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.dispatch(batch)
				batch = batch[:0]
				flushC = disarm(timer, flushC)
				continue
			}
			if flushC == nil && h.cfg.MaxBatchWait > 0 {
				timer.Reset(h.cfg.MaxBatchWait)
				flushC = timer.C
			}
		case <-flushC:
			flushC = nil
			if len(batch) > 0 {
				h.dispatch(batch)
				batch = batch[:0]
			}
		case <-h.quit:
			disarm(timer, flushC)
			h.drain(batch)
			return
		}
	}
}

// disarm stops the flush timer, draining an already-fired tick so the next
// Reset starts clean, and returns the nil pending channel.
func disarm(timer *time.Timer, flushC <-chan time.Time) <-chan time.Time {
	if flushC != nil && !timer.Stop() {
		<-timer.C
	}
	return nil
}

// drain empties whatever reached the inbox before Close, delivers it, and
// shuts the sinks down.
func (h *Hub) drain(batch []Event) {
	for {
		select {
		case evt := <-h.inbox:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.dispatch(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.dispatch(batch)
			}
			h.closeSinks()
			return
		}
	}
}

// dispatch hands one batch to every sink. Sinks may retain the slice, so each
// flush delivers its own copy.
func (h *Hub) dispatch(batch []Event) {
	if len(batch) == 0 {
		return
	}
	out := append([]Event(nil), batch...)
	base := h.cfg.BaseContext
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := base, func() {}
		if h.cfg.SinkTimeout > 0 {
			ctx, cancel = context.WithTimeout(base, h.cfg.SinkTimeout)
		}
		if err := sink.Consume(ctx, out); err != nil {
			h.logger.Warn("progress sink rejected batch", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
