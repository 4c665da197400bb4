// Package coordinator owns the batch lifecycle: it resolves submissions into
// entry tasks, hands them to a worker pool, routes per-entry outcomes back to
// the owning batch, and finalizes the batch record with its statistics.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
	"github.com/JakeFAU/feedharvest/internal/progress"
)

const defaultMaxEntries = 200

// ErrNoEntries is returned by Submit when a request resolves to zero
// entries.
var ErrNoEntries = errors.New("batch has no entries")

// ErrBatchFinished is returned by Cancel when the batch already reached a
// terminal status.
var ErrBatchFinished = errors.New("batch already finished")

// FeedSource resolves a feed URL into its entries. The feed package's
// cached parser is the production implementation.
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) ([]pipeline.FeedEntry, error)
}

// Emitter receives batch lifecycle progress events. It may be nil, in which
// case no events are emitted.
type Emitter interface {
	Emit(evt progress.Event)
}

// PoolRunner drains one batch's tasks through a worker pool, reporting each
// terminal outcome to sink. It returns once every handed-over task reached a
// terminal outcome or ctx was canceled with no task in flight. The server
// builds the production runner from the queue, dispatcher, and worker
// packages.
type PoolRunner func(ctx context.Context, tasks []pipeline.EntryTask, sink pipeline.ResultSink)

// Config tunes batch admission.
type Config struct {
	// MaxEntries caps how many feed entries one batch processes; extra
	// entries are dropped, matching the feed-side entry cap.
	MaxEntries int
	// BaseContext parents every batch run. Defaults to
	// context.Background() so runs end only through Cancel or Shutdown.
	BaseContext context.Context
}

// SubmitRequest describes one batch submission: either a feed URL to parse
// or the entries themselves.
type SubmitRequest struct {
	FeedURL string
	Entries []pipeline.FeedEntry
}

type run struct {
	batch     pipeline.Batch
	entries   []pipeline.FeedEntry
	collector *pipeline.Collector
	cancel    context.CancelFunc
	started   time.Time
}

// Coordinator implements pipeline.ResultSink and drives batches from
// submission to their terminal record.
type Coordinator struct {
	feeds   FeedSource
	batches pipeline.BatchStore
	ids     pipeline.IDGenerator
	clock   pipeline.Clock
	emitter Emitter
	pool    PoolRunner
	cfg     Config
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// New wires a coordinator. feeds may be nil when only inline submissions are
// expected; emitter may be nil.
func New(
	feeds FeedSource,
	batches pipeline.BatchStore,
	ids pipeline.IDGenerator,
	clk pipeline.Clock,
	emitter Emitter,
	pool PoolRunner,
	cfg Config,
	logger *zap.Logger,
) (*Coordinator, error) {
	if batches == nil {
		return nil, errors.New("coordinator: batch store is required")
	}
	if ids == nil {
		return nil, errors.New("coordinator: id generator is required")
	}
	if clk == nil {
		return nil, errors.New("coordinator: clock is required")
	}
	if pool == nil {
		return nil, errors.New("coordinator: pool runner is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		feeds:   feeds,
		batches: batches,
		ids:     ids,
		clock:   clk,
		emitter: emitter,
		pool:    pool,
		cfg:     cfg,
		logger:  logger,
		active:  make(map[string]*run),
	}, nil
}

// Submit resolves the request into entries, records the batch, and starts
// processing it asynchronously. The returned batch is in the queued state;
// callers poll the batch store for progress.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (pipeline.Batch, error) {
	entries, err := c.resolveEntries(ctx, req)
	if err != nil {
		return pipeline.Batch{}, err
	}

	id, err := c.ids.NewID()
	if err != nil {
		return pipeline.Batch{}, fmt.Errorf("new batch id: %w", err)
	}
	batch := pipeline.Batch{
		ID:        id,
		Status:    pipeline.BatchStatusQueued,
		FeedURL:   req.FeedURL,
		Submitted: c.clock.Now(),
	}
	if err := c.batches.CreateBatch(ctx, batch); err != nil {
		return pipeline.Batch{}, fmt.Errorf("create batch: %w", err)
	}
	if err := c.start(batch, entries); err != nil {
		return pipeline.Batch{}, err
	}
	c.logger.Info("batch submitted",
		zap.String("batch_id", batch.ID),
		zap.String("feed_url", batch.FeedURL),
		zap.Int("entries", len(entries)),
	)
	return batch, nil
}

func (c *Coordinator) resolveEntries(ctx context.Context, req SubmitRequest) ([]pipeline.FeedEntry, error) {
	entries := req.Entries
	if req.FeedURL != "" {
		if len(entries) > 0 {
			return nil, errors.New("provide either a feed url or entries, not both")
		}
		if c.feeds == nil {
			return nil, errors.New("no feed source configured")
		}
		fetched, err := c.feeds.Fetch(ctx, req.FeedURL)
		if err != nil {
			return nil, fmt.Errorf("fetch feed: %w", err)
		}
		entries = fetched
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	if len(entries) > c.cfg.MaxEntries {
		c.logger.Warn("batch truncated to entry cap",
			zap.Int("requested", len(entries)),
			zap.Int("cap", c.cfg.MaxEntries),
		)
		entries = entries[:c.cfg.MaxEntries]
	}
	return entries, nil
}

// Cancel requests cooperative cancellation of a running batch. In-flight
// entries finish their current attempt; unprocessed entries are recorded as
// failures and the batch ends in the canceled state.
func (c *Coordinator) Cancel(ctx context.Context, batchID string) error {
	c.mu.Lock()
	r, ok := c.active[batchID]
	c.mu.Unlock()
	if ok {
		r.cancel()
		return nil
	}

	batch, err := c.batches.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	return fmt.Errorf("batch %s is %s: %w", batchID, batch.Status, ErrBatchFinished)
}

// EntrySucceeded routes one extracted article to its batch.
func (c *Coordinator) EntrySucceeded(batchID string, index int, article pipeline.Article) {
	r := c.lookup(batchID)
	if r == nil {
		c.logger.Debug("dropping success for unknown batch", zap.String("batch_id", batchID))
		return
	}
	r.collector.RecordSuccess(index, article)
}

// EntryFailed routes one terminal failure to its batch.
func (c *Coordinator) EntryFailed(batchID string, index int, url string, kind pipeline.FailureKind) {
	r := c.lookup(batchID)
	if r == nil {
		c.logger.Debug("dropping failure for unknown batch", zap.String("batch_id", batchID))
		return
	}
	r.collector.RecordFailure(index, url, kind)
}

func (c *Coordinator) lookup(batchID string) *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[batchID]
}
