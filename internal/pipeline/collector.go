package pipeline

import (
	"sort"
	"sync"
	"time"
)

// Collector accumulates per-entry outcomes for one batch. It is safe for
// concurrent use by the worker pool. Each entry index is counted at most
// once; later calls for the same index are ignored.
type Collector struct {
	mu         sync.Mutex
	requested  int
	succeeded  int
	withImages int
	totalTags  int
	seen       map[int]struct{}
	failures   []indexedFailure
}

type indexedFailure struct {
	index int
	url   string
	kind  FailureKind
}

// NewCollector returns a collector for a batch of the given size.
func NewCollector(requested int) *Collector {
	return &Collector{
		requested: requested,
		seen:      make(map[int]struct{}, requested),
	}
}

// RecordSuccess counts one extracted article.
func (c *Collector) RecordSuccess(index int, article Article) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[index]; dup {
		return
	}
	c.seen[index] = struct{}{}
	c.succeeded++
	if article.LeadImage != "" {
		c.withImages++
	}
	c.totalTags += len(article.Tags)
}

// RecordFailure counts one terminally failed entry.
func (c *Collector) RecordFailure(index int, url string, kind FailureKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[index]; dup {
		return
	}
	c.seen[index] = struct{}{}
	c.failures = append(c.failures, indexedFailure{index: index, url: url, kind: kind})
}

// FillMissing records a failure for every entry that has no outcome yet,
// keeping the requested/succeeded/failures identity intact when a batch is
// interrupted before the queue drains.
func (c *Collector) FillMissing(entries []FeedEntry, kind FailureKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range entries {
		if _, done := c.seen[i]; done {
			continue
		}
		c.seen[i] = struct{}{}
		c.failures = append(c.failures, indexedFailure{index: i, url: entry.URL, kind: kind})
	}
}

// Result assembles the batch summary. Failures come back in submission
// order.
func (c *Collector) Result(elapsed time.Duration) BatchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.Slice(c.failures, func(i, j int) bool {
		return c.failures[i].index < c.failures[j].index
	})
	failures := make([]EntryFailure, 0, len(c.failures))
	for _, f := range c.failures {
		failures = append(failures, EntryFailure{URL: f.url, Kind: f.kind})
	}
	return BatchResult{
		Requested:  c.requested,
		Succeeded:  c.succeeded,
		WithImages: c.withImages,
		TotalTags:  c.totalTags,
		ElapsedMs:  elapsed.Milliseconds(),
		Failures:   failures,
	}
}
