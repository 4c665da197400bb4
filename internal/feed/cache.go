package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

const defaultCacheTTL = 2 * time.Hour

// CachedParser wraps a Source with a TTL cache and single-flight fetch
// deduplication, so a feed hammered by overlapping batch submissions is
// downloaded at most once per TTL window. Failed fetches are never cached.
type CachedParser struct {
	source Source
	ttl    time.Duration
	clock  pipeline.Clock
	logger *zap.Logger

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cachedFeed
}

type cachedFeed struct {
	entries   []pipeline.FeedEntry
	fetchedAt time.Time
}

// NewCachedParser wraps source. A non-positive ttl defaults to two hours.
func NewCachedParser(source Source, ttl time.Duration, clk pipeline.Clock, logger *zap.Logger) *CachedParser {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedParser{
		source: source,
		ttl:    ttl,
		clock:  clk,
		logger: logger,
		cache:  make(map[string]cachedFeed),
	}
}

// Fetch returns cached entries when fresh, otherwise delegates to the
// underlying source. Concurrent misses for the same URL share one fetch.
func (c *CachedParser) Fetch(ctx context.Context, feedURL string) ([]pipeline.FeedEntry, error) {
	if entries, ok := c.fresh(feedURL); ok {
		c.logger.Debug("feed cache hit", zap.String("feed_url", feedURL))
		return entries, nil
	}

	v, err, shared := c.group.Do(feedURL, func() (any, error) {
		// A concurrent flight may have refilled the cache while this
		// caller waited on the group lock.
		if entries, ok := c.fresh(feedURL); ok {
			return entries, nil
		}
		entries, err := c.source.Fetch(ctx, feedURL)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[feedURL] = cachedFeed{entries: entries, fetchedAt: c.clock.Now()}
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("feed fetch shared across callers", zap.String("feed_url", feedURL))
	}
	return v.([]pipeline.FeedEntry), nil
}

func (c *CachedParser) fresh(feedURL string) ([]pipeline.FeedEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.cache[feedURL]
	if !ok || c.clock.Now().Sub(cached.fetchedAt) >= c.ttl {
		return nil, false
	}
	return cached.entries, true
}
