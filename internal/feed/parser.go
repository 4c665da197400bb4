// Package feed fetches syndication feeds and maps their items into pipeline
// entries.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

// userAgent is browser-like because some publishers block generic bot agents
// even on their feed endpoints.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const acceptHeader = "application/rss+xml, application/xml, text/xml, */*"

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxEntries = 200
)

// Source produces the entries of a feed. Parser is the network-backed
// implementation; CachedParser wraps any Source with a TTL cache.
type Source interface {
	Fetch(ctx context.Context, feedURL string) ([]pipeline.FeedEntry, error)
}

// Parser downloads a feed over HTTP and parses it with gofeed. Safe for
// concurrent use.
type Parser struct {
	client     *http.Client
	maxEntries int
	logger     *zap.Logger
}

// NewParser builds a parser. A nil client gets a 30s-timeout default;
// maxEntries caps how many items one fetch may hand to the pipeline.
func NewParser(client *http.Client, maxEntries int, logger *zap.Logger) *Parser {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{client: client, maxEntries: maxEntries, logger: logger}
}

// Fetch downloads and parses feedURL. Items without a link are dropped, the
// rest are mapped in document order up to the configured cap.
func (p *Parser) Fetch(ctx context.Context, feedURL string) ([]pipeline.FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request for %s: %w", feedURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: unexpected status %d", feedURL, resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	entries := Entries(parsed, p.maxEntries)
	p.logger.Debug("feed parsed",
		zap.String("feed_url", feedURL),
		zap.String("feed_title", parsed.Title),
		zap.Int("items", len(parsed.Items)),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

// Entries maps parsed feed items to pipeline entries, dropping items without
// a link and stopping at max.
func Entries(f *gofeed.Feed, max int) []pipeline.FeedEntry {
	if f == nil {
		return nil
	}
	entries := make([]pipeline.FeedEntry, 0, len(f.Items))
	for _, item := range f.Items {
		if len(entries) == max {
			break
		}
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}
		entries = append(entries, entryFromItem(item))
	}
	return entries
}

func entryFromItem(item *gofeed.Item) pipeline.FeedEntry {
	return pipeline.FeedEntry{
		URL:               strings.TrimSpace(item.Link),
		Title:             strings.TrimSpace(item.Title),
		Summary:           item.Description,
		Content:           item.Content,
		PublishedAt:       itemPublishedAt(item),
		Categories:        item.Categories,
		EnclosureImageURL: itemImageURL(item),
		GUID:              item.GUID,
	}
}

// itemPublishedAt prefers the timestamps gofeed already parsed and falls back
// to parsing the raw strings against the common date formats. Absent or
// unparsable dates stay nil.
func itemPublishedAt(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		utc := item.PublishedParsed.UTC()
		return &utc
	}
	if item.UpdatedParsed != nil {
		utc := item.UpdatedParsed.UTC()
		return &utc
	}
	for _, raw := range []string{item.Published, item.Updated} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// itemImageURL picks the item's image. Priority: Item.Image, media:thumbnail,
// media:content with medium=image, then the first image enclosure. Only
// http(s) URLs are accepted.
func itemImageURL(item *gofeed.Item) string {
	if item.Image != nil && isHTTPURL(item.Image.URL) {
		return item.Image.URL
	}
	if mediaExt, ok := item.Extensions["media"]; ok {
		for _, thumb := range mediaExt["thumbnail"] {
			if u := thumb.Attrs["url"]; isHTTPURL(u) {
				return u
			}
		}
		for _, content := range mediaExt["content"] {
			if content.Attrs["medium"] != "image" && !strings.HasPrefix(content.Attrs["type"], "image/") {
				continue
			}
			if u := content.Attrs["url"]; isHTTPURL(u) {
				return u
			}
		}
	}
	for _, enc := range item.Enclosures {
		if enc == nil || !strings.HasPrefix(enc.Type, "image/") {
			continue
		}
		if isHTTPURL(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

func isHTTPURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
