// Package pipeline contains the core domain types shared by the feed
// acquisition subsystems: feed entries, fetched documents, extracted
// articles, and batch bookkeeping.
package pipeline

import "time"

// Strategy names recognized by the fetch cascade. Configuration refers to
// strategies by these identifiers.
const (
	StrategyReader   = "reader"
	StrategyBrowser  = "browser"
	StrategyHeadless = "headless"

	// StrategyFeedFallback marks articles assembled from the feed item
	// alone after every network strategy failed.
	StrategyFeedFallback = "rss_summary"
)

// BatchStatus is the lifecycle state of an ingest batch.
type BatchStatus string

const (
	BatchStatusQueued    BatchStatus = "queued"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusSucceeded BatchStatus = "succeeded"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCanceled  BatchStatus = "canceled"
)

// FeedEntry is a single syndication item handed to the pipeline. It carries
// everything the feed itself knows about the story so later stages can fall
// back on it when the live page is unreachable.
type FeedEntry struct {
	URL               string     `json:"url"`
	Title             string     `json:"title"`
	Summary           string     `json:"summary,omitempty"`
	Content           string     `json:"content,omitempty"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	Categories        []string   `json:"categories,omitempty"`
	EnclosureImageURL string     `json:"enclosure_image_url,omitempty"`
	GUID              string     `json:"guid,omitempty"`
}

// RawDocument is the payload produced by a fetch strategy before extraction.
type RawDocument struct {
	SourceURL  string
	Strategy   string
	MIMEHint   string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
	Duration   time.Duration
}

// Article is the canonical extraction output. ID is the hex SHA-256 of the
// article link, so re-ingesting the same URL overwrites rather than
// duplicates.
type Article struct {
	ID          string     `json:"id"`
	BatchID     string     `json:"batch_id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Body        string     `json:"body"`
	BodyText    string     `json:"body_text"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	LeadImage   string     `json:"lead_image,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Strategy    string     `json:"strategy"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// EntryFailure records the terminal failure of one entry in a batch.
type EntryFailure struct {
	URL  string      `json:"url"`
	Kind FailureKind `json:"kind"`
}

// BatchResult summarizes a processed batch. Requested always equals
// Succeeded plus the number of Failures.
type BatchResult struct {
	Requested  int            `json:"requested"`
	Succeeded  int            `json:"succeeded"`
	WithImages int            `json:"with_images"`
	TotalTags  int            `json:"total_tags"`
	ElapsedMs  int64          `json:"elapsed_ms"`
	Failures   []EntryFailure `json:"failures"`
}

// Batch is the service-level record for one ingest request.
type Batch struct {
	ID        string       `json:"id"`
	Status    BatchStatus  `json:"status"`
	FeedURL   string       `json:"feed_url,omitempty"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Result    *BatchResult `json:"result,omitempty"`
}

// EntryTask is one feed entry queued for a worker. Index is the entry's
// position in the submitted batch and identifies it in the collector.
type EntryTask struct {
	BatchID string
	Index   int
	Entry   FeedEntry
}

// SummaryRequest is the handoff payload published for articles whose body is
// long enough to summarize downstream.
type SummaryRequest struct {
	ArticleID string `json:"article_id"`
	BatchID   string `json:"batch_id"`
	Link      string `json:"link"`
	BodyText  string `json:"body_text"`
}
