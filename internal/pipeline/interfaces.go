package pipeline

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the raw document for a URL. The cascade orchestrator is
// the production implementation; workers depend only on this interface.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (RawDocument, error)
}

// Strategy is a single fetch mechanism inside the cascade. Name reports the
// configured identifier, RendersJS whether the strategy executes page
// scripts before returning the document.
type Strategy interface {
	Name() string
	RendersJS() bool
	Fetch(ctx context.Context, url string) (RawDocument, error)
}

// Limiter gates strategy attempts on request rate and concurrent-slot
// ceilings. Acquire blocks until both admit the caller or ctx is done. The
// returned release must be called exactly once; it is safe to call after the
// fetch finished or failed.
type Limiter interface {
	Acquire(ctx context.Context, strategy string) (release func(), err error)
}

// Extractor turns a raw document plus its originating feed entry into an
// Article. Implementations must tolerate malformed markup and only fail when
// neither a title nor a body can be produced. FromFeedOnly builds an article
// from the feed item alone when every fetch strategy failed; it fails when
// the feed summary is too short to stand in for the body.
type Extractor interface {
	Extract(entry FeedEntry, doc RawDocument) (Article, error)
	FromFeedOnly(entry FeedEntry) (Article, error)
}

// ResultSink receives the terminal outcome of each entry. The batch
// coordinator implements it to route outcomes to the owning batch.
type ResultSink interface {
	EntrySucceeded(batchID string, index int, article Article)
	EntryFailed(batchID string, index int, url string, kind FailureKind)
}

// Queue provides enqueue/dequeue semantics for entry tasks.
type Queue interface {
	Enqueue(ctx context.Context, task EntryTask) error
	Dequeue(ctx context.Context) (EntryTask, error)
}

// ArticleStore persists extracted articles.
type ArticleStore interface {
	SaveArticle(ctx context.Context, article Article) error
	ListArticles(ctx context.Context, batchID string) ([]Article, error)
}

// BatchStore persists batch lifecycle records.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch Batch) error
	UpdateBatchStatus(ctx context.Context, batchID string, status BatchStatus, errText string, result *BatchResult) error
	GetBatch(ctx context.Context, batchID string) (Batch, error)
}

// BlobStore archives raw fetched documents.
type BlobStore interface {
	// PutObject stores data under path and returns a storage URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher sends a payload to a named topic and returns the broker's
// message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher produces article identifiers from link bytes.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
