// Package worker implements the entry-processing loop that turns queued feed
// entries into stored articles.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/metrics"
	"github.com/JakeFAU/feedharvest/internal/pipeline"
	"github.com/JakeFAU/feedharvest/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// ContentType is the MIME type used when archiving raw documents.
	ContentType string
	// BlobPrefix is prepended to archive object paths.
	BlobPrefix string
	// SummaryTopic receives summary requests; empty disables publishing.
	SummaryTopic string
	// MinSummaryBodyLength is the shortest body text worth summarizing.
	MinSummaryBodyLength int
}

// Emitter receives progress milestones from workers. *progress.Hub satisfies
// it; a nil Emitter disables reporting.
type Emitter interface {
	Emit(evt progress.Event)
}

// Worker consumes entry tasks and drives each to a terminal outcome: a stored
// article routed to the result sink, or a classified failure.
type Worker struct {
	queue     pipeline.Queue
	fetcher   pipeline.Fetcher
	extractor pipeline.Extractor
	articles  pipeline.ArticleStore
	blobs     pipeline.BlobStore
	publisher pipeline.Publisher
	results   pipeline.ResultSink
	hasher    pipeline.Hasher
	clock     pipeline.Clock
	progress  Emitter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. blobs, publisher, and emitter may be nil; the
// matching steps become no-ops.
func New(
	queue pipeline.Queue,
	fetcher pipeline.Fetcher,
	extractor pipeline.Extractor,
	articles pipeline.ArticleStore,
	blobs pipeline.BlobStore,
	publisher pipeline.Publisher,
	results pipeline.ResultSink,
	hasher pipeline.Hasher,
	clock pipeline.Clock,
	emitter Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.MinSummaryBodyLength <= 0 {
		cfg.MinSummaryBodyLength = 300
	}
	return &Worker{
		queue:     queue,
		fetcher:   fetcher,
		extractor: extractor,
		articles:  articles,
		blobs:     blobs,
		publisher: publisher,
		results:   results,
		hasher:    hasher,
		clock:     clock,
		progress:  emitter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming tasks until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, pipeline.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task pipeline.EntryTask) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	started := w.clock.Now()

	article, doc, err := w.buildArticle(ctx, task)
	if err != nil {
		kind := pipeline.KindOf(err)
		metrics.ObserveEntry(string(kind))
		w.logger.Warn("entry failed",
			zap.String("batch_id", task.BatchID),
			zap.String("url", task.Entry.URL),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		w.results.EntryFailed(task.BatchID, task.Index, task.Entry.URL, kind)
		return
	}

	if err := w.finalizeArticle(ctx, task, &article, doc); err != nil {
		metrics.ObserveEntry(string(pipeline.FailInternal))
		w.logger.Error("entry persistence failed",
			zap.String("batch_id", task.BatchID),
			zap.String("url", task.Entry.URL),
			zap.Error(err),
		)
		w.results.EntryFailed(task.BatchID, task.Index, task.Entry.URL, pipeline.FailInternal)
		return
	}

	w.publishSummary(ctx, article)
	w.emitExtractDone(task, article)

	outcome := "success"
	if article.Strategy == pipeline.StrategyFeedFallback {
		outcome = "fallback"
	}
	metrics.ObserveEntry(outcome)
	w.results.EntrySucceeded(task.BatchID, task.Index, article)
	w.logger.Debug("entry processed",
		zap.String("batch_id", task.BatchID),
		zap.String("article_id", article.ID),
		zap.String("strategy", article.Strategy),
		zap.Duration("dur", w.clock.Now().Sub(started)),
	)
}

// buildArticle produces the article content for one entry. The returned
// document is nil when the article came from the feed-only fallback.
func (w *Worker) buildArticle(
	ctx context.Context,
	task pipeline.EntryTask,
) (pipeline.Article, *pipeline.RawDocument, error) {
	doc, fetchErr := w.fetcher.Fetch(ctx, task.Entry.URL)
	if fetchErr != nil {
		if ctx.Err() != nil {
			return pipeline.Article{}, nil, fetchErr
		}
		w.emitFetchFailed(task, fetchErr)
		article, err := w.feedFallback(task, fetchErr)
		return article, nil, err
	}
	w.emitFetchDone(task, doc)

	article, err := w.extractor.Extract(task.Entry, doc)
	if err != nil {
		return pipeline.Article{}, nil, err
	}
	return article, &doc, nil
}

// feedFallback assembles an article from the feed item alone. When the feed
// cannot stand in either, the original fetch error names the failure.
func (w *Worker) feedFallback(task pipeline.EntryTask, fetchErr error) (pipeline.Article, error) {
	article, err := w.extractor.FromFeedOnly(task.Entry)
	if err != nil {
		return pipeline.Article{}, fetchErr
	}
	w.logger.Info("falling back to feed summary",
		zap.String("batch_id", task.BatchID),
		zap.String("url", task.Entry.URL),
		zap.Error(fetchErr),
	)
	return article, nil
}

// finalizeArticle assigns identity, archives the raw document, and persists
// the article. Archive failures only log; store failures are terminal.
func (w *Worker) finalizeArticle(
	ctx context.Context,
	task pipeline.EntryTask,
	article *pipeline.Article,
	doc *pipeline.RawDocument,
) error {
	id, err := w.hasher.Hash([]byte(article.Link))
	if err != nil {
		return fmt.Errorf("hash article link: %w", err)
	}
	article.ID = id
	article.BatchID = task.BatchID
	if article.FetchedAt.IsZero() {
		article.FetchedAt = w.clock.Now()
	}

	if doc != nil {
		w.archiveRawDocument(ctx, task.BatchID, article.ID, *doc)
	}

	if err := w.articles.SaveArticle(ctx, *article); err != nil {
		return fmt.Errorf("save article %s: %w", article.ID, err)
	}
	return nil
}

func (w *Worker) buildBlobPath(batchID, articleID string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", batchID, articleID)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, batchID, articleID)
}

func (w *Worker) archiveRawDocument(ctx context.Context, batchID, articleID string, doc pipeline.RawDocument) {
	if w.blobs == nil || len(doc.Body) == 0 {
		return
	}
	path := w.buildBlobPath(batchID, articleID)
	uri, err := w.blobs.PutObject(ctx, path, w.cfg.ContentType, bytes.NewReader(doc.Body))
	if err != nil {
		w.logger.Warn("archive raw document failed",
			zap.String("url", doc.SourceURL),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("raw document archived", zap.String("uri", uri))
}

// publishSummary hands long articles to the summarizer topic. Publishing is
// best effort; a broker outage must not fail the entry.
func (w *Worker) publishSummary(ctx context.Context, article pipeline.Article) {
	if w.publisher == nil || w.cfg.SummaryTopic == "" {
		return
	}
	if len(article.BodyText) < w.cfg.MinSummaryBodyLength {
		return
	}
	payload := pipeline.SummaryRequest{
		ArticleID: article.ID,
		BatchID:   article.BatchID,
		Link:      article.Link,
		BodyText:  article.BodyText,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.SummaryTopic, payload); err != nil {
		w.logger.Warn("publish summary request failed",
			zap.String("article_id", article.ID),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("summary request published", zap.String("article_id", article.ID))
}

func (w *Worker) emitFetchDone(task pipeline.EntryTask, doc pipeline.RawDocument) {
	if w.progress == nil {
		return
	}
	id, ok := progress.ParseBatchID(task.BatchID)
	if !ok {
		return
	}
	w.progress.Emit(progress.Event{
		BatchID:     id,
		TS:          w.clock.Now(),
		Stage:       progress.StageFetchDone,
		Site:        progress.SiteOf(task.Entry.URL),
		URL:         task.Entry.URL,
		Strategy:    doc.Strategy,
		Bytes:       int64(len(doc.Body)),
		Entries:     1,
		StatusClass: progress.ClassifyStatus(doc.StatusCode),
		Dur:         doc.Duration,
	})
}

func (w *Worker) emitFetchFailed(task pipeline.EntryTask, fetchErr error) {
	if w.progress == nil {
		return
	}
	id, ok := progress.ParseBatchID(task.BatchID)
	if !ok {
		return
	}
	failure, ok := pipeline.AsFetchFailure(fetchErr)
	if !ok {
		return
	}
	w.progress.Emit(progress.Event{
		BatchID:     id,
		TS:          w.clock.Now(),
		Stage:       progress.StageFetchDone,
		Site:        progress.SiteOf(task.Entry.URL),
		URL:         task.Entry.URL,
		Strategy:    failure.Strategy,
		Entries:     1,
		StatusClass: progress.ClassifyStatus(failure.Status),
		Note:        string(failure.Kind),
	})
}

func (w *Worker) emitExtractDone(task pipeline.EntryTask, article pipeline.Article) {
	if w.progress == nil {
		return
	}
	id, ok := progress.ParseBatchID(task.BatchID)
	if !ok {
		return
	}
	w.progress.Emit(progress.Event{
		BatchID:  id,
		TS:       w.clock.Now(),
		Stage:    progress.StageExtractDone,
		Site:     progress.SiteOf(article.Link),
		URL:      article.Link,
		Strategy: article.Strategy,
	})
}
