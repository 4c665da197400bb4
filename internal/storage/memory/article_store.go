package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

// ArticleStore keeps extracted articles in memory for development/testing.
// Articles are keyed by ID, so re-ingesting the same link overwrites the
// previous version.
type ArticleStore struct {
	mu       sync.RWMutex
	articles map[string]pipeline.Article
	byBatch  map[string][]string
}

// NewArticleStore constructs an ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		articles: make(map[string]pipeline.Article),
		byBatch:  make(map[string][]string),
	}
}

// SaveArticle upserts the article under its ID.
func (s *ArticleStore) SaveArticle(_ context.Context, article pipeline.Article) error {
	if article.ID == "" {
		return errors.New("article id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, exists := s.articles[article.ID]
	if !exists || prev.BatchID != article.BatchID {
		s.byBatch[article.BatchID] = append(s.byBatch[article.BatchID], article.ID)
	}
	s.articles[article.ID] = article
	return nil
}

// ListArticles returns the batch's articles in save order. An article
// re-ingested by a later batch no longer appears under the earlier one.
func (s *ArticleStore) ListArticles(_ context.Context, batchID string) ([]pipeline.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byBatch[batchID]
	out := make([]pipeline.Article, 0, len(ids))
	for _, id := range ids {
		article, ok := s.articles[id]
		if !ok || article.BatchID != batchID {
			continue
		}
		out = append(out, article)
	}
	return out, nil
}
