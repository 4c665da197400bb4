package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

func TestSaveArticleUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "articles")
	require.NoError(t, err)

	published := time.Unix(1700000000, 0).UTC()
	fetched := published.Add(2 * time.Hour)
	article := pipeline.Article{
		ID:          "abc123",
		BatchID:     "batch-1",
		Title:       "Rates Hold Steady",
		Link:        "https://news.example.com/story",
		Body:        "<p>body</p>",
		BodyText:    "body",
		PublishedAt: &published,
		LeadImage:   "https://news.example.com/lead.jpg",
		Tags:        []string{"fed", "rates"},
		Strategy:    pipeline.StrategyReader,
		FetchedAt:   fetched,
	}

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(
			article.ID,
			article.BatchID,
			article.Title,
			article.Link,
			article.Body,
			article.BodyText,
			article.PublishedAt,
			article.LeadImage,
			[]byte(`["fed","rates"]`),
			article.Strategy,
			article.FetchedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveArticle(context.Background(), article))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveArticleRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "articles")
	require.NoError(t, err)

	err = store.SaveArticle(context.Background(), pipeline.Article{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListArticlesScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "articles")
	require.NoError(t, err)

	fetched := time.Unix(1700000000, 0).UTC()
	columns := []string{
		"id", "batch_id", "title", "link", "body", "body_text",
		"published_at", "lead_image", "tags", "strategy", "fetched_at",
	}
	rows := pgxmock.NewRows(columns).
		AddRow(
			"a1", "batch-1", "First", "https://example.com/a", "<p>a</p>", "a",
			(*time.Time)(nil), "", []byte(`["econ"]`), "reader", fetched,
		).
		AddRow(
			"a2", "batch-1", "Second", "https://example.com/b", "<p>b</p>", "b",
			&fetched, "https://example.com/b.jpg", []byte(`[]`), "rss_summary", fetched,
		)

	mock.ExpectQuery("SELECT id, batch_id, title").
		WithArgs("batch-1").
		WillReturnRows(rows)

	got, err := store.ListArticles(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a1", got[0].ID)
	require.Nil(t, got[0].PublishedAt)
	require.Equal(t, []string{"econ"}, got[0].Tags)
	require.Equal(t, "a2", got[1].ID)
	require.NotNil(t, got[1].PublishedAt)
	require.Empty(t, got[1].Tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewArticleStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewArticleStoreWithPool(mock, "articles; DROP TABLE articles")
	require.Error(t, err)
}
