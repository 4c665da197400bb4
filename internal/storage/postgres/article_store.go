// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// pgPool is the subset of pgxpool.Pool the stores use; pgxmock implements it.
type pgPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ArticleStoreConfig controls the Postgres connection pool used for articles.
type ArticleStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// ArticleStore writes extracted articles into Postgres. The article ID is the
// hash of the link, so the upsert keeps one row per story across batches.
type ArticleStore struct {
	pool  pgPool
	table string
}

// NewArticleStore creates a Postgres-backed ArticleStore using the provided config.
func NewArticleStore(ctx context.Context, cfg ArticleStoreConfig) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ArticleStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(pool pgPool, table string) (*ArticleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArticleStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveArticle upserts the article row keyed by ID.
func (s *ArticleStore) SaveArticle(ctx context.Context, article pipeline.Article) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("article store is not configured")
	}
	if article.ID == "" {
		return fmt.Errorf("article id is required")
	}
	tagsJSON, err := json.Marshal(normalizeTags(article.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	batch_id,
	title,
	link,
	body,
	body_text,
	published_at,
	lead_image,
	tags,
	strategy,
	fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (id) DO UPDATE SET
	batch_id = EXCLUDED.batch_id,
	title = EXCLUDED.title,
	link = EXCLUDED.link,
	body = EXCLUDED.body,
	body_text = EXCLUDED.body_text,
	published_at = EXCLUDED.published_at,
	lead_image = EXCLUDED.lead_image,
	tags = EXCLUDED.tags,
	strategy = EXCLUDED.strategy,
	fetched_at = EXCLUDED.fetched_at`, s.table)

	args := []any{
		article.ID,
		article.BatchID,
		article.Title,
		article.Link,
		article.Body,
		article.BodyText,
		article.PublishedAt,
		article.LeadImage,
		tagsJSON,
		article.Strategy,
		article.FetchedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

// ListArticles returns the articles currently attributed to the batch.
func (s *ArticleStore) ListArticles(ctx context.Context, batchID string) ([]pipeline.Article, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("article store is not configured")
	}
	query := fmt.Sprintf(`
SELECT id, batch_id, title, link, body, body_text, published_at, lead_image, tags, strategy, fetched_at
FROM %s
WHERE batch_id = $1
ORDER BY fetched_at, id`, s.table)

	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []pipeline.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

func scanArticle(row pgx.Row) (pipeline.Article, error) {
	var (
		article  pipeline.Article
		tagsJSON []byte
	)
	err := row.Scan(
		&article.ID,
		&article.BatchID,
		&article.Title,
		&article.Link,
		&article.Body,
		&article.BodyText,
		&article.PublishedAt,
		&article.LeadImage,
		&tagsJSON,
		&article.Strategy,
		&article.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.Article{}, err
		}
		return pipeline.Article{}, fmt.Errorf("scan article row: %w", err)
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &article.Tags); err != nil {
			return pipeline.Article{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return article, nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	return append([]string(nil), tags...)
}
