package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

const (
	defaultMinReadableLength = 200
	defaultMinSummaryLength  = 50
)

// Config tunes the extraction heuristics.
type Config struct {
	// MinReadableLength is the plain-text length below which readability
	// output is considered boilerplate-only and the block-scan fallback
	// runs instead.
	MinReadableLength int
	// MinSummaryLength is the shortest feed summary that can back a
	// feed-only article when every fetch strategy failed.
	MinSummaryLength int
}

// Extractor implements pipeline.Extractor. It is stateless and safe for
// concurrent use.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an extractor, filling zero config fields with defaults.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.MinReadableLength <= 0 {
		cfg.MinReadableLength = defaultMinReadableLength
	}
	if cfg.MinSummaryLength <= 0 {
		cfg.MinSummaryLength = defaultMinSummaryLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract assembles an article from the feed entry and the fetched document.
// Feed-provided fields win over anything scraped out of the page; malformed
// markup degrades to partial fields. The only failure is producing neither a
// title nor a body.
func (e *Extractor) Extract(entry pipeline.FeedEntry, doc pipeline.RawDocument) (pipeline.Article, error) {
	link := entry.URL
	if link == "" {
		link = doc.SourceURL
	}
	base, err := url.Parse(link)
	if err != nil {
		base = nil
	}

	// Metadata queries and body extraction parse independently: the body
	// path strips <head> and chrome elements the metadata ladders need.
	meta, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		e.logger.Debug("document not parseable, extracting from feed fields only",
			zap.String("url", link), zap.Error(err))
		meta = nil
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" && meta != nil {
		title = docTitle(meta)
	}

	var body string
	if entry.Content != "" {
		body = CleanHTML(entry.Content)
	} else {
		body = e.readableBody(doc.Body, base)
	}
	bodyText := StripTags(body)

	if title == "" && bodyText == "" {
		return pipeline.Article{}, fmt.Errorf("extract %s: %w", link, pipeline.ErrNoContent)
	}

	published := entry.PublishedAt
	if published == nil && meta != nil {
		published = docPublishedAt(meta)
	}

	leadImage := absoluteURL(entry.EnclosureImageURL, base)
	if leadImage == "" && meta != nil {
		leadImage = docLeadImage(meta, base)
	}

	return pipeline.Article{
		Title:       title,
		Link:        link,
		Body:        body,
		BodyText:    bodyText,
		PublishedAt: published,
		LeadImage:   leadImage,
		Tags:        collectTags(meta, entry.Categories),
		Strategy:    doc.Strategy,
		FetchedAt:   doc.FetchedAt,
	}, nil
}

// FromFeedOnly assembles an article from the feed entry alone, used after
// every fetch strategy failed. It requires a summary long enough to stand in
// for the story body.
func (e *Extractor) FromFeedOnly(entry pipeline.FeedEntry) (pipeline.Article, error) {
	summary := CleanHTML(entry.Summary)
	if len(summary) <= e.cfg.MinSummaryLength {
		return pipeline.Article{}, fmt.Errorf("feed summary too short for %s: %w", entry.URL, pipeline.ErrNoContent)
	}
	body := summary
	if !strings.Contains(body, "<") {
		body = "<p>" + body + "</p>"
	}

	var base *url.URL
	if parsed, err := url.Parse(entry.URL); err == nil {
		base = parsed
	}
	return pipeline.Article{
		Title:       strings.TrimSpace(entry.Title),
		Link:        entry.URL,
		Body:        body,
		BodyText:    StripTags(summary),
		PublishedAt: entry.PublishedAt,
		LeadImage:   absoluteURL(entry.EnclosureImageURL, base),
		Tags:        DedupeTags(FeedCategories(entry.Categories)),
		Strategy:    pipeline.StrategyFeedFallback,
	}, nil
}

// chromeSelectors match elements that never carry story text.
var chromeSelectors = []string{
	"head, script, style, noscript, title, aside, nav, header, footer",
	"iframe, embed, object, video, audio, canvas",
	"[class*='social'], [class*='share'], [id*='social'], [id*='share']",
	"[class*='comment'], [id*='comment']",
}

// readableBody recovers the main story HTML from a fetched page. Reader-proxy
// payloads arrive as plain text and pass through unchanged; HTML runs through
// a chrome-stripping pass, then readability, then a block scan when
// readability finds too little text.
func (e *Extractor) readableBody(raw []byte, base *url.URL) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "<") {
		return trimmed
	}

	cleaned := trimmed
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err == nil {
		for _, sel := range chromeSelectors {
			doc.Find(sel).Remove()
		}
		if html, err := doc.Html(); err == nil && html != "" {
			cleaned = html
		}
	}

	if base != nil {
		article, err := readability.FromReader(strings.NewReader(cleaned), base)
		if err == nil {
			text := NormalizeWhitespace(article.TextContent)
			if len(text) >= e.cfg.MinReadableLength {
				return CleanHTML(article.Content)
			}
		}
	}
	return e.largestBlock(cleaned)
}

// contentClassWords mark container divs that typically hold the article.
var contentClassWords = []string{"content", "article", "post", "entry", "main-content", "article-content"}

// largestBlock falls back to structural scanning: <article>, then a
// content-classed <div>, then <main>, then <body>. The first block with
// enough stripped text wins.
func (e *Extractor) largestBlock(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return CleanHTML(html)
	}

	if block := e.completeBlock(doc.Find("article").First()); block != "" {
		return block
	}

	var fromDiv string
	doc.Find("div[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		lower := strings.ToLower(class)
		for _, word := range contentClassWords {
			if strings.Contains(lower, word) {
				fromDiv = e.completeBlock(s)
				return fromDiv == ""
			}
		}
		return true
	})
	if fromDiv != "" {
		return fromDiv
	}

	if block := e.completeBlock(doc.Find("main").First()); block != "" {
		return block
	}
	if body, err := doc.Find("body").First().Html(); err == nil && StripTags(body) != "" {
		return CleanHTML(body)
	}
	return CleanHTML(html)
}

func (e *Extractor) completeBlock(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	html, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	if len(StripTags(html)) < e.cfg.MinSummaryLength {
		return ""
	}
	return CleanHTML(html)
}
