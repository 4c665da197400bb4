package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// docTitle resolves a title from the document alone. Ladder: <title>,
// og:title, first <h1>.
func docTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if og = strings.TrimSpace(og); og != "" {
			return og
		}
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// leadImageSkipWords mark img sources that are chrome, not content.
var leadImageSkipWords = []string{"icon", "logo", "avatar", "emoji"}

// docLeadImage resolves the article's lead image from document metadata.
// Ladder: og:image, twitter:image, first in-article <img> that is not an
// icon/logo/avatar, then the site icons as a last resort.
func docLeadImage(doc *goquery.Document, base *url.URL) string {
	if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		if img := absoluteURL(og, base); img != "" {
			return img
		}
	}
	for _, sel := range []string{`meta[name="twitter:image"]`, `meta[property="twitter:image"]`} {
		if tw, ok := doc.Find(sel).First().Attr("content"); ok {
			if img := absoluteURL(tw, base); img != "" {
				return img
			}
		}
	}
	if img := firstContentImage(doc, base); img != "" {
		return img
	}
	return docSiteIcon(doc, base)
}

func firstContentImage(doc *goquery.Document, base *url.URL) string {
	var found string
	doc.Find("article img, main img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return true
		}
		lower := strings.ToLower(src)
		for _, word := range leadImageSkipWords {
			if strings.Contains(lower, word) {
				return true
			}
		}
		found = absoluteURL(src, base)
		return found == ""
	})
	return found
}

// docSiteIcon picks the best available site icon: apple-touch-icon beats the
// plain favicon link.
func docSiteIcon(doc *goquery.Document, base *url.URL) string {
	for _, sel := range []string{
		`link[rel="apple-touch-icon"]`,
		`link[rel="apple-touch-icon-precomposed"]`,
		`link[rel="icon"]`,
		`link[rel="shortcut icon"]`,
	} {
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			if icon := absoluteURL(href, base); icon != "" {
				return icon
			}
		}
	}
	return ""
}

// absoluteURL resolves ref against base and keeps only http(s) results.
func absoluteURL(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}

const (
	maxTagsPerArticle = 10
	maxTagAnchors     = 10
	maxTagAnchorText  = 30
)

// collectTags gathers tag candidates in source order: feed categories first,
// then meta keywords, article:tag entries, and finally the visible
// tag/category links. Feed categories are trusted as-is; scraped candidates
// go through CleanTag to drop keyword-soup junk. The union is deduplicated
// case-insensitively, keeping the first casing seen.
func collectTags(doc *goquery.Document, categories []string) []string {
	candidates := make([]string, 0, len(categories)+maxTagsPerArticle)
	candidates = append(candidates, FeedCategories(categories)...)

	if doc != nil {
		if keywords, ok := doc.Find(`meta[name="keywords"]`).First().Attr("content"); ok {
			for _, keyword := range strings.Split(keywords, ",") {
				candidates = append(candidates, CleanTag(keyword))
			}
		}
		doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
			if content, ok := s.Attr("content"); ok {
				candidates = append(candidates, CleanTag(content))
			}
		})
		anchors := 0
		doc.Find("a[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			class, _ := s.Attr("class")
			if !isTagClass(class) {
				return true
			}
			text := strings.TrimSpace(s.Text())
			if text == "" || len(text) >= maxTagAnchorText {
				return true
			}
			candidates = append(candidates, CleanTag(text))
			anchors++
			return anchors < maxTagAnchors
		})
	}

	return DedupeTags(candidates)
}

// FeedCategories normalizes feed-provided categories. Unlike scraped
// candidates they skip the length gate: the feed's taxonomy is structured
// data, and two-letter categories like "AI" are legitimate there.
func FeedCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, NormalizeWhitespace(c))
	}
	return out
}

var tagClassWords = []string{"tag", "category", "label", "topic"}

func isTagClass(class string) bool {
	class = strings.ToLower(class)
	for _, word := range tagClassWords {
		if strings.Contains(class, word) {
			return true
		}
	}
	return false
}

// DedupeTags walks already-normalized candidates in order, drops empties and
// case-insensitive duplicates while keeping the first casing seen, and caps
// the result at ten tags.
func DedupeTags(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	tags := make([]string, 0, maxTagsPerArticle)
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		key := strings.ToLower(candidate)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, candidate)
		if len(tags) == maxTagsPerArticle {
			break
		}
	}
	return tags
}
