// Package extract turns fetched documents and feed items into canonical
// articles: title, body, lead image, tags, and publish date.
package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// controlChars matches NULL bytes and the C0/DEL control characters that slip
// into scraped payloads and break downstream JSON and SQL encoders. Tab,
// newline, and carriage return survive.
var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

var stripPolicy = bluemonday.StrictPolicy()

// CleanHTML removes control characters and trims the payload. It never
// touches markup structure.
func CleanHTML(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// StripTags reduces an HTML fragment to normalized plain text.
func StripTags(raw string) string {
	return NormalizeWhitespace(html.UnescapeString(stripPolicy.Sanitize(raw)))
}

// NormalizeWhitespace collapses all runs of whitespace into single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var tagCleanPattern = regexp.MustCompile(`[^\p{L}\p{N}\s\-]`)

const (
	minTagLength = 3
	maxTagLength = 50
)

// CleanTag normalizes a single tag candidate: punctuation is dropped,
// whitespace collapsed, and anything shorter than 3 or longer than 50
// characters is rejected outright.
func CleanTag(s string) string {
	cleaned := NormalizeWhitespace(tagCleanPattern.ReplaceAllString(s, ""))
	if n := len([]rune(cleaned)); n < minTagLength || n > maxTagLength {
		return ""
	}
	return cleaned
}
