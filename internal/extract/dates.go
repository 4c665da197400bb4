package extract

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/PuerkitoBio/goquery"
)

// ParseWhen parses a timestamp string in any of the common feed and meta-tag
// formats. It returns nil rather than guessing when the input is empty or
// unparsable.
func ParseWhen(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// docPublishedAt pulls an article publish date out of the document metadata.
// Checked in order: article:published_time, og:published_time, the first
// <time datetime> attribute.
func docPublishedAt(doc *goquery.Document) *time.Time {
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[property="og:published_time"]`,
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if t := ParseWhen(content); t != nil {
				return t
			}
		}
	}
	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		return ParseWhen(datetime)
	}
	return nil
}
