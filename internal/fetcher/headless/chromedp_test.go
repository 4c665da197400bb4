package headless

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()

	if cap(fetcher.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(fetcher.limiter))
	}
}

func TestFetcherDefaults(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()

	if fetcher.navTimeout() != defaultNavigationTimeout {
		t.Fatalf("expected nav timeout %v, got %v", defaultNavigationTimeout, fetcher.navTimeout())
	}
	if fetcher.cfg.ContentSelector != defaultContentSelector {
		t.Fatalf("expected default content selector, got %q", fetcher.cfg.ContentSelector)
	}
	if fetcher.cfg.MinBytes != defaultMinBytes {
		t.Fatalf("expected min bytes %d, got %d", defaultMinBytes, fetcher.cfg.MinBytes)
	}
	if fetcher.Name() != pipeline.StrategyHeadless {
		t.Fatalf("expected strategy %q, got %q", pipeline.StrategyHeadless, fetcher.Name())
	}
	if !fetcher.RendersJS() {
		t.Fatal("expected RendersJS to be true")
	}
}

func TestCloneHeader(t *testing.T) {
	t.Parallel()

	src := http.Header{}
	src.Add("Content-Type", "text/html")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")

	dst := cloneHeader(src)
	dst.Set("Content-Type", "application/json")

	if got := src.Get("Content-Type"); got != "text/html" {
		t.Fatalf("source header mutated: %q", got)
	}
	if got := len(dst["Set-Cookie"]); got != 2 {
		t.Fatalf("expected 2 cookie values, got %d", got)
	}
	if cloneHeader(nil) != nil {
		t.Fatal("expected nil clone for nil header")
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 204,
			URL:    "https://example.com/final",
			Headers: network.Headers{
				"Content-Type": "text/html; charset=utf-8",
				"Set-Cookie":   []interface{}{"a=1", "b=2"},
			},
		},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://example.com/requested", "")
	if status != 204 {
		t.Fatalf("expected status 204, got %d", status)
	}
	if url != "https://example.com/final" {
		t.Fatalf("expected captured url, got %q", url)
	}
	if got := headers.Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := len(headers["Set-Cookie"]); got != 2 {
		t.Fatalf("expected 2 cookie values, got %d", got)
	}

	empty := newResponseMeta()
	status, _, url = empty.snapshotWithFallbacks("https://example.com/requested", "https://example.com/located")
	if status != http.StatusOK {
		t.Fatalf("expected fallback status 200, got %d", status)
	}
	if url != "https://example.com/located" {
		t.Fatalf("expected located url, got %q", url)
	}
}

func TestResponseMetaIgnoresSubresources(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/missing.png"},
	})

	status, _, url := meta.snapshot()
	if status != 0 || url != "" {
		t.Fatalf("subresource recorded: status=%d url=%q", status, url)
	}
}

func TestAssembleClassifiesStatus(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403, URL: "https://example.com/a"},
	})

	_, err = fetcher.assemble("https://example.com/a", "", strings.Repeat("x", 1024), meta, time.Now())
	failure, ok := pipeline.AsFetchFailure(err)
	if !ok {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
	if failure.Kind != pipeline.FailBlocked {
		t.Fatalf("expected kind %q, got %q", pipeline.FailBlocked, failure.Kind)
	}
	if !failure.Retryable {
		t.Fatal("expected 403 to be retryable")
	}
}

func TestAssembleRejectsShortPayload(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MinBytes: 200})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()

	_, err = fetcher.assemble("https://example.com/a", "", "<html></html>", newResponseMeta(), time.Now())
	failure, ok := pipeline.AsFetchFailure(err)
	if !ok {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
	if failure.Kind != pipeline.FailParse {
		t.Fatalf("expected kind %q, got %q", pipeline.FailParse, failure.Kind)
	}
}

func TestAssembleBuildsDocument(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MinBytes: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://example.com/final",
			Headers: network.Headers{"Content-Type": "text/html"},
		},
	})

	doc, err := fetcher.assemble("https://example.com/start", "", "<html><body>rendered article body</body></html>", meta, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.SourceURL != "https://example.com/final" {
		t.Fatalf("unexpected source url %q", doc.SourceURL)
	}
	if doc.Strategy != pipeline.StrategyHeadless {
		t.Fatalf("unexpected strategy %q", doc.Strategy)
	}
	if doc.StatusCode != 200 {
		t.Fatalf("unexpected status %d", doc.StatusCode)
	}
	if doc.MIMEHint != "text/html" {
		t.Fatalf("unexpected mime hint %q", doc.MIMEHint)
	}
	if doc.FetchedAt.IsZero() {
		t.Fatal("expected FetchedAt to be set")
	}
}

func TestWaitContentActionNonFatal(t *testing.T) {
	t.Parallel()

	action := waitContentAction("", time.Second)
	if err := action.Do(context.Background()); err != nil {
		t.Fatalf("empty selector should be a no-op, got %v", err)
	}

	action = waitContentAction("article", 10*time.Millisecond)
	if err := action.Do(context.Background()); err != nil {
		t.Fatalf("selector wait failure should be swallowed, got %v", err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := action.Do(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBlockPatterns(t *testing.T) {
	t.Parallel()

	patterns := blockPatterns([]string{"doubleclick.net", "*.hotjar.com", ".hotjar.com", " ", ""})
	want := []string{"*doubleclick.net*", "*hotjar.com*"}
	if len(patterns) != len(want) {
		t.Fatalf("expected %v, got %v", want, patterns)
	}
	for i := range want {
		if patterns[i] != want[i] {
			t.Fatalf("expected pattern %q at %d, got %q", want[i], i, patterns[i])
		}
	}
}

func TestNoopFetcherError(t *testing.T) {
	t.Parallel()

	noop := NewNoop()
	if noop.Name() != pipeline.StrategyHeadless {
		t.Fatalf("unexpected strategy %q", noop.Name())
	}
	_, err := noop.Fetch(context.Background(), "https://example.com")
	failure, ok := pipeline.AsFetchFailure(err)
	if !ok {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
	if failure.Kind != pipeline.FailUnsupported {
		t.Fatalf("expected kind %q, got %q", pipeline.FailUnsupported, failure.Kind)
	}
	if !strings.Contains(err.Error(), "headless fetcher not configured") {
		t.Fatalf("unexpected error %q", err)
	}
}
