// Package headless contains the browser-rendering fetch strategy backed by
// chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

const (
	defaultNavigationTimeout  = 45 * time.Second
	defaultContentWaitTimeout = 3 * time.Second
	defaultMinBytes           = 200

	// defaultContentSelector covers the containers most article pages
	// hydrate last.
	defaultContentSelector = `article, main, .content, .article, [role="main"]`
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ContentSelector is waited on after navigation; rendering continues
	// even if it never appears.
	ContentSelector    string
	ContentWaitTimeout time.Duration
	MinBytes           int
	// ExtraBlockedHosts adds to the built-in ad and tracker blocklist.
	ExtraBlockedHosts []string
}

// Fetcher implements pipeline.Strategy using chromedp and headless Chrome.
type Fetcher struct {
	cfg           Config
	limiter       chan struct{}
	allocator     context.Context
	allocCancel   context.CancelFunc
	blockPatterns []string
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ContentSelector == "" {
		cfg.ContentSelector = defaultContentSelector
	}
	if cfg.ContentWaitTimeout <= 0 {
		cfg.ContentWaitTimeout = defaultContentWaitTimeout
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = defaultMinBytes
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		allocator:     allocCtx,
		allocCancel:   allocCancel,
		blockPatterns: blockPatterns(append(defaultBlockedHosts(), cfg.ExtraBlockedHosts...)),
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Name reports the strategy identifier.
func (f *Fetcher) Name() string { return pipeline.StrategyHeadless }

// RendersJS reports true: the page runs in a real browser.
func (f *Fetcher) RendersJS() bool { return true }

// Fetch navigates with a headless browser and returns the fully rendered
// DOM.
func (f *Fetcher) Fetch(ctx context.Context, target string) (pipeline.RawDocument, error) {
	if err := f.acquire(ctx); err != nil {
		return pipeline.RawDocument{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, target)
	if err != nil {
		return pipeline.RawDocument{}, f.wrapRunError(ctx, err)
	}
	return f.assemble(target, finalURL, html, meta, start)
}

func (f *Fetcher) runHeadless(ctx context.Context, target string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		waitContentAction(f.cfg.ContentSelector, f.cfg.ContentWaitTimeout),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(f.blockPatterns) > 0 {
			if err := network.SetBlockedURLs(f.blockPatterns).Do(ctx); err != nil {
				return fmt.Errorf("set blocked urls: %w", err)
			}
		}
		return nil
	})
}

// waitContentAction waits for the content selector. A missing selector is
// non-fatal; only a dead parent context aborts the run.
func waitContentAction(selector string, wait time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if selector == "" || wait <= 0 {
			return nil
		}
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		if err := chromedp.WaitReady(selector, chromedp.ByQuery).Do(waitCtx); err != nil {
			return ctx.Err()
		}
		return nil
	})
}

// assemble classifies the rendered result into a document or a failure.
func (f *Fetcher) assemble(
	requestURL, finalURL, html string,
	meta *responseMeta,
	start time.Time,
) (pipeline.RawDocument, error) {
	status, headers, responseURL := meta.snapshotWithFallbacks(requestURL, finalURL)
	if status >= 400 {
		return pipeline.RawDocument{}, pipeline.FailureForStatus(f.Name(), status)
	}
	body := []byte(html)
	if len(body) < f.cfg.MinBytes {
		return pipeline.RawDocument{}, &pipeline.FetchFailure{
			Strategy: f.Name(),
			Kind:     pipeline.FailParse,
			Err:      fmt.Errorf("short rendered payload: %d bytes", len(body)),
		}
	}
	return pipeline.RawDocument{
		SourceURL:  responseURL,
		Strategy:   f.Name(),
		MIMEHint:   headers.Get("Content-Type"),
		StatusCode: status,
		Body:       body,
		FetchedAt:  time.Now().UTC(),
		Duration:   time.Since(start),
	}, nil
}

func (f *Fetcher) wrapRunError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("headless fetch canceled: %w", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &pipeline.FetchFailure{
			Strategy:  f.Name(),
			Kind:      pipeline.FailTimeout,
			Retryable: true,
			Err:       err,
		}
	}
	return &pipeline.FetchFailure{
		Strategy:  f.Name(),
		Kind:      pipeline.FailParse,
		Retryable: true,
		Err:       err,
	}
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}
