// Package browser implements the direct fetch strategy using colly. It
// presents itself as a desktop browser so ordinary bot filters serve it the
// real page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	defaultTimeout  = 30 * time.Second
	defaultMinBytes = 200
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MinBytes is the smallest payload accepted as a real page.
	MinBytes int
}

// Fetcher implements pipeline.Strategy with a cloned colly collector per
// fetch.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = defaultMinBytes
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Name reports the strategy identifier.
func (f *Fetcher) Name() string { return pipeline.StrategyBrowser }

// RendersJS reports false: this strategy sees only server-sent markup.
func (f *Fetcher) RendersJS() bool { return false }

// Fetch executes a single HTTP GET for target.
func (f *Fetcher) Fetch(ctx context.Context, target string) (pipeline.RawDocument, error) {
	var (
		doc      pipeline.RawDocument
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(start, &doc, &fetchErr)

	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return pipeline.RawDocument{}, err
	}
	if doc.StatusCode == 0 {
		return pipeline.RawDocument{}, &pipeline.FetchFailure{
			Strategy: f.Name(),
			Kind:     pipeline.FailParse,
			Err:      errors.New("no response received"),
		}
	}
	if IsChallenge(doc.Body) {
		return pipeline.RawDocument{}, &pipeline.FetchFailure{
			Strategy:  f.Name(),
			Kind:      pipeline.FailBlocked,
			Status:    doc.StatusCode,
			Retryable: true,
			Err:       errors.New("challenge page detected"),
		}
	}
	if len(doc.Body) < f.cfg.MinBytes {
		return pipeline.RawDocument{}, &pipeline.FetchFailure{
			Strategy: f.Name(),
			Kind:     pipeline.FailParse,
			Err:      fmt.Errorf("short payload: %d bytes", len(doc.Body)),
		}
	}
	return doc, nil
}

func (f *Fetcher) buildCollector(start time.Time, doc *pipeline.RawDocument, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, start, doc, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	doc *pipeline.RawDocument,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, value := range impersonationHeaders() {
			r.Headers.Set(key, value)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*doc = pipeline.RawDocument{
			SourceURL:  r.Request.URL.String(),
			Strategy:   f.Name(),
			MIMEHint:   r.Headers.Get("Content-Type"),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			FetchedAt:  time.Now().UTC(),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = pipeline.FailureForStatus(f.Name(), r.StatusCode)
			return
		}
		*fetchErr = f.wrapTransportError(err)
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("browser fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return f.wrapTransportError(err)
		}
		return nil
	}
}

func (f *Fetcher) wrapTransportError(err error) *pipeline.FetchFailure {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &pipeline.FetchFailure{
			Strategy:  f.Name(),
			Kind:      pipeline.FailTimeout,
			Retryable: true,
			Err:       err,
		}
	}
	return &pipeline.FetchFailure{
		Strategy:  f.Name(),
		Kind:      pipeline.FailHTTP,
		Retryable: true,
		Err:       err,
	}
}

// impersonationHeaders returns the header set a desktop Chrome sends on a
// top-level navigation. Accept-Encoding stays unset so the transport handles
// compression transparently.
func impersonationHeaders() map[string]string {
	return map[string]string{
		"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9," +
			"image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Cache-Control":             "max-age=0",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
