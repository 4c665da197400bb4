// Package reader implements the proxy-reader fetch strategy. It asks a
// remote rendering service for the fully rendered HTML of a page, which
// clears most client-side rendering and bot walls without running a browser
// locally.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

const (
	defaultBaseURL  = "https://r.jina.ai"
	defaultTimeout  = 60 * time.Second
	defaultMinBytes = 100
	maxBodyBytes    = 8 << 20
)

// Config controls the reader strategy.
type Config struct {
	// BaseURL is the rendering service endpoint. The target URL is appended
	// as the request path.
	BaseURL string
	// APIKey, when set, is sent as a bearer token.
	APIKey    string
	UserAgent string
	Timeout   time.Duration
	// MinBytes is the smallest payload accepted as a real page. The service
	// answers errors with 200s and a short notice body, so length is the
	// only tell.
	MinBytes int
}

// Fetcher implements pipeline.Strategy via the rendering proxy.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = defaultMinBytes
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: newHTTPTransport(),
			Timeout:   cfg.Timeout,
		},
	}
}

// Name reports the strategy identifier.
func (f *Fetcher) Name() string { return pipeline.StrategyReader }

// RendersJS reports true: the proxy executes page scripts remotely.
func (f *Fetcher) RendersJS() bool { return true }

// Fetch retrieves the rendered HTML for target.
func (f *Fetcher) Fetch(ctx context.Context, target string) (pipeline.RawDocument, error) {
	endpoint := strings.TrimRight(f.cfg.BaseURL, "/") + "/" + target
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pipeline.RawDocument{}, &pipeline.FetchFailure{
			Strategy: f.Name(),
			Kind:     pipeline.FailUnsupported,
			Err:      fmt.Errorf("build reader request: %w", err),
		}
	}
	req.Header.Set("X-Return-Format", "html")
	req.Header.Set("Accept", "text/html")
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return pipeline.RawDocument{}, f.wrapTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return pipeline.RawDocument{}, pipeline.FailureForStatus(f.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return pipeline.RawDocument{}, f.wrapTransportError(err)
	}
	if len(body) < f.cfg.MinBytes {
		return pipeline.RawDocument{}, &pipeline.FetchFailure{
			Strategy: f.Name(),
			Kind:     pipeline.FailParse,
			Err:      fmt.Errorf("short payload: %d bytes", len(body)),
		}
	}

	return pipeline.RawDocument{
		SourceURL:  target,
		Strategy:   f.Name(),
		MIMEHint:   resp.Header.Get("Content-Type"),
		StatusCode: resp.StatusCode,
		Body:       body,
		FetchedAt:  time.Now().UTC(),
		Duration:   time.Since(start),
	}, nil
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
