package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

func TestFetcherReturnsRenderedHTML(t *testing.T) {
	t.Parallel()

	page := "<html><body>" + strings.Repeat("content ", 40) + "</body></html>"
	var gotURL, gotFormat, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotFormat = r.Header.Get("X-Return-Format")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer ts.Close()

	f := New(Config{BaseURL: ts.URL, APIKey: "sekrit", MinBytes: 100})
	doc, err := f.Fetch(context.Background(), "https://example.com/story")
	require.NoError(t, err)
	require.Contains(t, gotURL, "https://example.com/story")
	require.Equal(t, "html", gotFormat)
	require.Equal(t, "Bearer sekrit", gotAuth)
	require.Equal(t, pipeline.StrategyReader, doc.Strategy)
	require.Equal(t, "https://example.com/story", doc.SourceURL)
	require.Equal(t, http.StatusOK, doc.StatusCode)
	require.Equal(t, page, string(doc.Body))
	require.Contains(t, doc.MIMEHint, "text/html")
}

func TestFetcherClassifiesStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status    int
		kind      pipeline.FailureKind
		retryable bool
	}{
		{status: http.StatusForbidden, kind: pipeline.FailBlocked, retryable: true},
		{status: http.StatusTooManyRequests, kind: pipeline.FailBlocked, retryable: true},
		{status: http.StatusNotFound, kind: pipeline.FailHTTP, retryable: false},
		{status: http.StatusBadGateway, kind: pipeline.FailHTTP, retryable: true},
	}
	for _, tc := range cases {
		status := tc.status
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		f := New(Config{BaseURL: ts.URL})
		_, err := f.Fetch(context.Background(), "https://example.com/story")
		require.Error(t, err, "status %d", status)
		failure, ok := pipeline.AsFetchFailure(err)
		require.True(t, ok)
		require.Equal(t, tc.kind, failure.Kind, "status %d", status)
		require.Equal(t, tc.retryable, failure.Retryable, "status %d", status)
		ts.Close()
	}
}

func TestFetcherRejectsShortPayload(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Too Many Requests"))
	}))
	defer ts.Close()

	f := New(Config{BaseURL: ts.URL, MinBytes: 100})
	_, err := f.Fetch(context.Background(), "https://example.com/story")
	require.Error(t, err)
	failure, ok := pipeline.AsFetchFailure(err)
	require.True(t, ok)
	require.Equal(t, pipeline.FailParse, failure.Kind)
	require.False(t, failure.Retryable)
}

func TestFetcherTimesOut(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer func() {
		close(release)
		ts.Close()
	}()

	f := New(Config{BaseURL: ts.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "https://example.com/story")
	require.Error(t, err)
	failure, ok := pipeline.AsFetchFailure(err)
	require.True(t, ok)
	require.Equal(t, pipeline.FailTimeout, failure.Kind)
	require.True(t, failure.Retryable)
}

func TestFetcherDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	require.Equal(t, defaultBaseURL, f.cfg.BaseURL)
	require.Equal(t, defaultTimeout, f.cfg.Timeout)
	require.Equal(t, defaultMinBytes, f.cfg.MinBytes)
	require.True(t, f.RendersJS())
}
