package api

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/config"
	"github.com/JakeFAU/feedharvest/internal/coordinator"
	"github.com/JakeFAU/feedharvest/internal/metrics"
	"github.com/JakeFAU/feedharvest/internal/pipeline"
	memorystorage "github.com/JakeFAU/feedharvest/internal/storage/memory"
)

func TestServer_SubmitBatch_Succeeds(t *testing.T) {
	t.Parallel()
	metrics.Init()

	service := &fakeBatchService{
		submitted: pipeline.Batch{ID: "batch-1", Status: pipeline.BatchStatusQueued},
	}
	server := newTestServer(t, service)

	reqBody := []byte(`{"entries":[{"url":"https://news.example.com/story","title":"Story"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "batch-1")
	require.Contains(t, rec.Body.String(), "queued")
	require.Len(t, service.requests(), 1)
	require.Equal(t, "https://news.example.com/story", service.requests()[0].Entries[0].URL)
}

func TestServer_SubmitBatch_FeedURL(t *testing.T) {
	t.Parallel()
	metrics.Init()

	service := &fakeBatchService{
		submitted: pipeline.Batch{ID: "batch-feed", Status: pipeline.BatchStatusQueued},
	}
	server := newTestServer(t, service)

	req := httptest.NewRequest(
		http.MethodPost,
		"/v1/batches",
		bytes.NewBufferString(`{"feed_url":"https://news.example.com/rss"}`),
	)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "https://news.example.com/rss", service.requests()[0].FeedURL)
}

func TestServer_SubmitBatch_InvalidJSON(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := newTestServer(t, &fakeBatchService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitBatch_ValidatesBody(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := newTestServer(t, &fakeBatchService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "feed_url or entries required")

	body := `{"feed_url":"https://news.example.com/rss","entries":[{"url":"https://news.example.com/a"}]}`
	req = httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewBufferString(body))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "not both")
}

func TestServer_SubmitBatch_EmptyFeed(t *testing.T) {
	t.Parallel()
	metrics.Init()

	service := &fakeBatchService{submitErr: coordinator.ErrNoEntries}
	server := newTestServer(t, service)

	req := httptest.NewRequest(
		http.MethodPost,
		"/v1/batches",
		bytes.NewBufferString(`{"feed_url":"https://news.example.com/empty.rss"}`),
	)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetBatch_ReturnsRecord(t *testing.T) {
	t.Parallel()
	metrics.Init()

	batches := memorystorage.NewBatchStore()
	require.NoError(t, batches.CreateBatch(context.Background(), pipeline.Batch{
		ID:     "batch-status",
		Status: pipeline.BatchStatusSucceeded,
		Result: &pipeline.BatchResult{Requested: 3, Succeeded: 3},
	}))
	server := newTestServerWithStores(t, &fakeBatchService{}, batches, memorystorage.NewArticleStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/batch-status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "succeeded")
	require.Contains(t, rec.Body.String(), `"requested":3`)
}

func TestServer_GetBatch_NotFound(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := newTestServer(t, &fakeBatchService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/batches/missing", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListArticles_ReturnsArticles(t *testing.T) {
	t.Parallel()
	metrics.Init()

	batches := memorystorage.NewBatchStore()
	require.NoError(t, batches.CreateBatch(context.Background(), pipeline.Batch{
		ID:     "batch-arts",
		Status: pipeline.BatchStatusSucceeded,
	}))
	articles := memorystorage.NewArticleStore()
	require.NoError(t, articles.SaveArticle(context.Background(), pipeline.Article{
		ID:      "a1",
		BatchID: "batch-arts",
		Title:   "Fed Holds Rates",
		Link:    "https://news.example.com/fed",
	}))
	server := newTestServerWithStores(t, &fakeBatchService{}, batches, articles)

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/batch-arts/articles", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Fed Holds Rates")
}

func TestServer_ListArticles_UnknownBatch(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := newTestServer(t, &fakeBatchService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/batches/missing/articles", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CancelBatch_Succeeds(t *testing.T) {
	t.Parallel()
	metrics.Init()

	service := &fakeBatchService{}
	server := newTestServer(t, service)

	req := httptest.NewRequest(http.MethodPost, "/v1/batches/batch-cancel/cancel", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "canceled")
	require.Equal(t, []string{"batch-cancel"}, service.canceled())
}

func TestServer_CancelBatch_ErrorMapping(t *testing.T) {
	t.Parallel()
	metrics.Init()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "not found", err: pipeline.ErrBatchNotFound, code: http.StatusNotFound},
		{
			name: "already finished",
			err:  fmt.Errorf("batch b is succeeded: %w", coordinator.ErrBatchFinished),
			code: http.StatusConflict,
		},
		{name: "other", err: errors.New("boom"), code: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(t, &fakeBatchService{cancelErr: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/v1/batches/b/cancel", nil)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)
			require.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()
	metrics.Init()

	cfg := config.Config{
		Auth: config.AuthConfig{Enabled: true, APIKey: "secret"},
	}
	server := NewServer(
		memorystorage.NewBatchStore(),
		memorystorage.NewArticleStore(),
		&fakeBatchService{},
		cfg,
		zap.NewNop(),
		nil,
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := newTestServer(t, &fakeBatchService{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()
	metrics.Init()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(t, &fakeBatchService{}).Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeBatchService struct {
	mu        sync.Mutex
	submitted pipeline.Batch
	submitErr error
	cancelErr error
	reqs      []coordinator.SubmitRequest
	cancels   []string
}

func (f *fakeBatchService) Submit(
	_ context.Context,
	req coordinator.SubmitRequest,
) (pipeline.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return pipeline.Batch{}, f.submitErr
	}
	f.reqs = append(f.reqs, req)
	return f.submitted, nil
}

func (f *fakeBatchService) Cancel(_ context.Context, batchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancels = append(f.cancels, batchID)
	return nil
}

func (f *fakeBatchService) requests() []coordinator.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]coordinator.SubmitRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func (f *fakeBatchService) canceled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cancels))
	copy(out, f.cancels)
	return out
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(t *testing.T, service BatchService) *Server {
	t.Helper()
	return newTestServerWithStores(
		t,
		service,
		memorystorage.NewBatchStore(),
		memorystorage.NewArticleStore(),
	)
}

func newTestServerWithStores(
	t *testing.T,
	service BatchService,
	batches pipeline.BatchStore,
	articles pipeline.ArticleStore,
) *Server {
	t.Helper()
	cfg := config.Config{
		Logging: config.LoggingConfig{Development: true},
	}
	return NewServer(batches, articles, service, cfg, zap.NewNop(), nil)
}
