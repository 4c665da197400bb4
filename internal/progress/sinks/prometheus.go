package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/feedharvest/internal/progress"
)

// PrometheusSink converts progress events into Prometheus metrics. Collectors
// are registered against the Registerer passed to the constructor, so callers
// can scope metrics to a private registry in tests.
type PrometheusSink struct {
	batchesStarted   prometheus.Counter
	batchesCompleted *prometheus.CounterVec
	batchesRunning   prometheus.Gauge
	batchRuntime     *prometheus.HistogramVec

	siteFetches      *prometheus.CounterVec
	siteFetchBytes   *prometheus.CounterVec
	siteFetchLatency *prometheus.HistogramVec
	siteExtracts     *prometheus.CounterVec

	tracker *batchTracker
}

// NewPrometheusSink builds the sink and registers its collectors with reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedharvest_batches_started_total",
			Help: "Number of batches that reported a start event.",
		}),
		batchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharvest_batches_completed_total",
			Help: "Number of batches that finished, labelled by result.",
		}, []string{"result"}),
		batchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedharvest_batches_running",
			Help: "Number of batches currently in flight.",
		}),
		batchRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedharvest_batch_runtime_seconds",
			Help:    "Wall-clock runtime of finished batches.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"result"}),
		siteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharvest_site_fetch_requests_total",
			Help: "Fetch attempts per site, labelled by status class.",
		}, []string{"site", "status_class"}),
		siteFetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharvest_site_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		siteFetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedharvest_site_fetch_duration_seconds",
			Help:    "Fetch latency per site, labelled by status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"site", "status_class"}),
		siteExtracts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharvest_site_extracts_total",
			Help: "Successful article extractions per site.",
		}, []string{"site"}),
		tracker: newBatchTracker(),
	}

	collectors := []prometheus.Collector{
		s.batchesStarted,
		s.batchesCompleted,
		s.batchesRunning,
		s.batchRuntime,
		s.siteFetches,
		s.siteFetchBytes,
		s.siteFetchLatency,
		s.siteExtracts,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates metrics for every event in the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageBatchStart, progress.StageBatchDone, progress.StageBatchError:
		s.handleBatchEvent(evt)
	case progress.StageFetchDone:
		s.handleFetchEvent(evt)
	case progress.StageExtractDone:
		s.handleExtractEvent(evt)
	}
}

func (s *PrometheusSink) handleBatchEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageBatchStart:
		s.batchesStarted.Inc()
		if s.tracker.start(evt.BatchID) {
			s.batchesRunning.Inc()
		}
	case progress.StageBatchDone:
		s.finishBatch(evt, "success")
	case progress.StageBatchError:
		s.finishBatch(evt, "error")
	}
}

func (s *PrometheusSink) finishBatch(evt progress.Event, result string) {
	s.batchesCompleted.WithLabelValues(result).Inc()
	if s.tracker.complete(evt.BatchID) {
		s.batchesRunning.Dec()
	}
	if evt.Dur > 0 {
		s.batchRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	class := string(evt.StatusClass)
	if class == "" {
		class = string(progress.StatusOther)
	}
	s.siteFetches.WithLabelValues(site, class).Inc()
	if evt.Bytes > 0 {
		s.siteFetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.siteFetchLatency.WithLabelValues(site, class).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleExtractEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	s.siteExtracts.WithLabelValues(site).Inc()
}

// Close implements the Sink interface; collectors stay registered.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// batchTracker deduplicates start and completion events so the running gauge
// stays accurate when a stage is reported more than once.
type batchTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newBatchTracker() *batchTracker {
	return &batchTracker{running: make(map[[16]byte]struct{})}
}

// start records the batch as running and reports whether it was new.
func (t *batchTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

// complete removes the batch and reports whether it was tracked as running.
func (t *batchTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
