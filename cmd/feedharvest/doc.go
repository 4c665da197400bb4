// Package main hosts the feed harvest service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, batch management, and progress endpoints. Submissions
//     carry either a feed URL or inline entries; the coordinator resolves them, records the batch, and returns 202
//     while processing continues in the background.
//   - Coordinator & pools: each batch runs on its own bounded in-memory queue and worker pool sized by
//     config.Pipeline.Workers. The coordinator tracks per-batch cancel functions, so one batch can be canceled
//     without touching another, and drains active batches on shutdown.
//   - Fetch cascade: workers fetch each entry through internal/cascade, which tries the reader proxy, the
//     header-spoofing browser client, and headless Chrome in configured order. Strategies that fail repeatedly are
//     benched for an exponential cooldown; per-strategy rate and concurrency ceilings are enforced by the limiter.
//   - Extraction & persistence: raw HTML is archived to the configured BlobStore (memory/local/GCS) before
//     readability-based extraction produces the article record. Articles are persisted via the ArticleStore
//     (memory or Postgres), and a compact Pub/Sub summary request is published for long enough bodies.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the /metrics handler; progress events are buffered by the hub and fanned out to the
//     configured sinks. The service is stateless across requests, suitable for Cloud Run scale-out.
//
// Operational notes:
//   - Concurrency model: per-batch bounded queue + worker pool; headless fetches have their own semaphore inside
//     the Chromedp fetcher. Shutdown is coordinated via context cancellation propagated from main through the
//     coordinator to workers, with completed work persisted before the batch is finalized.
//   - Rate limiting/backoff: per-strategy token buckets plus in-flight slot ceilings; strategies that keep failing
//     enter an exponential cooldown so one broken mechanism cannot stall the whole cascade.
//   - Observability: zap logs carry batch IDs and URLs at key transitions; Prometheus counters/histograms track API
//     and fetch activity; the progress hub batches lifecycle events for downstream sinks. Tracing is not wired in.
//   - Cloud Run: the HTTP server listens on the configured port. Health endpoints (/healthz, /readyz) remain
//     lightweight; the process reacts to SIGTERM for graceful drain with in-flight batches canceled and finalized.
//
// Quick checklist:
//   - Configure env vars: FEEDHARVEST_SERVER_PORT, FEEDHARVEST_PIPELINE_WORKERS, FEEDHARVEST_STRATEGIES_ORDER,
//     FEEDHARVEST_STRATEGIES_READER_API_KEY, storage (FEEDHARVEST_STORAGE_*), pubsub, and the database DSN when
//     persistence beyond memory is required.
//   - Run locally: go run ./cmd/feedharvest -config config.yaml (or rely solely on env overrides).
//   - Cloud Run: container listens on the configured port, remains stateless across requests, and shuts down
//     cleanly on SIGTERM with in-flight work bounded by per-attempt timeouts.
package main
