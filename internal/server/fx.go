// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/JakeFAU/feedharvest/internal/api"
	"github.com/JakeFAU/feedharvest/internal/cascade"
	"github.com/JakeFAU/feedharvest/internal/clock/system"
	"github.com/JakeFAU/feedharvest/internal/config"
	"github.com/JakeFAU/feedharvest/internal/coordinator"
	"github.com/JakeFAU/feedharvest/internal/dispatcher"
	"github.com/JakeFAU/feedharvest/internal/extract"
	"github.com/JakeFAU/feedharvest/internal/feed"
	browserfetcher "github.com/JakeFAU/feedharvest/internal/fetcher/browser"
	headlessfetcher "github.com/JakeFAU/feedharvest/internal/fetcher/headless"
	readerfetcher "github.com/JakeFAU/feedharvest/internal/fetcher/reader"
	"github.com/JakeFAU/feedharvest/internal/hash/sha256"
	"github.com/JakeFAU/feedharvest/internal/id/uuid"
	"github.com/JakeFAU/feedharvest/internal/logging"
	"github.com/JakeFAU/feedharvest/internal/metrics"
	"github.com/JakeFAU/feedharvest/internal/pipeline"
	"github.com/JakeFAU/feedharvest/internal/policy/ratelimit"
	"github.com/JakeFAU/feedharvest/internal/policy/simple"
	"github.com/JakeFAU/feedharvest/internal/progress"
	progresssinks "github.com/JakeFAU/feedharvest/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/feedharvest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/feedharvest/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/feedharvest/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/feedharvest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/feedharvest/internal/storage/local"
	memoryStorage "github.com/JakeFAU/feedharvest/internal/storage/memory"
	pgstore "github.com/JakeFAU/feedharvest/internal/storage/postgres"
	"github.com/JakeFAU/feedharvest/internal/store"
	"github.com/JakeFAU/feedharvest/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	coord           *coordinator.Coordinator
	progressHub     *progress.Hub
	headless        *headlessfetcher.Fetcher
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	articleStore    *pgstore.ArticleStore
	progressRepo    store.ProgressRepository
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Define a struct for logging only non-sensitive config fields
	type SanitizedConfig struct {
		ServerPort int      `json:"server_port"`
		Strategies []string `json:"strategies"`
		Workers    int      `json:"workers"`
	}
	safeCfg := SanitizedConfig{
		ServerPort: cfg.Server.Port,
		Strategies: cfg.EnabledStrategies(),
		Workers:    cfg.Pipeline.Workers,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.coord != nil {
		if err := a.coord.Shutdown(ctx); err != nil {
			a.logger.Warn("coordinator shutdown incomplete", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	a.closeObservability()
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.articleStore != nil {
		a.articleStore.Close()
	}
	if a.progressRepo != nil {
		if pgRepo, ok := a.progressRepo.(*pgstore.ProgressStore); ok {
			pgRepo.Close()
		}
	}
}

func (a *App) closeObservability() {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	app.logger.Info("building application dependencies")
	batchStore := memoryStorage.NewBatchStore()

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}

	articleStore, err := setupDatabase(ctx, app)
	if err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	progressEmitter, err := setupProgress(ctx, app, app.progressRepo)
	if err != nil {
		return nil, err
	}

	fetcher, err := setupCascade(app)
	if err != nil {
		return nil, err
	}

	extractor := extract.New(extract.Config{
		MinReadableLength: cfg.Extract.MinReadableLength,
		MinSummaryLength:  cfg.Extract.MinSummaryLength,
	}, logger.Named("extract"))

	deps := pipelineDeps{
		fetcher:   fetcher,
		extractor: extractor,
		articles:  articleStore,
		blobs:     blobStore,
		publisher: publisher,
		hasher:    sha256.New(),
		clock:     system.New(),
		emitter:   progressEmitter,
		workerCfg: worker.Config{
			ContentType:          cfg.Storage.ContentType,
			BlobPrefix:           cfg.Storage.Prefix,
			SummaryTopic:         cfg.PubSub.Topic,
			MinSummaryBodyLength: cfg.PubSub.MinBodyLength,
		},
	}
	app.logger.Info("worker config",
		zap.String("content_type", deps.workerCfg.ContentType),
		zap.String("blob_prefix", deps.workerCfg.BlobPrefix),
		zap.String("summary_topic", deps.workerCfg.SummaryTopic),
		zap.Int("pool_size", cfg.Pipeline.Workers),
	)

	app.coord, err = coordinator.New(
		setupFeeds(app),
		batchStore,
		uuid.New(),
		system.New(),
		progressEmitter,
		buildPoolRunner(app, deps),
		coordinator.Config{
			MaxEntries:  cfg.Feed.MaxEntries,
			BaseContext: ctx,
		},
		logger.Named("coordinator"),
	)
	if err != nil {
		return nil, fmt.Errorf("coordinator init failed: %w", err)
	}

	app.apiServer = api.NewServer(
		batchStore,
		articleStore,
		app.coord,
		*cfg,
		logger.Named("api"),
		app.progressRepo,
	)

	return app, nil
}

// pipelineDeps bundles the per-batch worker dependencies that stay constant
// across batches.
type pipelineDeps struct {
	fetcher   pipeline.Fetcher
	extractor pipeline.Extractor
	articles  pipeline.ArticleStore
	blobs     pipeline.BlobStore
	publisher pipeline.Publisher
	hasher    pipeline.Hasher
	clock     pipeline.Clock
	emitter   progress.Emitter
	workerCfg worker.Config
}

// buildPoolRunner returns the coordinator's pool runner: each batch gets its
// own bounded queue and worker set, so one stalled batch never starves
// another and a drained queue ends the pool.
func buildPoolRunner(app *App, deps pipelineDeps) coordinator.PoolRunner {
	return func(ctx context.Context, tasks []pipeline.EntryTask, sink pipeline.ResultSink) {
		q := queueMemory.NewQueue(len(tasks))
		for _, task := range tasks {
			if err := q.Enqueue(ctx, task); err != nil {
				app.logger.Warn("enqueue aborted",
					zap.String("batch_id", task.BatchID),
					zap.Error(err),
				)
				break
			}
		}
		q.Close()

		size := app.cfg.Pipeline.Workers
		if size > len(tasks) {
			size = len(tasks)
		}
		workers := make([]*worker.Worker, 0, size)
		for i := 0; i < size; i++ {
			workers = append(workers, worker.New(
				q,
				deps.fetcher,
				deps.extractor,
				deps.articles,
				deps.blobs,
				deps.publisher,
				sink,
				deps.hasher,
				deps.clock,
				deps.emitter,
				deps.workerCfg,
				app.logger.Named("worker").With(zap.Int("index", i)),
			))
		}
		dispatcher.New(q, workers).Run(ctx)
	}
}

func setupStorage(ctx context.Context, app *App) (pipeline.BlobStore, error) {
	var blobStore pipeline.BlobStore
	var err error
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS storage backend", zap.String("bucket", app.cfg.Storage.Bucket))
	case "local":
		app.logger.Info("using local storage backend")
		blobStore, err = localstorage.New(localstorage.Config{
			BaseDir: app.cfg.Storage.Local.BaseDir,
		})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local storage backend", zap.String("path", app.cfg.Storage.Local.BaseDir))
	default:
		app.logger.Info("using in-memory storage backend")
		blobStore = memoryStorage.NewBlobStore()
	}
	return blobStore, nil
}

func setupDatabase(ctx context.Context, app *App) (pipeline.ArticleStore, error) {
	if app.cfg.Database.DSN == "" {
		app.logger.Warn("no database DSN configured, storing articles in memory")
		return memoryStorage.NewArticleStore(), nil
	}
	var err error
	app.articleStore, err = pgstore.NewArticleStore(ctx, pgstore.ArticleStoreConfig{
		DSN:             app.cfg.Database.DSN,
		Table:           app.cfg.Database.ArticlesTable,
		MaxConns:        app.cfg.Database.MaxConns,
		MinConns:        app.cfg.Database.MinConns,
		MaxConnLifetime: app.cfg.MaxConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("article store init failed: %w", err)
	}
	app.logger.Info("article store initialized", zap.String("table", app.cfg.Database.ArticlesTable))
	app.progressRepo, err = pgstore.NewProgressStore(ctx, app.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("progress store init failed: %w", err)
	}
	return app.articleStore, nil
}

func setupPublisher(ctx context.Context, app *App) (pipeline.Publisher, error) {
	if app.cfg.PubSub.Topic == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.Topic),
	)
	return app.pubsubPublisher, nil
}

func setupProgress(
	ctx context.Context,
	app *App,
	progressRepo store.ProgressRepository,
) (progress.Emitter, error) {
	if !app.cfg.Progress.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	var sinkList []progress.Sink
	if progressRepo != nil {
		sinkList = append(
			sinkList,
			progresssinks.NewStoreSink(progressRepo, app.logger.Named("progress_store")),
		)
		app.logger.Debug("Added progress store sink")
	}
	if app.cfg.Progress.LogEnabled {
		sinkList = append(
			sinkList,
			progresssinks.NewLogSink(app.logger.Named("progress_log")),
		)
		app.logger.Debug("Added progress log sink")
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		app.logger.Warn("prometheus progress sink init failed", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
		app.logger.Debug("Added prometheus progress sink")
	}
	if len(sinkList) == 0 {
		app.logger.Warn("progress tracking enabled but no sinks configured")
		return nil, nil
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.progressHub, nil
}

//nolint:gocognit // Strategy wiring is linear but extensive, ignoring complexity check
func setupCascade(app *App) (pipeline.Fetcher, error) {
	cfg := app.cfg
	var strategies []pipeline.Strategy
	for _, name := range cfg.EnabledStrategies() {
		switch name {
		case pipeline.StrategyReader:
			strategies = append(strategies, readerfetcher.New(readerfetcher.Config{
				BaseURL:   cfg.Strategies.Reader.BaseURL,
				APIKey:    cfg.Strategies.Reader.APIKey,
				UserAgent: cfg.Strategies.UserAgent,
				Timeout:   time.Duration(cfg.Strategies.Reader.TimeoutSeconds) * time.Second,
				MinBytes:  cfg.Strategies.Reader.MinBytes,
			}))
			app.logger.Info("reader strategy enabled", zap.String("base_url", cfg.Strategies.Reader.BaseURL))
		case pipeline.StrategyBrowser:
			strategies = append(strategies, browserfetcher.New(browserfetcher.Config{
				UserAgent:     cfg.Strategies.UserAgent,
				RespectRobots: cfg.Strategies.Browser.RespectRobots,
				Timeout:       time.Duration(cfg.Strategies.Browser.TimeoutSeconds) * time.Second,
				MinBytes:      cfg.Strategies.Browser.MinBytes,
			}))
			app.logger.Info("browser strategy enabled", zap.Bool("respect_robots", cfg.Strategies.Browser.RespectRobots))
		case pipeline.StrategyHeadless:
			hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
				MaxParallel:        cfg.Strategies.Headless.MaxParallel,
				UserAgent:          cfg.Strategies.UserAgent,
				NavigationTimeout:  time.Duration(cfg.Strategies.Headless.NavTimeoutSeconds) * time.Second,
				ContentWaitTimeout: time.Duration(cfg.Strategies.Headless.ContentWaitSeconds) * time.Second,
				MinBytes:           cfg.Strategies.Headless.MinBytes,
				ExtraBlockedHosts:  cfg.Strategies.Headless.ExtraBlockedHosts,
			})
			if err != nil {
				app.logger.Warn("headless fetcher init failed, skipping strategy", zap.Error(err))
				continue
			}
			app.headless = hf
			strategies = append(strategies, hf)
			app.logger.Info("headless strategy enabled", zap.Int("max_parallel", cfg.Strategies.Headless.MaxParallel))
		}
	}

	var limiter pipeline.Limiter
	if cfg.RateLimit.Enabled {
		limits := make(map[string]ratelimit.StrategyLimit, len(cfg.RateLimit.Strategies))
		for name, lim := range cfg.RateLimit.Strategies {
			limits[name] = ratelimit.StrategyLimit{
				RPS:   lim.RPS,
				Burst: lim.Burst,
				Slots: lim.Slots,
			}
		}
		limiter = ratelimit.New(ratelimit.Config{Strategies: limits})
		app.logger.Info("rate limiter enabled", zap.Int("strategies", len(limits)))
	} else {
		limiter = simple.New()
		app.logger.Info("rate limiter disabled, using permissive policy")
	}

	orch, err := cascade.New(strategies, limiter, system.New(), cascade.Config{
		DefaultAttemptTimeout: time.Duration(cfg.Cascade.AttemptTimeoutSeconds) * time.Second,
		AttemptTimeouts:       cfg.AttemptTimeouts(),
		FailureThreshold:      cfg.Cascade.FailureThreshold,
		CooldownBase:          time.Duration(cfg.Cascade.CooldownBaseMs) * time.Millisecond,
		CooldownMax:           time.Duration(cfg.Cascade.CooldownMaxMs) * time.Millisecond,
	}, app.logger.Named("cascade"))
	if err != nil {
		return nil, fmt.Errorf("cascade init failed: %w", err)
	}
	return orch, nil
}

func setupFeeds(app *App) coordinator.FeedSource {
	parser := feed.NewParser(
		&http.Client{Timeout: app.cfg.FeedTimeout()},
		app.cfg.Feed.MaxEntries,
		app.logger.Named("feed"),
	)
	if ttl := app.cfg.FeedCacheTTL(); ttl > 0 {
		return feed.NewCachedParser(parser, ttl, system.New(), app.logger.Named("feed_cache"))
	}
	return parser
}
