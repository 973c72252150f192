// Package server builds the audit service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-auditor/internal/api"
	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/clock/system"
	"github.com/JakeFAU/seo-auditor/internal/config"
	"github.com/JakeFAU/seo-auditor/internal/dispatcher"
	"github.com/JakeFAU/seo-auditor/internal/engine"
	collyextractor "github.com/JakeFAU/seo-auditor/internal/extractor/colly"
	"github.com/JakeFAU/seo-auditor/internal/extractor/headless"
	"github.com/JakeFAU/seo-auditor/internal/id/uuid"
	"github.com/JakeFAU/seo-auditor/internal/logging"
	"github.com/JakeFAU/seo-auditor/internal/metrics"
	"github.com/JakeFAU/seo-auditor/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/seo-auditor/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/seo-auditor/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/seo-auditor/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/seo-auditor/internal/storage/gcs"
	localstorage "github.com/JakeFAU/seo-auditor/internal/storage/local"
	memoryStorage "github.com/JakeFAU/seo-auditor/internal/storage/memory"
	"github.com/JakeFAU/seo-auditor/internal/worker"
)

// errShuttingDown is reported by the readiness probe once shutdown begins.
var errShuttingDown = errors.New("service is shutting down")

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	engine    *engine.Engine
	dispatch  *dispatcher.Dispatcher
	queue     *queueMemory.Queue
	extractor audit.Extractor
	publisher audit.Publisher
	storage   io.Closer

	draining  atomic.Bool
	closeOnce sync.Once
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{
		cfg:    cfg,
		logger: logger,
	}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("extractor", cfg.Extractor.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.Int("concurrency", cfg.Engine.Concurrency),
	)

	jobStore := memoryStorage.NewJobStore()
	app.queue = queueMemory.NewQueue(cfg.Engine.QueueDepth)

	archive, err := setupArchive(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if app.publisher, err = setupPublisher(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if app.extractor, err = setupExtractor(app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	caps := app.extractor.Capabilities()
	logger.Info("extractor capabilities",
		zap.String("backend", caps.Backend),
		zap.Bool("rendered", caps.Rendered),
		zap.Bool("resource_blocking", caps.ResourceBlocking),
		zap.Bool("navigation_timing", caps.NavigationTiming),
	)

	app.dispatch = setupDispatcher(app, jobStore, archive)
	clock := system.New()
	app.engine = engine.New(jobStore, app.dispatch, uuid.New(), clock, engine.Config{
		Retention:      cfg.Engine.Retention,
		SweepInterval:  cfg.Engine.SweepInterval,
		EnqueueTimeout: cfg.Engine.EnqueueTimeout,
	}, logger.Named("engine"))

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	crawler := collyextractor.New(collyextractor.Config{
		UserAgent: cfg.Extractor.UserAgent,
		Timeout:   cfg.Extractor.HTTPTimeout,
	})
	app.apiServer = api.NewServer(app.engine, crawler, caps, app.ready, api.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		CrawlTimeout:   cfg.Extractor.NavTimeout,
		APIKey:         apiKey,
	}, logger.Named("api"))

	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.ListenAddr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the worker pool, the retention sweep and the HTTP server on ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Workers keep draining after ctx ends; Close on the queue stops them.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Engine.Concurrency))
		a.dispatch.Run(workCtx)
	}()
	go a.engine.RunRetention(ctx)

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")
	a.draining.Store(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not drain before the shutdown deadline")
		cancelWork()
		<-dispatchDone
	}

	closeErr := a.Close()
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases the extractor, publisher and storage clients. It is safe
// to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.queue.Close()
		a.closeInfrastructure()
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure() {
	if c, ok := a.extractor.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("extractor close failed", zap.Error(err))
		}
	}
	if c, ok := a.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) ready(context.Context) error {
	if a.draining.Load() {
		return errShuttingDown
	}
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

// openGCS is replaced in tests.
var openGCS = func(ctx context.Context) (*storage.Client, io.Closer, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

func setupArchive(ctx context.Context, app *App) (audit.BlobStore, error) {
	cfg := app.cfg.Archive
	switch cfg.Backend {
	case "gcs":
		app.logger.Info("using GCS snapshot archive", zap.String("bucket", cfg.Bucket))
		client, closer, err := openGCS(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = closer
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:       cfg.Bucket,
			CacheControl: cfg.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, nil
	case "local":
		app.logger.Info("using local snapshot archive", zap.String("path", cfg.Local.BaseDir))
		store, err := localstorage.New(cfg.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	case "memory":
		app.logger.Info("using in-memory snapshot archive")
		return memoryStorage.NewBlobStore(), nil
	default:
		app.logger.Info("snapshot archive disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (audit.Publisher, error) {
	cfg := app.cfg.PubSub
	if cfg.Topic == "" || cfg.ProjectID == "" {
		app.logger.Info("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.Topic),
	)
	return gcppublisher.New(client), nil
}

func setupExtractor(app *App) (audit.Extractor, error) {
	cfg := app.cfg.Extractor
	switch cfg.Backend {
	case config.BackendColly:
		return collyextractor.New(collyextractor.Config{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.NavTimeout,
		}), nil
	case config.BackendPlaywright:
		ext, err := headless.NewPlaywright(headlessConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("playwright extractor init failed: %w", err)
		}
		return ext, nil
	default:
		ext, err := headless.NewChromedp(headlessConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("chromedp extractor init failed: %w", err)
		}
		return ext, nil
	}
}

func headlessConfig(cfg config.ExtractorConfig) headless.Config {
	return headless.Config{
		MaxParallel:       cfg.MaxParallel,
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.NavTimeout,
		ExecPath:          cfg.ExecPath,
	}
}

func setupDispatcher(app *App, jobStore audit.JobStore, archive audit.BlobStore) *dispatcher.Dispatcher {
	var limiter audit.Limiter
	if app.cfg.RateLimit.PerHostRPS > 0 {
		limiter = ratelimit.New(app.cfg.RateLimit)
		app.logger.Info("per-host rate limit enabled",
			zap.Float64("rps", app.cfg.RateLimit.PerHostRPS),
			zap.Int("burst", app.cfg.RateLimit.Burst),
		)
	}

	workerCfg := worker.Config{
		Topic:         app.cfg.PubSub.Topic,
		ArchivePrefix: app.cfg.Archive.Prefix,
		JobTimeout:    app.cfg.Engine.JobTimeout,
	}
	clock := system.New()
	workers := make([]dispatcher.Runner, 0, app.cfg.Engine.Concurrency)
	for i := 0; i < app.cfg.Engine.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue,
			jobStore,
			app.extractor,
			limiter,
			archive,
			app.publisher,
			clock,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers)
}
