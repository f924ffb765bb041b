// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/api"
	"github.com/rcarls/ghast/internal/clock/system"
	"github.com/rcarls/ghast/internal/config"
	collyfetcher "github.com/rcarls/ghast/internal/fetcher/colly"
	"github.com/rcarls/ghast/internal/hash/sha256"
	"github.com/rcarls/ghast/internal/id/uuid"
	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
	"github.com/rcarls/ghast/internal/logging"
	"github.com/rcarls/ghast/internal/metrics"
	"github.com/rcarls/ghast/internal/notify"
	"github.com/rcarls/ghast/internal/pipeline"
	"github.com/rcarls/ghast/internal/policy"
	"github.com/rcarls/ghast/internal/policy/ratelimit"
	"github.com/rcarls/ghast/internal/refcache"
	"github.com/rcarls/ghast/internal/resolver"
	gcsstorage "github.com/rcarls/ghast/internal/storage/gcs"
	localstorage "github.com/rcarls/ghast/internal/storage/local"
	memorystorage "github.com/rcarls/ghast/internal/storage/memory"
	pgstore "github.com/rcarls/ghast/internal/storage/postgres"
	"github.com/rcarls/ghast/internal/telemetry"
)

// Version is reported on traces and the startup log.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	root   *zap.Logger
	logger *zap.Logger

	cache    indieweb.ReferenceCache
	gateway  indieweb.Gateway
	archive  indieweb.BlobStore
	fetcher  indieweb.Fetcher
	resolver *resolver.Resolver
	pipeline *pipeline.Pipeline
	dispatch *notify.Dispatcher
	api      *api.Server
	ready    []api.ReadinessCheck

	redisClient     *redis.Client
	pgGateway       *pgstore.Gateway
	gcsStore        *gcsstorage.BlobStore
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	tracer          *sdktrace.TracerProvider
}

// NewApp builds every dependency named by cfg. Partially built resources are
// released when a later step fails.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, root: logger, logger: logging.Named(logger, "server")}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("version", Version),
		zap.String("site", cfg.Site.URL),
		zap.String("cache", cfg.Cache.Provider),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)
	metrics.Init()

	if cfg.Telemetry.TracingEnabled {
		app.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: Version,
			ProjectID:      cfg.Telemetry.ProjectID,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
	}
	if err = app.setupCache(ctx); err != nil {
		return nil, err
	}
	if err = app.setupGateway(ctx); err != nil {
		return nil, err
	}
	if err = app.setupArchive(ctx); err != nil {
		return nil, err
	}
	if err = app.setupResolver(); err != nil {
		return nil, err
	}
	notifier, err := app.setupNotifier(ctx)
	if err != nil {
		return nil, err
	}

	app.pipeline, err = pipeline.New(pipeline.Config{
		SiteURL:         cfg.Site.URL,
		OwnerURL:        cfg.Site.OwnerURL,
		OwnerName:       cfg.Site.OwnerName,
		CreateOptions:   app.documentOptions(),
		ReactionOptions: app.documentOptions(),
	}, pipeline.Dependencies{
		Store:      app.gateway,
		References: app.resolver,
		Notifier:   notifier,
		Clock:      system.New(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	app.api = api.NewServer(app.pipeline, app.resolver, app.gateway, uuid.New(), cfg, logger, app.ready...)
	return app, nil
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

// Resolver exposes the reference resolver for one-shot commands.
func (a *App) Resolver() *resolver.Resolver {
	return a.resolver
}

// Pipeline exposes the ingestion pipeline for one-shot commands.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Run serves HTTP and delivers notifications until ctx is canceled or the
// process receives SIGINT/SIGTERM, then shuts down and closes the app.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", a.cfg.Server.Port, err)
	}
	return a.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if a.dispatch != nil {
			a.logger.Info("notification workers started")
			a.dispatch.Run(ctx)
		}
	}()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-dispatchDone

	return a.Close(shutdownCtx)
}

// Close releases clients and pools.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
		a.pubsubPublisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsStore = nil
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
		a.redisClient = nil
	}
	if a.pgGateway != nil {
		a.pgGateway.Close()
		a.pgGateway = nil
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracer = nil
	}
}

func (a *App) documentOptions() jf2.Options {
	return jf2.Options{
		PreferredContentType: a.cfg.JF2.PreferredContentType,
		ImplicitContentType:  a.cfg.JF2.ImplicitContentType,
		Compact:              a.cfg.JF2.Compact,
	}
}

func (a *App) setupCache(ctx context.Context) error {
	switch a.cfg.Cache.Provider {
	case "redis":
		client, err := refcache.Dial(ctx, a.cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("redis cache init failed: %w", err)
		}
		a.redisClient = client
		codec, err := refcache.CodecFor(a.cfg.Cache.Codec)
		if err != nil {
			return fmt.Errorf("redis cache init failed: %w", err)
		}
		cache := refcache.NewRedisCache(client, a.cfg.Cache.Prefix, codec)
		a.cache = cache
		a.ready = append(a.ready, cache.Ping)
		a.logger.Info("using redis reference cache", zap.String("codec", a.cfg.Cache.Codec))
	default:
		a.cache = refcache.NewMemoryCache()
		a.logger.Info("using in-memory reference cache")
	}
	if a.cfg.Cache.ClearOnStart {
		if err := a.cache.Clear(ctx); err != nil {
			return fmt.Errorf("clear reference cache: %w", err)
		}
		a.logger.Debug("reference cache cleared")
	}
	return nil
}

func (a *App) setupGateway(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case "postgres":
		gateway, err := pgstore.New(ctx, pgstore.Config{
			DSN:      a.cfg.Storage.DSN,
			MaxConns: a.cfg.Storage.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres gateway init failed: %w", err)
		}
		a.pgGateway = gateway
		if err := gateway.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema init failed: %w", err)
		}
		a.gateway = gateway
		a.ready = append(a.ready, gateway.Ping)
		a.logger.Info("using postgres storage gateway")
	default:
		a.gateway = memorystorage.NewGateway()
		a.logger.Warn("using in-memory storage gateway; records are lost on restart")
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Provider {
	case "gcs":
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcsStore = store
		a.archive = store
		a.logger.Info("archiving snapshots to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local archive init failed: %w", err)
		}
		a.archive = store
		a.logger.Info("archiving snapshots locally", zap.String("path", a.cfg.Archive.BaseDir))
	case "memory":
		a.archive = memorystorage.NewBlobStore()
		a.logger.Info("archiving snapshots in memory")
	default:
		a.logger.Info("snapshot archiving disabled")
	}
	return nil
}

func (a *App) setupResolver() error {
	a.fetcher = policy.NewFetcher(
		collyfetcher.New(collyfetcher.Config{
			UserAgent: a.cfg.Resolver.UserAgent,
			Timeout:   a.cfg.Resolver.FetchTimeout,
		}),
		ratelimit.New(ratelimit.Config{
			DefaultRPS:   a.cfg.Resolver.RateLimitRPS,
			DefaultBurst: a.cfg.Resolver.RateLimitBurst,
		}),
		policy.NewBlocklist(a.cfg.Resolver.BlockedHosts),
	)
	deps := resolver.Dependencies{
		Fetcher:   a.fetcher,
		Cache:     a.cache,
		Citations: a.gateway,
		People:    a.gateway,
		Clock:     system.New(),
	}
	if a.archive != nil {
		deps.Archive = a.archive
		deps.Hasher = sha256.New()
	}
	referenceOpts := a.documentOptions()
	referenceOpts.EmbedReferences = false
	sourceOpts := a.documentOptions()
	sourceOpts.EmbedReferences = true

	var err error
	a.resolver, err = resolver.New(resolver.Config{
		FetchTimeout:     a.cfg.Resolver.FetchTimeout,
		MaxParallel:      a.cfg.Resolver.MaxParallel,
		ArchivePrefix:    a.cfg.Resolver.ArchivePrefix,
		ReferenceOptions: referenceOpts,
		SourceOptions:    sourceOpts,
	}, deps, a.root)
	if err != nil {
		return fmt.Errorf("resolver init failed: %w", err)
	}
	return nil
}

func (a *App) setupNotifier(ctx context.Context) (indieweb.Notifier, error) {
	var sender notify.Sender
	switch a.cfg.Notify.Provider {
	case "none":
		a.logger.Info("outbound notifications disabled")
		return notify.Discard{}, nil
	case "webmention":
		sender = notify.NewWebmentionSender(a.fetcher, &http.Client{Timeout: a.cfg.Notify.Timeout}, a.cfg.Resolver.UserAgent)
		a.logger.Info("sending webmentions directly")
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Notify.PubSubProject)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher = client.Publisher(a.cfg.Notify.PubSubTopic)
		sender = notify.NewPubSubSender(a.pubsubPublisher)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Notify.PubSubProject),
			zap.String("topic", a.cfg.Notify.PubSubTopic),
		)
	default:
		sender = notify.NewLogSender(a.root)
		a.logger.Info("logging outbound notifications")
	}

	dispatch, err := notify.NewDispatcher(notify.Config{
		Workers:     a.cfg.Notify.Workers,
		QueueDepth:  a.cfg.Notify.QueueDepth,
		MaxAttempts: a.cfg.Notify.MaxAttempts,
		Timeout:     a.cfg.Notify.Timeout,
	}, sender, uuid.New(), a.root)
	if err != nil {
		return nil, fmt.Errorf("notification dispatcher init failed: %w", err)
	}
	a.dispatch = dispatch
	return dispatch, nil
}
