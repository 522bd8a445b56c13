package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/poppy/config"
	"github.com/Ramsey-B/poppy/internal/handlers"
	"github.com/Ramsey-B/poppy/pkg/batch"
	"github.com/Ramsey-B/poppy/pkg/collector"
	"github.com/Ramsey-B/poppy/pkg/database"
	"github.com/Ramsey-B/poppy/pkg/grid"
	"github.com/Ramsey-B/poppy/pkg/health"
	"github.com/Ramsey-B/poppy/pkg/kafka"
	"github.com/Ramsey-B/poppy/pkg/middleware"
	"github.com/Ramsey-B/poppy/pkg/places"
	"github.com/Ramsey-B/poppy/pkg/processor"
	"github.com/Ramsey-B/poppy/pkg/redis"
	"github.com/Ramsey-B/poppy/pkg/repositories"
	"github.com/Ramsey-B/poppy/pkg/scheduler"
	"github.com/Ramsey-B/poppy/pkg/search"
	"github.com/Ramsey-B/poppy/pkg/startup"
	"github.com/Ramsey-B/poppy/pkg/tracing"
	"github.com/Ramsey-B/poppy/pkg/tracing/exporters"
)

// app holds what the startup dependencies build
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	health *health.Checker

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer

	tracker   *batch.Tracker
	collector *collector.Collector
	processor *processor.Processor
	engine    *search.Engine
	raw       *repositories.RawPlaceRepository

	scheduler *scheduler.Scheduler
	echo      *echo.Echo
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:    cfg,
		logger: logger,
		health: health.NewChecker(cfg.Version),
	}

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	s.AddDependency(&startup.Dependency{Name: "tracing", StartFn: a.startTracing})
	s.AddDependency(&startup.Dependency{Name: "database", StartFn: a.startDatabase, StopFn: a.stopDatabase})
	s.AddDependency(&startup.Dependency{Name: "redis", StartFn: a.startRedis, StopFn: a.stopRedis})
	s.AddDependency(&startup.Dependency{Name: "kafka", StartFn: a.startKafka, StopFn: a.stopKafka})
	s.AddDependency(&startup.Dependency{
		Name:    "services",
		Needs:   []string{"tracing", "database", "redis", "kafka"},
		StartFn: a.startServices,
	})
	s.AddDependency(&startup.Dependency{
		Name:    "scheduler",
		Needs:   []string{"services"},
		StartFn: a.startScheduler,
		StopFn:  a.stopScheduler,
	})
	s.AddDependency(&startup.Dependency{
		Name:    "http",
		Needs:   []string{"services"},
		StartFn: a.startHTTP,
		StopFn:  a.stopHTTP,
	})

	if err := s.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start poppy")
		os.Exit(1)
	}
	a.health.SetReady(true)
	logger.Infof("%s %s is ready on port %d", cfg.AppName, cfg.Version, cfg.Port)

	<-ctx.Done()
	a.health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build(zap.Fields(zap.String("app", cfg.AppName)))
}

func (a *app) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: a.cfg.AppName,
		Exporter:    a.cfg.TraceExporter,
		SampleRatio: a.cfg.TraceSampleRatio,
		OTLP: exporters.OTLPConfig{
			Endpoint: a.cfg.OTLPEndpoint,
			Protocol: a.cfg.OTLPProtocol,
			Insecure: a.cfg.OTLPInsecure,
		},
	}, a.logger)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			a.logger.WithError(err).Warn("Failed to flush traces")
		}
	}()
	return nil
}

func (a *app) startDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, database.Config{
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		AutoRollback:        true,
	})
	if err := migrations.MigratePostgres(db.Unsafe().DB, a.cfg.DatabaseName); err != nil {
		db.Close()
		return err
	}

	a.db = db
	a.health.AddCheck("database", db.PingContext, true)
	return nil
}

func (a *app) stopDatabase(context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *app) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.health.AddCheck("redis", client.Ping, false)
	return nil
}

func (a *app) stopRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *app) startKafka(context.Context) error {
	cfg := kafka.ParseConfig(a.cfg.KafkaBrokers, a.cfg.KafkaJobTopic)
	if !cfg.Enabled() {
		a.logger.Info("No Kafka brokers configured, batch job events are disabled")
		return nil
	}
	a.producer = kafka.NewProducer(cfg, a.logger)
	return nil
}

func (a *app) stopKafka(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *app) startServices(context.Context) error {
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	g := grid.Default()
	if a.cfg.GridPointsFile != "" {
		if g, err = grid.Load(a.cfg.GridPointsFile); err != nil {
			return err
		}
	}

	var publisher batch.EventPublisher
	if a.producer != nil {
		publisher = a.producer
	}

	a.raw = repositories.NewRawPlaceRepository(a.db, a.logger)
	venues := repositories.NewVenueRepository(a.db, a.logger)
	a.tracker = batch.NewTracker(repositories.NewBatchJobRepository(a.db, a.logger), publisher, a.logger)

	retry := places.DefaultRetryPolicy()
	if a.cfg.PlacesMaxAttempts > 0 {
		retry.MaxAttempts = a.cfg.PlacesMaxAttempts
	}
	placesClient := places.NewClient(places.Config{
		BaseURL:        a.cfg.PlacesBaseURL,
		APIKey:         a.cfg.PlacesAPIKey,
		LanguageCode:   a.cfg.PlacesLanguageCode,
		IncludedTypes:  a.cfg.PlacesIncludedTypes,
		MaxResultCount: a.cfg.PlacesMaxResultCount,
		Timeout:        a.cfg.PlacesTimeout,
		Retry:          retry,
	}, a.logger)
	if a.cfg.PlacesAPIKey == "" {
		a.logger.Warn("PLACES_API_KEY is not set, collection runs will fail")
	}

	a.collector = collector.NewCollector(placesClient, a.raw, a.tracker, g, collector.NewStatus(), collector.Config{
		Radius:       a.cfg.CollectorRadius,
		Concurrency:  a.cfg.CollectorConcurrency,
		RequestDelay: a.cfg.CollectorRequestDelay,
	}, a.logger)

	a.processor = processor.NewProcessor(a.raw, venues, a.tracker, processor.Config{
		PageSize:  a.cfg.ProcessorPageSize,
		PageDelay: a.cfg.ProcessorPageDelay,
	}, a.logger)

	a.engine = search.NewEngine(venues, redis.NewCache(a.redis, ""), search.Config{
		CacheTTL: a.cfg.SearchCacheTTL,
		Location: loc,
	}, a.logger)

	return nil
}

func (a *app) startScheduler(ctx context.Context) error {
	if !a.cfg.SchedulerEnabled {
		a.logger.Info("Scheduler is disabled")
		return nil
	}

	tasks := scheduler.Tasks(a.tracker, a.collector, a.processor, scheduler.Intervals{
		Collect:      a.cfg.SchedulerCollectInterval,
		Process:      a.cfg.SchedulerProcessInterval,
		RetryFailed:  a.cfg.SchedulerRetryFailedInterval,
		Cleanup:      a.cfg.SchedulerCleanupInterval,
		Gauges:       a.cfg.SchedulerGaugesInterval,
		StuckTimeout: a.cfg.BatchStuckTimeout,
		RetryWindow:  batch.DefaultStatisticsWindow,
	})
	a.scheduler = scheduler.NewScheduler(tasks, redis.NewLocker(a.redis, ""), scheduler.Config{
		PollInterval: a.cfg.SchedulerPollInterval,
		LockTTL:      a.cfg.SchedulerLockTTL,
	}, a.logger)

	return a.scheduler.Start(context.WithoutCancel(ctx))
}

func (a *app) stopScheduler(ctx context.Context) error {
	if a.scheduler == nil {
		return nil
	}
	return a.scheduler.Stop(ctx)
}

func (a *app) startHTTP(context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	searchLimit := middleware.RateLimit(redis.NewRateLimiter(a.redis, ""), middleware.RateLimitConfig{
		Name:   "search",
		Limit:  int64(a.cfg.SearchRateLimit),
		Window: a.cfg.SearchRateWindow,
	}, a.logger)
	handlers.NewVenueHandler(a.engine, a.logger).RegisterRoutes(api, searchLimit)
	handlers.NewBatchHandler(a.collector, a.processor, a.tracker, a.raw, a.cfg.BatchStuckTimeout, handlers.Background, a.logger).RegisterRoutes(api)

	e.Server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}
	a.echo = e

	go func() {
		if err := e.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (a *app) stopHTTP(ctx context.Context) error {
	if a.echo == nil {
		return nil
	}
	return a.echo.Shutdown(ctx)
}
