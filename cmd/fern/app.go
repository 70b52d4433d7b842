package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/camperaddon"
	"github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/internal/repositories/image"
	"github.com/Ramsey-B/fern/internal/repositories/imagelink"
	"github.com/Ramsey-B/fern/internal/repositories/partnermapping"
	"github.com/Ramsey-B/fern/internal/repositories/station"
	"github.com/Ramsey-B/fern/internal/repositories/syncrun"
	"github.com/Ramsey-B/fern/pkg/availability"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/images"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/partners"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	imageroutes "github.com/Ramsey-B/fern/pkg/routes/images"
	importroutes "github.com/Ramsey-B/fern/pkg/routes/imports"
	stationroutes "github.com/Ramsey-B/fern/pkg/routes/stations"
	"github.com/Ramsey-B/fern/pkg/startup"
)

// app owns every long-lived dependency. Each is created by its startup step and handed to the
// steps that depend on it.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db       *database.DatabaseInstance
	redis    *redis.Client
	producer *kafka.Producer
	server   *http.Server
	health   *health.Checker

	serverErr chan error
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:       cfg,
		logger:    logger,
		health:    health.NewChecker(cfg.Version),
		serverErr: make(chan error, 1),
	}
}

func (a *app) register(s *startup.Startup) {
	s.AddDependency(&startup.Func{Name: "postgres", OnStart: a.startPostgres, OnStop: a.stopPostgres})
	s.AddDependency(&startup.Func{Name: "migrations", Requires: []string{"postgres"}, OnStart: a.migrate})
	s.AddDependency(&startup.Func{Name: "redis", OnStart: a.startRedis, OnStop: a.stopRedis})
	s.AddDependency(&startup.Func{Name: "kafka", OnStart: a.startKafka, OnStop: a.stopKafka})
	s.AddDependency(&startup.Func{
		Name:     "http",
		Requires: []string{"migrations", "redis", "kafka"},
		OnStart:  a.startServer,
		OnStop:   a.stopServer,
	})
}

func (a *app) startPostgres(ctx context.Context) error {
	db, err := database.Connect(ctx, database.Config{
		DSN:             a.cfg.DatabaseDSN(),
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.health.AddCheck("database", db.PingContext)
	return nil
}

func (a *app) stopPostgres(context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *app) migrate(context.Context) error {
	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             a.cfg.DatabaseMigrationVersion,
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.MigratePostgres(a.db.DB.DB, a.cfg.DatabaseName)
}

func (a *app) startRedis(ctx context.Context) error {
	if !a.cfg.RedisEnabled {
		a.logger.Info("Redis disabled, mapping locks are process-local")
		return nil
	}
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
	a.health.AddCheck("redis", client.Ping)
	return nil
}

func (a *app) stopRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *app) startKafka(context.Context) error {
	if !a.cfg.KafkaEnabled {
		a.logger.Info("Kafka disabled, sync events are not published")
		return nil
	}
	a.producer = kafka.NewProducer(kafka.ParseConfig(a.cfg.KafkaBrokers, a.cfg.KafkaSyncTopic), a.logger)
	return nil
}

func (a *app) stopKafka(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *app) finderConfig() availability.Config {
	weekday, _ := a.cfg.TargetWeekday()
	return availability.Config{
		TargetWeekday: weekday,
		WindowDays:    a.cfg.AvailabilityWindowDays,
		MaxAttempts:   a.cfg.AvailabilityMaxAttempts,
		ProbeTimeout:  a.cfg.AvailabilityProbeTimeout,
	}
}

func (a *app) newImporter() (*importer.Importer, *images.Service, error) {
	var locker identity.Locker = identity.NewKeyedMutex()
	if a.redis != nil {
		locker = identity.NewRedisLocker(redis.NewLocker(a.redis, redis.DefaultLockPrefix, a.logger), a.cfg.RedisLockTTL, a.cfg.RedisLockWait, a.logger)
	}

	client := httpclient.NewClient(httpclient.Config{
		Timeout:         a.cfg.PartnerRequestTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}, a.logger)
	eval := expressions.NewEvaluator()
	mapper := mapping.NewMapper(eval)

	registry, err := partners.Default(partners.Settings{
		AtlasBaseURL:     a.cfg.AtlasBaseURL,
		AtlasAPIKey:      a.cfg.AtlasAPIKey,
		DriftwoodBaseURL: a.cfg.DriftwoodBaseURL,
		DriftwoodAPIKey:  a.cfg.DriftwoodAPIKey,
	}, client, mapper)
	if err != nil {
		return nil, nil, err
	}

	imageService := images.NewService(
		image.NewRepository(a.db, a.logger),
		imagelink.NewRepository(a.db, a.logger),
		a.db,
		images.LocalMedia{URLPrefix: a.cfg.MediaLocalURLPrefix, Root: a.cfg.MediaLocalRoot},
		a.logger,
	)

	deps := importer.Deps{
		DB:       a.db,
		Partners: registry,
		Fetcher:  partners.NewSource(client, eval, a.logger),
		Registry: identity.NewRegistry(partnermapping.NewRepository(a.db, a.logger), locker, a.logger),
		Entities: entity.NewRepository(a.db, a.logger),
		Addons:   camperaddon.NewRepository(a.db, a.logger),
		Images:   imageService,
		Stations: station.NewRepository(a.db, a.logger),
		Runs:     syncrun.NewRepository(a.db, a.logger),
		Mapper:   mapper,
		Logger:   a.logger,
	}
	if a.producer != nil {
		deps.Events = a.producer
	}

	return importer.New(deps, importer.Config{
		RunTimeout: a.cfg.ImportRunTimeout,
		Finder:     a.finderConfig(),
	}), imageService, nil
}

func (a *app) authMiddleware(ctx context.Context) (echo.MiddlewareFunc, error) {
	if !a.cfg.AuthEnabled {
		a.logger.Warn("Authentication disabled, trusting identity headers")
		return middleware.HeaderIdentity(), nil
	}
	verifier, err := middleware.NewOIDCVerifier(ctx, a.cfg.AuthIssuerURL, a.cfg.AuthClientID)
	if err != nil {
		return nil, err
	}
	return middleware.Authentication(a.logger, verifier), nil
}

func (a *app) startServer(ctx context.Context) error {
	runner, imageService, err := a.newImporter()
	if err != nil {
		return err
	}
	auth, err := a.authMiddleware(ctx)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1", auth, middleware.RequireRole(a.logger, a.cfg.AuthAdminRole))
	importroutes.NewHandler(runner, a.logger).Register(api)
	imageroutes.NewHandler(imageService, a.logger).Register(api)
	stationroutes.NewHandler(station.NewRepository(a.db, a.logger), a.logger).Register(api)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	go func() {
		a.serverErr <- a.server.ListenAndServe()
	}()
	return nil
}

func (a *app) stopServer(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
