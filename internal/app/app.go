// Package app wires configuration, infrastructure and services into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	catalogrepo "github.com/Ramsey-B/fern/internal/repositories/catalog"
	listingrepo "github.com/Ramsey-B/fern/internal/repositories/listing"
	reviewrepo "github.com/Ramsey-B/fern/internal/repositories/review"
	"github.com/Ramsey-B/fern/pkg/artifact"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/embedding"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/reranker"
	"github.com/Ramsey-B/fern/pkg/reranker/gbdt"
	"github.com/Ramsey-B/fern/pkg/review"
	catalogroutes "github.com/Ramsey-B/fern/pkg/routes/catalog"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	matchingroutes "github.com/Ramsey-B/fern/pkg/routes/matching"
	reviewroutes "github.com/Ramsey-B/fern/pkg/routes/review"
	"github.com/Ramsey-B/fern/pkg/routes/statistics"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const (
	depTracing  = "tracing"
	depDatabase = "database"
	depRedis    = "redis"
	depKafka    = "kafka"
	depEncoder  = "encoder"
	depServices = "services"
	depHTTP     = "http"
)

type App struct {
	Config *config.Config
	Logger ectologger.Logger

	DB       database.DB
	Redis    *redis.Client
	Producer *kafka.Producer
	Embedder embedding.Embedder

	Catalog  *catalogrepo.Repository
	Listings *listingrepo.Repository
	Reviews  *reviewrepo.Repository
	Queue    *review.Queue
	Pipeline *matching.Pipeline

	startup *startup.Startup
	health  *health.Checker
	server  *http.Server
}

// NewLogger builds the zap backed process logger.
func NewLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger.With(zap.String("app", cfg.AppName)), nil), nil
}

func New(cfg *config.Config, logger ectologger.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
}

// Start brings up every dependency the matching services need, plus the HTTP server when serve
// is set.
func (a *App) Start(ctx context.Context, serve bool) error {
	a.startup.AddDependency(a.tracingDependency())
	a.startup.AddDependency(a.databaseDependency(a.Config.DatabaseMigrateOnStart))
	a.startup.AddDependency(a.encoderDependency())

	requires := []string{depDatabase, depEncoder}
	if a.Config.RedisEnabled {
		a.startup.AddDependency(a.redisDependency())
		requires = append(requires, depRedis)
	}
	if a.Config.KafkaEnabled {
		a.startup.AddDependency(a.kafkaDependency())
		requires = append(requires, depKafka)
	}
	a.startup.AddDependency(startup.Func{
		Name:     depServices,
		Requires: requires,
		OnStart:  a.buildServices,
	})
	if serve {
		a.startup.AddDependency(a.httpDependency())
	}

	return a.startup.Start(ctx)
}

// Migrate connects to the database and applies migrations without starting anything else.
func (a *App) Migrate(ctx context.Context) error {
	a.startup.AddDependency(a.databaseDependency(true))
	return a.startup.Start(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	if a.health != nil {
		a.health.SetReady(false)
	}
	return a.startup.Stop(ctx)
}

func (a *App) tracingDependency() startup.Func {
	var shutdown func(context.Context) error
	return startup.Func{
		Name: depTracing,
		OnStart: func(ctx context.Context) (err error) {
			shutdown, err = tracing.Setup(ctx, tracing.Config{
				ServiceName: a.Config.AppName,
				Exporter:    a.Config.TracingExporter,
				OTLP: exporters.OTLPConfig{
					Endpoint: a.Config.TracingOTLPEndpoint,
					Protocol: a.Config.TracingOTLPProtocol,
					Insecure: a.Config.TracingOTLPInsecure,
					Timeout:  a.Config.TracingOTLPTimeout,
				},
			})
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	}
}

func (a *App) databaseDependency(migrate bool) startup.Func {
	return startup.Func{
		Name: depDatabase,
		OnStart: func(ctx context.Context) error {
			db, err := database.Connect(ctx, database.ConnectionConfig{
				Driver:          a.Config.DatabaseDriver,
				Host:            a.Config.DatabaseHost,
				Port:            a.Config.DatabasePort,
				User:            a.Config.DatabaseUserName,
				Password:        a.Config.DatabasePassword,
				Name:            a.Config.DatabaseName,
				SSLMode:         a.Config.DatabaseSSLMode,
				MaxOpenConns:    a.Config.DatabaseMaxOpenConns,
				MaxIdleConns:    a.Config.DatabaseMaxIdleConns,
				ConnMaxLifetime: a.Config.DatabaseConnMaxLifetime,
			}, a.Logger)
			if err != nil {
				return err
			}

			if migrate {
				migrations := database.NewMigrationService(a.Logger, &database.MigrationConfig{
					MigrationFolderPath: a.Config.DatabaseMigrationFolderPath,
					Version:             uint(a.Config.DatabaseMigrationVersion),
					Force:               a.Config.DatabaseMigrationForce,
					AutoRollback:        a.Config.DatabaseMigrationAutoRollback,
				})
				if err := migrations.MigratePostgres(db, a.Config.DatabaseName); err != nil {
					_ = db.Close()
					return err
				}
			}

			a.DB = db
			return nil
		},
		OnStop: func(context.Context) error {
			if a.DB == nil {
				return nil
			}
			return a.DB.Close()
		},
	}
}

func (a *App) redisDependency() startup.Func {
	return startup.Func{
		Name: depRedis,
		OnStart: func(ctx context.Context) error {
			client, err := redis.NewClient(ctx, redis.Config{
				Host:     a.Config.RedisHost,
				Port:     a.Config.RedisPort,
				Password: a.Config.RedisPassword,
				DB:       a.Config.RedisDB,
			}, a.Logger)
			if err != nil {
				return err
			}
			a.Redis = client
			return nil
		},
		OnStop: func(context.Context) error {
			if a.Redis == nil {
				return nil
			}
			return a.Redis.Close()
		},
	}
}

func (a *App) kafkaDependency() startup.Func {
	return startup.Func{
		Name: depKafka,
		OnStart: func(context.Context) error {
			a.Producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      a.Config.KafkaBrokers,
				Topic:        a.Config.KafkaOutputTopic,
				BatchSize:    a.Config.KafkaBatchSize,
				BatchTimeout: time.Duration(a.Config.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: a.Config.KafkaRequiredAcks,
				Compression:  a.Config.KafkaCompression,
			}, a.Logger)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.Producer == nil {
				return nil
			}
			return a.Producer.Close()
		},
	}
}

func (a *App) encoderDependency() startup.Func {
	return startup.Func{
		Name: depEncoder,
		OnStart: func(context.Context) error {
			embedder, err := embedding.New(embedding.Config{
				Backend:       a.Config.EmbeddingBackend,
				ModelPath:     a.Config.EncoderModelPath,
				TokenizerPath: a.Config.EncoderTokenizerPath,
				LibraryPath:   a.Config.OnnxRuntimeLibraryPath,
				MaxLength:     a.Config.EncoderMaxLength,
				BatchSize:     a.Config.EncoderBatchSize,
				Dimension:     a.Config.EmbeddingDimension,
				CacheEnabled:  a.Config.EmbeddingCacheEnabled,
			}, a.Logger)
			if err != nil {
				return err
			}
			a.Embedder = embedder
			return nil
		},
		OnStop: func(context.Context) error {
			if a.Embedder == nil {
				return nil
			}
			return a.Embedder.Close()
		},
	}
}

func (a *App) artifactStore() (artifact.Store, error) {
	switch a.Config.ArtifactStore {
	case artifact.StoreRedis:
		if a.Redis == nil {
			return nil, errors.New("ARTIFACT_STORE=redis requires REDIS_ENABLED=true")
		}
		return artifact.NewRedisStore(a.Redis, a.Config.ArtifactRedisKey, a.Config.ArtifactTTL), nil
	case artifact.StoreFile, "":
		return artifact.NewFileStore(a.Config.ArtifactPath), nil
	default:
		return nil, fmt.Errorf("unknown ARTIFACT_STORE %q", a.Config.ArtifactStore)
	}
}

func (a *App) rerankerParams() gbdt.Params {
	params := gbdt.DefaultParams()
	params.NumRounds = a.Config.RerankerRounds
	params.LearningRate = a.Config.RerankerLearningRate
	params.ValidationFraction = a.Config.RerankerValidationFrac
	params.Seed = a.Config.RerankerSeed
	return params
}

func (a *App) buildServices(context.Context) error {
	a.Catalog = catalogrepo.NewRepository(a.DB, a.Logger)
	a.Listings = listingrepo.NewRepository(a.DB, a.Logger)
	a.Reviews = reviewrepo.NewRepository(a.DB, a.Logger)

	var emitter events.Emitter = events.NoopEmitter{}
	if a.Producer != nil {
		emitter = events.NewEmitter(a.Producer, a.Logger)
	}

	var locker matching.Locker = &matching.LocalLocker{}
	if a.Redis != nil {
		locker = redis.NewLocker(a.Redis, "fern:lock:")
	}

	store, err := a.artifactStore()
	if err != nil {
		return err
	}

	var scorer reranker.Scorer
	if a.Config.RerankerModelPath != "" {
		lgb, err := reranker.LoadLightGBM(a.Config.RerankerModelPath)
		if err != nil {
			return err
		}
		scorer = lgb
		a.Logger.WithField("path", a.Config.RerankerModelPath).Info("Loaded external reranker model")
	}

	a.Queue = review.NewQueue(a.Reviews, emitter, a.Logger)
	a.Pipeline = matching.NewPipeline(matching.Dependencies{
		Catalog:   a.Catalog,
		Listings:  a.Listings,
		Links:     a.Listings,
		Writer:    a.Reviews,
		Embedder:  a.Embedder,
		Artifacts: store,
		Locker:    locker,
		Scorer:    scorer,
		Emitter:   emitter,
	}, matching.Config{
		K:       a.Config.CandidateCount,
		Workers: a.Config.MatchWorkers,
		Params:  a.rerankerParams(),
		LockTTL: a.Config.MatchLockTTL,
	}, a.Logger)
	return nil
}

// NewRouter builds the echo instance with middleware and every route registered.
func (a *App) NewRouter() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.Logger)

	e.Use(otelecho.Middleware(a.Config.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.Logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.Config.AllowOrigins,
		AllowMethods: a.Config.AllowMethods,
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, middleware.HeaderOperatorID},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var redisPing health.Pinger
	if a.Redis != nil {
		redisPing = health.PingFunc(a.Redis.Ping)
	}
	a.health = health.NewChecker(a.DB, redisPing, a.Config.Version)

	api := e.Group("/api/v1")
	a.health.RegisterRoutes(api.Group("/health"))
	catalogroutes.NewHandler(a.Catalog, a.Listings).Register(api)
	reviewroutes.NewHandler(a.Queue).Register(api.Group("/review"))
	statistics.NewHandler(a.Queue).Register(api.Group("/statistics"))
	matchingroutes.NewHandler(a.Pipeline).Register(api.Group("/matching"))

	return e
}

func (a *App) httpDependency() startup.Func {
	return startup.Func{
		Name:     depHTTP,
		Requires: []string{depServices},
		OnStart: func(context.Context) error {
			a.server = &http.Server{
				Addr:              fmt.Sprintf(":%d", a.Config.Port),
				Handler:           a.NewRouter(),
				ReadTimeout:       time.Duration(a.Config.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(a.Config.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(a.Config.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(a.Config.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    a.Config.MaxHeaderBytes,
			}

			go func() {
				a.Logger.Infof("HTTP server listening on %s", a.server.Addr)
				if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.Logger.WithError(err).Error("HTTP server stopped")
				}
			}()
			a.health.SetReady(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if a.server == nil {
				return nil
			}
			return a.server.Shutdown(ctx)
		},
	}
}
