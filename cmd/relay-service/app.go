package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"

	"otprelay/internal/api"
	"otprelay/internal/config"
	"otprelay/internal/config_handler"
	"otprelay/internal/constants"
	"otprelay/internal/deduplication"
	"otprelay/internal/eventbus"
	"otprelay/internal/forwarding"
	"otprelay/internal/journal"
	"otprelay/internal/logger"
	"otprelay/internal/notify"
	"otprelay/internal/pipeline"
	"otprelay/internal/source"
	"otprelay/internal/state"
	"otprelay/pkg/bootstrap"
	"otprelay/pkg/cel"
	"otprelay/pkg/health"
	"otprelay/pkg/logging"
	"otprelay/pkg/metrics"
	"otprelay/pkg/migrations"
	"otprelay/pkg/tracing"
)

const (
	serviceName        = "otp-relay"
	cacheMetricsPeriod = 15 * time.Second
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	tracerProvider *tracing.TracerProvider

	redis       *redis.Client
	postgres    *sql.DB
	mongoClient *mongo.Client
	store       state.Store

	live          *config.Live
	configHandler *config_handler.Handler
	publisher     *config_handler.Publisher

	dedup    *deduplication.Service
	recorder *notify.Recorder
	bus      eventbus.Bus
	journal  journal.Journal
	pipeline *pipeline.Pipeline

	broadcast *source.BroadcastReceiver
	listener  *source.NotificationListener
	inbox     *source.PostgresInbox
	feed      *source.PQChangeFeed
	observer  *source.Observer
	poller    *source.Poller

	health *health.CheckerRegistry
	server *api.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(ctx, a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterRelayMetrics()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initState(ctx); err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}

	a.initLiveConfig()

	if err := a.initDedup(ctx); err != nil {
		return fmt.Errorf("failed to initialize dedup cache: %w", err)
	}

	if err := a.InitBroker(serviceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	if a.Config.Broker.Type == constants.BackendKafka {
		a.health.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
		if topic := a.Config.Broker.Kafka.ConfigUpdateTopic; topic != "" {
			a.publisher = config_handler.NewPublisher(a.Producer, topic)
		}
	}

	a.initPipeline()

	if err := a.initSources(ctx); err != nil {
		return fmt.Errorf("failed to initialize sources: %w", err)
	}

	a.initServer(ctx)
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	needsRedis := a.Config.Deduplication.Backend == constants.BackendRedis || a.Config.State.Backend == constants.BackendRedis
	if needsRedis {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redis = rdb
		if rdb != nil {
			a.health.Register(health.NewRedisChecker(rdb))
		}
	}

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.postgres = db
	if db != nil {
		a.health.Register(health.NewPostgreSQLChecker(db))
		if a.Config.Database.RunMigrations {
			if err := migrations.RunPostgres(db); err != nil {
				return err
			}
			a.Logger.Infow("PostgreSQL migrations applied")
		}
	}

	if a.Config.Journal.Enabled {
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			a.Logger.WarnwCtx(ctx, "MongoDB connection failed, journal kept in memory", "error", err)
			return nil
		}
		a.mongoClient = client
		if client != nil {
			a.health.Register(health.NewMongoDBChecker(client))
		}
	}
	return nil
}

func (a *App) initState(ctx context.Context) error {
	store, err := state.New(ctx, a.Config.State.Backend, state.Deps{
		Redis:    a.redis,
		Postgres: a.postgres,
		SQLite:   a.Config.Database.SQLite,
	})
	if err != nil {
		return err
	}
	a.store = store

	if sqlite, ok := store.(*state.SQLiteStore); ok {
		a.health.Register(health.NewSQLiteChecker(sqlite))
	}
	a.Logger.Infow("State store ready", "backend", a.Config.State.Backend)
	return nil
}

func (a *App) initLiveConfig() {
	a.live = config.NewLive(a.Config)
	a.configHandler = config_handler.NewHandler(a.live, a.Logger)
	config.Watch(config_handler.FileReloader(a.live, a.Logger))
}

func (a *App) initDedup(ctx context.Context) error {
	dcfg := a.Config.Deduplication

	var cache deduplication.Cache
	switch dcfg.Backend {
	case constants.BackendRedis:
		if a.redis == nil {
			return fmt.Errorf("dedup backend redis requires a redis connection")
		}
		cache = deduplication.NewRedisCache(a.redis, constants.CacheKeyPrefixDedup, dcfg.Window)
	default:
		cache = deduplication.NewMemoryCache(dcfg.Window, nil)
	}

	if a.Config.CircuitBreaker.Enabled && dcfg.Backend == constants.BackendRedis {
		cbCache := deduplication.NewCircuitBreakerCache(cache, a.Config.CircuitBreaker)
		a.health.Register(health.NewBreakerChecker("dedup-cache", cbCache))
		cache = cbCache
		a.Logger.Infow("Circuit breaker enabled for dedup cache")
	}

	a.dedup = deduplication.NewService(cache, deduplication.Config{
		Window:       dcfg.Window,
		Bucket:       dcfg.Bucket,
		OnCacheError: dcfg.OnCacheError,
	}, nil, a.Logger)

	if dcfg.SnapshotOnShutdown {
		restored, err := a.dedup.LoadSnapshot(ctx, a.store)
		if err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to restore dedup snapshot", "error", err)
		} else if restored > 0 {
			a.Logger.InfowCtx(ctx, "Dedup snapshot restored", "entries", restored)
		}
	}
	return nil
}

func (a *App) initPipeline() {
	a.recorder = notify.NewRecorder(a.Logger, constants.DefaultRecentNotices)
	a.bus = eventbus.New()

	if a.mongoClient != nil {
		dbName := a.Config.Database.MongoDB.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		db := a.mongoClient.Database(dbName)
		if err := migrations.EnsureJournalCollection(context.Background(), db, constants.JournalCollectionName, constants.DefaultJournalTTL); err != nil {
			a.Logger.Warnw("Failed to ensure journal indexes", "error", err)
		}
		a.journal = journal.NewMongoJournal(db)
	} else {
		a.journal = journal.NewMemoryJournal()
	}

	var webhook forwarding.WebhookPoster = forwarding.NewWebhookClient()
	var mailer forwarding.MailSender = forwarding.NewMailer()
	if a.Config.CircuitBreaker.Enabled {
		cbWebhook := forwarding.NewCircuitBreakerPoster(webhook, forwarding.BreakerConfig("webhook", a.Config.CircuitBreaker))
		cbMailer := forwarding.NewCircuitBreakerMailer(mailer, forwarding.BreakerConfig("smtp", a.Config.CircuitBreaker))
		a.health.Register(health.NewBreakerChecker("webhook", cbWebhook))
		a.health.Register(health.NewBreakerChecker("smtp", cbMailer))
		webhook, mailer = cbWebhook, cbMailer
	}

	dispatcher := forwarding.NewDispatcher(forwarding.Deps{
		Live:        a.live,
		Webhook:     webhook,
		Mailer:      mailer,
		Releaser:    a.dedup,
		LastRelayed: state.NewLastRelayed(a.store),
		Bus:         a.bus,
		Journal:     a.journal,
		Notifier:    a.recorder,
		Logger:      a.Logger,
	})

	a.pipeline = pipeline.New(a.live, a.dedup, dispatcher, a.recorder, a.Logger)
}

func (a *App) initSources(ctx context.Context) error {
	srcCfg := a.Config.Sources

	if srcCfg.Broadcast.Enabled {
		a.broadcast = source.NewBroadcastReceiver(a.Producer, a.inboundTopic(), srcCfg.Broadcast.HandoffTimeout, a.Logger)
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create rule evaluator: %w", err)
	}
	a.listener = source.NewNotificationListener(a.live, a.pipeline.Intake, evaluator, nil, a.Logger)

	if a.postgres == nil {
		return nil
	}
	a.inbox = source.NewPostgresInbox(a.postgres)

	if !srcCfg.Observer.Enabled && !srcCfg.Poll.Enabled {
		return nil
	}

	watermark := source.NewWatermark(a.store)
	if err := watermark.Load(ctx); err != nil {
		return fmt.Errorf("failed to load watermark: %w", err)
	}
	scanner := source.NewScanner(a.inbox, watermark, a.pipeline.Intake, source.ScannerConfig{
		BatchSize:   srcCfg.Inbox.BatchSize,
		SkipBacklog: srcCfg.Inbox.SkipBacklog,
	}, a.Logger)

	if srcCfg.Observer.Enabled {
		feed, err := source.NewPQChangeFeed(a.dbConnector.PostgresDSN(), srcCfg.Observer.Channel, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", srcCfg.Observer.Channel, err)
		}
		a.feed = feed
		a.observer = source.NewObserver(feed, scanner, a.recorder, a.Logger)
	}
	if srcCfg.Poll.Enabled {
		a.poller = source.NewPoller(scanner, srcCfg.Poll.Interval, a.recorder, a.Logger)
	}
	return nil
}

func (a *App) inboundTopic() string {
	if topic := a.Config.Broker.Kafka.InputTopic; topic != "" {
		return topic
	}
	return constants.DefaultInboundTopic
}

func (a *App) initServer(ctx context.Context) {
	deps := api.Deps{
		Pipeline:    a.pipeline,
		LastRelayed: state.NewLastRelayed(a.store),
		Diagnostics: a.recorder,
		Journal:     a.journal,
		Live:        a.live,
		Config:      a.configHandler,
		Logger:      a.Logger,
	}
	// Typed nils would defeat the handler's nil checks.
	if a.broadcast != nil {
		deps.SMS = a.broadcast
	}
	if a.listener != nil {
		deps.Notifications = a.listener
	}
	if a.inbox != nil {
		deps.Inbox = a.inbox
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}

	router := api.NewRouter(ctx, api.NewHandler(deps), api.RouterOptions{
		ServiceName: serviceName,
		Tracing:     a.Config.Tracing.Enabled,
		RateLimit:   a.Config.Server.RateLimit,
		Health:      a.health,
		Logger:      a.Logger,
	})
	a.server = api.NewServer(a.Config.Server, router, a.Logger)
}

// Run starts every producer and the HTTP server, and shuts down once ctx ends
// or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gCtx)
	})

	if a.broadcast != nil {
		g.Go(func() error {
			consumeCtx := logging.WithServiceName(gCtx, serviceName)
			return ignoreCanceled(a.broadcast.Consume(consumeCtx, a.Consumer, a.pipeline.Intake))
		})
	}

	if a.publisher != nil {
		topic := a.Config.Broker.Kafka.ConfigUpdateTopic
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting config update event consumer", "topic", topic)
			return ignoreCanceled(a.ConfigConsumer.Consume(gCtx, topic, a.configHandler.HandleConfigUpdateEvent))
		})
	}

	if a.observer != nil {
		g.Go(func() error {
			return a.observer.Run(gCtx)
		})
	}
	if a.poller != nil {
		g.Go(func() error {
			return a.poller.Run(gCtx)
		})
	}

	g.Go(func() error {
		a.dedup.RunCacheMetrics(gCtx, cacheMetricsPeriod)
		return nil
	})

	g.Go(func() error {
		a.logRelayedEvents(gCtx)
		return nil
	})

	runErr := g.Wait()
	if err := a.Shutdown(context.Background()); err != nil {
		a.Logger.Errorw("Shutdown finished with errors", "error", err)
	}
	return runErr
}

// logRelayedEvents is the in-process subscriber of the relay event bus.
func (a *App) logRelayedEvents(ctx context.Context) {
	events, unsubscribe := a.bus.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if relayed, ok := ev.Data.(forwarding.RelayedEvent); ok {
				a.Logger.Debugw("OTP relayed event", "type", ev.Type, "sender_key", relayed.SenderKey, "at", relayed.Timestamp)
			}
		}
	}
}

// Shutdown runs after producers have stopped: it drains in-flight deliveries,
// persists the dedup snapshot and closes connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down OTP relay")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.pipeline != nil {
			a.pipeline.Stop()
		}

		if a.dedup != nil && a.store != nil && a.Config.Deduplication.SnapshotOnShutdown {
			if err := a.dedup.SaveSnapshot(ctx, a.store); err != nil {
				errs = append(errs, fmt.Errorf("dedup snapshot error: %w", err))
			}
		}

		if a.feed != nil {
			if err := a.feed.Close(); err != nil {
				errs = append(errs, fmt.Errorf("change feed close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("state store close error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.postgres, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
