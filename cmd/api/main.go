package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/locallink/locallink-backend/api/routes"
	"github.com/locallink/locallink-backend/internal/analytics"
	"github.com/locallink/locallink-backend/internal/assistant"
	"github.com/locallink/locallink-backend/internal/notifications"
	"github.com/locallink/locallink-backend/internal/offers"
	"github.com/locallink/locallink-backend/internal/orders"
	"github.com/locallink/locallink-backend/internal/requests"
	"github.com/locallink/locallink-backend/internal/updates"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/auth/session"
	"github.com/locallink/locallink-backend/pkg/config"
	"github.com/locallink/locallink-backend/pkg/db"
	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/env"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/metrics"
	"github.com/locallink/locallink-backend/pkg/migrate"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/pubsub"
	"github.com/locallink/locallink-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		DebugSample: cfg.App.LogDebugSample,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	store, storePinger, runStore, closeStore, err := openStore(ctx, cfg, logg, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap document store", err)
		os.Exit(1)
	}
	defer closeStore()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	var publisher outbox.Publisher
	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer psClient.Close()
		eventPublisher, err := pubsub.NewEventPublisher(psClient)
		if err != nil {
			logg.Error(ctx, "failed to create event publisher", err)
			os.Exit(1)
		}
		defer eventPublisher.Stop()
		publisher = eventPublisher
	}
	events := outbox.NewService(publisher, logg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	marketMetrics := metrics.NewMarketMetrics(registry)

	notificationsService, err := notifications.NewService(
		notifications.NewRepository(redisClient, redisClient, cfg.Market.NotificationLimit),
	)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}
	usersService, err := users.NewService(users.ServiceParams{
		Store:          store,
		Sessions:       sessionManager,
		Notifications:  notificationsService,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Admin:          cfg.Admin,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create users service", err)
		os.Exit(1)
	}
	requestsService, err := requests.NewService(store, events, logg)
	if err != nil {
		logg.Error(ctx, "failed to create requests service", err)
		os.Exit(1)
	}
	offersService, err := offers.NewService(store, events, logg)
	if err != nil {
		logg.Error(ctx, "failed to create offers service", err)
		os.Exit(1)
	}
	ordersService, err := orders.NewService(store, events, marketMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}
	updatesService, err := updates.NewService(store, cfg.Market.UpdateTTL, cfg.Market.UpdatesLimit, logg)
	if err != nil {
		logg.Error(ctx, "failed to create updates service", err)
		os.Exit(1)
	}
	analyticsService, err := analytics.NewService(store, cfg.Market.DeadLeadGrace, logg)
	if err != nil {
		logg.Error(ctx, "failed to create analytics service", err)
		os.Exit(1)
	}
	assistantClient, err := assistant.NewClient(cfg.Assistant, logg)
	if err != nil {
		logg.Error(ctx, "failed to create assistant client", err)
		os.Exit(1)
	}

	addr := ":" + env.Port(cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": env.InstanceID(),
	})

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:        cfg,
			Logger:        logg,
			Store:         store,
			StorePinger:   storePinger,
			Redis:         redisClient,
			Sessions:      sessionManager,
			Users:         usersService,
			Requests:      requestsService,
			Offers:        offersService,
			Orders:        ordersService,
			Updates:       updatesService,
			Analytics:     analyticsService,
			Notifications: notificationsService,
			Assistant:     assistantClient,
			MarketMetrics: marketMetrics,
			Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(gctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if runStore != nil {
		g.Go(func() error {
			return runStore(gctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shutting down gracefully")
}

// openStore builds the document store selected by configuration. The memory
// store keeps everything in this process; the SQL store shares state with
// other instances and relays change notifications over Redis.
func openStore(ctx context.Context, cfg *config.Config, logg *logger.Logger, redisClient *redis.Client) (docstore.Store, redis.Pinger, func(context.Context) error, func(), error) {
	if cfg.FeatureFlags.MemoryStore {
		logg.Warn(ctx, "using in-memory document store; state is lost on restart")
		return docstore.NewMemoryStore(logg), nil, nil, func() {}, nil
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	closeDB := func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		closeDB()
		return nil, nil, nil, nil, err
	}
	feed, err := docstore.NewRedisFeed(redisClient, cfg.Store.ChangeChannel, env.InstanceID())
	if err != nil {
		closeDB()
		return nil, nil, nil, nil, err
	}
	store, err := docstore.NewSQLStore(dbClient, docstore.SQLOptions{
		Feed:           feed,
		WriteRetries:   cfg.Store.WriteRetries,
		ResyncInterval: cfg.Store.ResyncInterval,
		Logger:         logg,
	})
	if err != nil {
		closeDB()
		return nil, nil, nil, nil, err
	}
	return store, dbClient, store.Run, closeDB, nil
}
