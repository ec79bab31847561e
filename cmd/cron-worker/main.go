package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/locallink/locallink-backend/internal/cron"
	"github.com/locallink/locallink-backend/internal/orders"
	"github.com/locallink/locallink-backend/pkg/config"
	"github.com/locallink/locallink-backend/pkg/db"
	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/env"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/metrics"
	"github.com/locallink/locallink-backend/pkg/migrate"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/outbox/idempotency"
	"github.com/locallink/locallink-backend/pkg/pubsub"
	"github.com/locallink/locallink-backend/pkg/redis"
)

func main() {
	once := pflag.Bool("once", false, "run a single cron cycle and exit")
	pflag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		DebugSample: cfg.App.LogDebugSample,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

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

	feed, err := docstore.NewRedisFeed(redisClient, cfg.Store.ChangeChannel, env.InstanceID())
	if err != nil {
		logg.Error(ctx, "failed to create change feed", err)
		os.Exit(1)
	}
	store, err := docstore.NewSQLStore(dbClient, docstore.SQLOptions{
		Feed:         feed,
		WriteRetries: cfg.Store.WriteRetries,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create document store", err)
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

	marketMetrics := metrics.NewMarketMetrics(prometheus.DefaultRegisterer)
	ordersService, err := orders.NewService(store, events, marketMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}
	processed, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}

	acceptanceJob, err := cron.NewAcceptanceJob(cron.AcceptanceJobParams{
		Logger:     logg,
		Orders:     ordersService,
		StaleAfter: cfg.Cron.AcceptanceStale,
	})
	if err != nil {
		logg.Error(ctx, "failed to create acceptance job", err)
		os.Exit(1)
	}
	deadLeadJob, err := cron.NewDeadLeadJob(cron.DeadLeadJobParams{
		Logger:      logg,
		Store:       store,
		Outbox:      events,
		Idempotency: processed,
		Grace:       cfg.Market.DeadLeadGrace,
	})
	if err != nil {
		logg.Error(ctx, "failed to create dead-lead job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	jobs := cron.NewRegistry().
		Register(acceptanceJob, 0).
		Register(deadLeadJob, cfg.Cron.DeadLeadEvery)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    env.InstanceID(),
	})

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}
