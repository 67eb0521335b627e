package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-sales/internal/cache"
	"github.com/noah-isme/toko-sales/internal/config"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/events"
	"github.com/noah-isme/toko-sales/internal/kpi"
	"github.com/noah-isme/toko-sales/internal/lock"
	"github.com/noah-isme/toko-sales/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel, obs.FileSink{
		Path:       cfg.Obs.LogFile,
		MaxSizeMB:  cfg.Obs.LogMaxSizeMB,
		MaxBackups: cfg.Obs.LogMaxBackups,
		MaxAgeDays: cfg.Obs.LogMaxAgeDays,
	}).With().Str("env", cfg.AppEnv).Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool := mustInitDatabase(initCtx, cfg, logger)
	redisClient := mustInitRedis(initCtx, cfg, logger)
	cancel()
	defer pool.Close()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	store := db.NewStore(pool)
	kpiSvc := &kpi.Service{
		Store:  kpi.NewStore(store),
		Locker: lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		Cache:  cache.NewJSON(redisClient, cfg.KPI.DashboardCacheTTL),
		Events: &events.Bus{
			Store:     store,
			Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("svc", "events").Logger()}},
		},
		Config: kpi.Config{
			BaseCommissionPercent: cfg.KPI.BaseCommissionPercent,
			MinYear:               cfg.KPI.MinYear,
			MaxYear:               cfg.KPI.MaxYear,
			Concurrency:           cfg.KPI.Concurrency,
			LockTTL:               cfg.KPI.LockTTL,
		},
		Logger: logger.With().Str("svc", "kpi").Logger(),
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis uri")
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{kpi.QueueName: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	mux := asynq.NewServeMux()
	kpiSvc.Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	task, err := kpi.ScheduledCalculateTask()
	if err != nil {
		logger.Fatal().Err(err).Msg("build scheduled kpi task")
	}
	entryID, err := scheduler.Register(cfg.KPI.ScheduleCron, task)
	if err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.KPI.ScheduleCron).Msg("register kpi schedule")
	}
	logger.Info().Str("entry", entryID).Str("cron", cfg.KPI.ScheduleCron).Msg("kpi schedule registered")

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		logger.Fatal().Err(err).Msg("start scheduler")
	}

	logger.Info().Msg("worker started")
	<-ctx.Done()

	logger.Info().Msg("worker shutting down")
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
