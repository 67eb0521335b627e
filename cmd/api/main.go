package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-sales/internal/analytics"
	"github.com/noah-isme/toko-sales/internal/auth"
	"github.com/noah-isme/toko-sales/internal/cache"
	"github.com/noah-isme/toko-sales/internal/catalog"
	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/config"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/events"
	"github.com/noah-isme/toko-sales/internal/health"
	"github.com/noah-isme/toko-sales/internal/kpi"
	"github.com/noah-isme/toko-sales/internal/lock"
	"github.com/noah-isme/toko-sales/internal/obs"
	"github.com/noah-isme/toko-sales/internal/order"
	"github.com/noah-isme/toko-sales/internal/promotion"
	"github.com/noah-isme/toko-sales/internal/ratelimit"
	"github.com/noah-isme/toko-sales/internal/security"
	"github.com/noah-isme/toko-sales/internal/user"
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
	}).With().Str("env", cfg.AppEnv).Str("component", "api").Logger()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   cfg.Obs.ServiceName,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.TracingSampleRate,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.DBAutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis uri")
	}
	taskClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	store := db.NewStore(pool)

	kpiSvc := &kpi.Service{
		Store:  kpi.NewStore(store),
		Locker: lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		Cache:  cache.NewJSON(redisClient, cfg.KPI.DashboardCacheTTL),
		Config: kpiConfig(cfg),
		Logger: logger.With().Str("svc", "kpi").Logger(),
	}
	bus := &events.Bus{
		Store: store,
		Scheduler: kpi.PaidOrderScheduler{
			Tasks:  taskClient,
			KPI:    kpiSvc,
			Logger: logger.With().Str("svc", "kpi-scheduler").Logger(),
		},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("svc", "events").Logger()}},
	}
	kpiSvc.Events = bus

	orderSvc := &order.Service{
		Store:  order.NewStore(store),
		Events: bus,
		Config: order.Config{DefaultPageSize: cfg.OrderDefaultPageSize, MaxPageSize: cfg.OrderMaxPageSize},
		Logger: logger.With().Str("svc", "order").Logger(),
	}
	promotionSvc := &promotion.Service{
		Store:  promotion.NewStore(store),
		Logger: logger.With().Str("svc", "promotion").Logger(),
	}
	catalogSvc := &catalog.Service{
		Store:  catalog.NewStore(store),
		Logger: logger.With().Str("svc", "catalog").Logger(),
	}

	analyticsSvc := &analytics.Service{
		Q:            store,
		Cache:        cache.NewJSON(redisClient, cfg.AnalyticsCacheTTL),
		DefaultRange: cfg.AnalyticsRangeDays,
		Logger:       logger.With().Str("svc", "analytics").Logger(),
	}

	orderHandler := &order.Handler{Svc: orderSvc}
	promotionHandler := &promotion.Handler{Svc: promotionSvc}
	kpiHandler := &kpi.Handler{Svc: kpiSvc}
	catalogHandler := &catalog.Handler{Svc: catalogSvc}
	analyticsHandler := &analytics.Handler{Svc: analyticsSvc}

	tokens, err := auth.NewTokens(auth.TokensConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: 30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init token service")
	}
	authMiddleware := auth.Middleware{Tokens: tokens}

	limit, err := ratelimit.NewRedis(redisClient, cfg.RateLimitMutations, "rl:mutations")
	if err != nil {
		logger.Fatal().Err(err).Msg("init rate limiter")
	}
	mutationLimit := ratelimit.Handler{
		Limiter: limit,
		Key:     ratelimit.CallerKey,
		Methods: []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.RouteSpanMiddleware)
	}
	if cfg.Obs.EnablePrometheus {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{HSTSMaxAge: 31536000}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if cfg.Obs.EnablePrometheus {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPassword))
	}

	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"postgres": health.PostgresProbe(pool),
			"redis":    health.RedisProbe(redisClient),
		},
		Timeout: 500 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMiddleware.RequireAuth)
		v.Use(mutationLimit.Middleware)
		v.Use(idem.Middleware)

		v.Route("/orders", func(o chi.Router) {
			o.Use(auth.RequireRole(user.RoleSale, user.RoleAdmin))
			o.Get("/", orderHandler.List)
			o.Post("/", orderHandler.Create)
			o.Get("/{id}", orderHandler.Get)
			o.Patch("/{id}", orderHandler.Update)
			o.Delete("/{id}", orderHandler.Delete)
			o.Post("/{id}/pay", orderHandler.Pay)
		})

		v.With(auth.RequireRole(user.RoleSale)).Get("/kpi/dashboard", kpiHandler.Dashboard)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(auth.RequireRole(user.RoleAdmin))

			admin.Route("/promotions", func(p chi.Router) {
				p.Get("/", promotionHandler.List)
				p.Post("/", promotionHandler.Create)
				p.Get("/{id}", promotionHandler.Get)
				p.Put("/{id}", promotionHandler.Update)
				p.Delete("/{id}", promotionHandler.Delete)
			})

			admin.Route("/kpi", func(k chi.Router) {
				k.Get("/tiers", kpiHandler.ListTiers)
				k.Post("/tiers", kpiHandler.CreateTier)
				k.Put("/tiers/{id}", kpiHandler.UpdateTier)
				k.Delete("/tiers/{id}", kpiHandler.DeleteTier)
				k.Get("/targets", kpiHandler.ListTargets)
				k.Put("/targets", kpiHandler.SetTarget)
				k.Post("/calculate", kpiHandler.Calculate)
				k.Get("/commissions", kpiHandler.Commissions)
			})

			admin.Route("/reports", func(rp chi.Router) {
				rp.Get("/overview", analyticsHandler.Overview)
				rp.Get("/top-products", analyticsHandler.TopProducts)
				rp.Get("/recent-orders", analyticsHandler.RecentOrders)
				rp.Get("/daily-revenue", analyticsHandler.DailyRevenue)
				rp.Get("/product-sales", analyticsHandler.ProductSales)
				rp.Get("/revenue-profit", analyticsHandler.RevenueProfit)
			})

			admin.Get("/categories/{id}", catalogHandler.GetCategory)
			admin.Delete("/categories/{id}", catalogHandler.DeleteCategory)
		})
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = obs.WrapHandler(r, "http.server")
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-runCtx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func kpiConfig(cfg *config.Config) kpi.Config {
	return kpi.Config{
		BaseCommissionPercent: cfg.KPI.BaseCommissionPercent,
		MinYear:               cfg.KPI.MinYear,
		MaxYear:               cfg.KPI.MaxYear,
		Concurrency:           cfg.KPI.Concurrency,
		LockTTL:               cfg.KPI.LockTTL,
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.Obs.ServiceName

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
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.EnablePrometheus {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) > 0 {
		return cfg.CORSAllowedOrigins
	}
	if cfg.IsProduction() {
		return nil
	}
	return []string{"*"}
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

// protectPprof puts basic auth in front of the profiler. Without a configured
// user the profiler stays closed.
func protectPprof(handler http.Handler, username, pass string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if username == "" || !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
