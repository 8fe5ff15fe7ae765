package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/http/handlers"
	ratelimit "github.com/diagnosis/palms-parking/internal/http/middleware"
	"github.com/diagnosis/palms-parking/internal/remote"
	"github.com/diagnosis/palms-parking/internal/service"
	"github.com/diagnosis/palms-parking/internal/session"
	"github.com/diagnosis/palms-parking/pkg/cache"
	"github.com/diagnosis/palms-parking/pkg/config"
	"github.com/diagnosis/palms-parking/pkg/database"
	"github.com/diagnosis/palms-parking/pkg/events"
	"github.com/diagnosis/palms-parking/pkg/logger"
	mw "github.com/diagnosis/palms-parking/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := civiltime.Load(cfg.Civil.TimeZone, cfg.Civil.Label, civiltime.RealClock{})
	if err != nil {
		logger.Error("Failed to load civil time zone", "zone", cfg.Civil.TimeZone, "error", err)
		os.Exit(1)
	}
	if cfg.Remote.URL == "" {
		logger.Warn("REMOTE_API_URL is not set; every remote call will fail")
	}
	rc := remote.New(cfg.Remote.URL, cfg.Remote.Timeout, engine)

	// Redis and Postgres are opened only when something is configured to use them.
	var rdb *redis.Client
	if cfg.Session.Store == "redis" {
		rdb, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}
	var pool *pgxpool.Pool
	if cfg.Session.Store == "postgres" || cfg.Limits.Store == "postgres" {
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		store = session.NewRedisStore(rdb, cfg.Session.Retention)
	case "postgres":
		pg := session.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to prepare session table", "error", err)
			os.Exit(1)
		}
		go purgeExpired(ctx, "sessions", func(ctx context.Context) (int64, error) {
			return pg.DeleteExpired(ctx, cfg.Session.Retention, time.Now())
		})
		store = pg
	default:
		store = session.NewMemoryStore()
	}
	gate := session.NewGate(store, rc, cfg.Session.Retention, civiltime.RealClock{})

	var bus events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		nb, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			// Events are informational; run without them.
			logger.Warn("Failed to connect to NATS, events disabled", "error", err)
		} else {
			bus = nb
		}
	}
	defer bus.Close()

	dashboard := service.NewDashboardService(rc, gate, engine, bus)
	go sweepWorkspaces(ctx, dashboard, cfg.Session.Idle)

	var idem mw.IdempotencyStore = cache.NewMemoryStore()
	switch {
	case rdb != nil:
		idem = cache.NewRedisStore(rdb)
	case pool != nil:
		pc := cache.NewPostgresStore(pool)
		if err := pc.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to prepare idempotency table", "error", err)
			os.Exit(1)
		}
		go purgeExpired(ctx, "idempotent responses", pc.CleanupExpired)
		idem = pc
	}

	var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
	if cfg.Limits.Store == "postgres" {
		pc := ratelimit.NewPostgresCounter(pool)
		if err := pc.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to prepare rate limit table", "error", err)
			os.Exit(1)
		}
		counter = pc
	}
	limiter := ratelimit.NewRateLimiter(counter, ratelimit.RateLimitConfig{
		Requests: cfg.Limits.Attempts,
		Window:   cfg.Limits.Window,
	})

	cookies := handlers.CookiesFromConfig(cfg)
	access := handlers.NewAccessHandler(dashboard, cookies)
	access.Limit = limiter.Middleware()
	spots := handlers.NewSpotHandler(dashboard, cookies, idem)
	spots.Limit = limiter.Middleware()

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("dashboard"))
	r.Use(mw.Logging)
	r.Use(middleware.Recoverer)
	r.Use(mw.CORS(cfg.Server.AllowedOrigins))
	r.Use(mw.Health)
	r.Mount("/api", handlers.NewAPI(access, spots))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down dashboard...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Dashboard shutdown error", "error", err)
		}
	}()

	logger.Info("Starting dashboard", "port", cfg.Server.Port, "session_store", cfg.Session.Store, "zone", cfg.Civil.TimeZone)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Dashboard error", "error", err)
		os.Exit(1)
	}
}

func connectRedis(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, err
	}
	if c.Password != "" {
		opts.Password = c.Password
	}
	if c.DB != 0 {
		opts.DB = c.DB
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func sweepWorkspaces(ctx context.Context, dashboard service.DashboardService, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := dashboard.Sweep(idle); n > 0 {
				logger.Debug("Dropped idle workspaces", "count", n)
			}
		}
	}
}

// purgeExpired runs purge hourly until ctx ends.
func purgeExpired(ctx context.Context, what string, purge func(context.Context) (int64, error)) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				logger.Warn("Failed to purge expired records", "what", what, "error", err)
				continue
			}
			if n > 0 {
				logger.Info("Purged expired records", "what", what, "count", n)
			}
		}
	}
}
