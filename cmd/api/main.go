package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairops/healthfair-platform/internal/access"
	"github.com/fairops/healthfair-platform/internal/api/router"
	"github.com/fairops/healthfair-platform/internal/board"
	"github.com/fairops/healthfair-platform/internal/catalog"
	appconfig "github.com/fairops/healthfair-platform/internal/config"
	"github.com/fairops/healthfair-platform/internal/observability/metrics"
	"github.com/fairops/healthfair-platform/internal/queue"
	"github.com/fairops/healthfair-platform/internal/registration"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting healthfair-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	reg := prometheus.NewRegistry()
	queueMetrics := metrics.NewQueueMetrics(reg)

	// Storage. Without DATABASE_URL everything runs in memory, which is enough
	// for local development and demos.
	var (
		catalogRepo catalog.Repository
		queueRepo   queue.Repository
		regRepo     registration.Repository
		roleStore   access.RoleStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		roleDB, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open role store db", "error", err)
			os.Exit(1)
		}
		defer func() { _ = roleDB.Close() }()

		catalogRepo = catalog.NewPostgresRepository(pool)
		queueRepo = queue.NewPostgresRepository(pool)
		regRepo = registration.NewPostgresRepository(pool)
		roleStore = access.NewSQLRoleStore(roleDB)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		inMemQueue := queue.NewInMemoryRepository()
		catalogRepo = catalog.NewInMemoryRepository()
		queueRepo = inMemQueue
		regRepo = registration.NewInMemoryRepository(inMemQueue)
		roleStore = access.NewInMemoryRoleStore()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Warn("REDIS_ADDR not set, role lookups are uncached")
	}

	// Services
	hub := board.NewHub(cfg.BoardSendBuffer, logger)
	prereq := catalog.NewPrerequisiteResolver(catalogRepo, cfg.PrerequisiteFallbackName, logger)
	roleResolver := access.NewResolver(roleStore, redisClient, cfg.RoleCacheTTL, logger)
	manager := queue.NewManager(queueRepo, prereq, roleResolver, logger, queueMetrics, hub)
	registrar := registration.NewRegistrar(regRepo, prereq, logger, queueMetrics, hub)

	// Setup router
	routerCfg := &router.Config{
		Logger:              logger,
		RegistrationHandler: registration.NewHandler(registrar, logger),
		QueueHandler:        queue.NewHandler(manager, logger),
		AccessHandler:       access.NewHandler(roleResolver, roleStore, logger),
		BoardHub:            hub,
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		StaffJWTSecret:      cfg.StaffJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
