package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medsupply/medsupply-backend/internal/auth/jwt"
	"github.com/medsupply/medsupply-backend/internal/inventory/catalog"
	"github.com/medsupply/medsupply-backend/internal/inventory/events"
	"github.com/medsupply/medsupply-backend/internal/inventory/expiry"
	"github.com/medsupply/medsupply-backend/internal/inventory/handler"
	"github.com/medsupply/medsupply-backend/internal/inventory/repository"
	"github.com/medsupply/medsupply-backend/internal/inventory/service"
	"github.com/medsupply/medsupply-backend/pkg/config"
	"github.com/medsupply/medsupply-backend/pkg/database"
	"github.com/medsupply/medsupply-backend/pkg/httputil"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/medsupply/medsupply-backend/pkg/messaging"
	"github.com/medsupply/medsupply-backend/pkg/metrics"
	"github.com/medsupply/medsupply-backend/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("inventory-service", cfg.Server.Environment, cfg.Server.LogLevel)
	log.Info().Msg("starting Inventory Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Event publishing is optional; the engine and services accept nil publishers
	var (
		rmq          *messaging.RabbitMQ
		importEvents catalog.Events
		domainEvents service.EventPublisher
	)
	if cfg.RabbitMQ.Enabled() {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()
		rmq.Watch(ctx)

		publisher, err := events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		importEvents, domainEvents = publisher, publisher
	} else {
		log.Warn().Msg("RabbitMQ not configured, inventory events are disabled")
	}

	// Redis backs cross-replica scope locks and the shared dashboard cache
	var (
		rdb    *redis.Client
		locker catalog.ScopeLocker
		cache  service.DashboardCache
	)
	if cfg.Redis.Enabled() {
		rdb, err = redis.New(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()

		locker = catalog.NewRedisLocker(rdb, cfg.Import.LockTTL, log)
		cache = rdb
	} else {
		log.Warn().Msg("Redis not configured, scope locks and dashboard cache are process-local")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	inventoryMetrics := metrics.NewInventoryMetrics(registry)
	jobMetrics := metrics.NewJobMetrics(registry)

	// Initialize repositories
	lotRepo := repository.NewLotRepository(db)
	masterRepo := repository.NewMasterDataRepository(db)
	categoryRepo := repository.NewExpiryCategoryRepository(db)
	adjustmentRepo := repository.NewAdjustmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	catalogStore := repository.NewCatalogStore(db, lotRepo, masterRepo)

	// Initialize engine and services
	policy := expiry.PolicyFromConfig(cfg.Expiry)
	engine := catalog.NewEngine(catalogStore, masterRepo, sessionRepo, importEvents, locker, inventoryMetrics,
		catalog.OptionsFromConfig(cfg.Import), log)
	inventoryService := service.NewInventoryService(db, lotRepo, adjustmentRepo, categoryRepo, policy, domainEvents, log)
	sweep := service.NewExpirySweep(lotRepo, categoryRepo, policy, cache, cfg.Sweep.CacheTTL, inventoryMetrics, jobMetrics, log)
	categoryService := service.NewCategoryService(db, categoryRepo, domainEvents, sweep, log)

	// Start the dashboard sweep
	var scheduler *service.SweepScheduler
	if cfg.Sweep.Enabled {
		scheduler = service.NewSweepScheduler(sweep, cfg.Sweep.Interval)
		scheduler.Start(ctx)
		log.Info().Dur("interval", cfg.Sweep.Interval).Msg("expiry sweep scheduler started")
	}

	// Initialize handlers
	handlers := handler.Handlers{
		Import:     handler.NewImportHandler(engine, cfg.Import.MaxUploadBytes, log),
		Lots:       handler.NewLotHandler(inventoryService, log),
		Categories: handler.NewCategoryHandler(categoryService, log),
		Dashboard:  handler.NewDashboardHandler(sweep, log),
	}
	jwtManager := jwt.NewManager(&cfg.JWT)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return cfg.Server.Environment == config.EnvDevelopment
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  "inventory-service",
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		if rdb != nil {
			status["redis"] = rdb.Health(r.Context())
		}
		httputil.JSON(w, http.StatusOK, status)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jwtManager.Middleware(log))
		handlers.Mount(r)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	if scheduler != nil {
		scheduler.Stop()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
