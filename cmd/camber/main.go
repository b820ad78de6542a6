package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/camberhq/camber/pkg/audit"
	"github.com/camberhq/camber/pkg/auth"
	"github.com/camberhq/camber/pkg/config"
	"github.com/camberhq/camber/pkg/documents"
	"github.com/camberhq/camber/pkg/observability"
	"github.com/camberhq/camber/pkg/orgs"
	"github.com/camberhq/camber/pkg/storage"
	"github.com/camberhq/camber/pkg/tenancy"
	"github.com/camberhq/camber/pkg/workorders"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "camber: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting camber")

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := storage.NewPostgres(storage.PostgresConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	redisClient, err := storage.NewRedis(storage.RedisConfig{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info("Connected to Redis")
	} else {
		logger.Info("Redis not configured, assignment cache disabled")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	if err := migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("Migrations applied")

	// Policies are reasserted on every start so a migration can never leave a
	// table unprotected. audit_events carries its own policy set: its deletes
	// answer to the retention job, not to tenant scope.
	tableSpecs := []tenancy.TableSpec{
		documents.TableSpec(),
		workorders.TableSpec(),
	}
	if err := tenancy.ApplyPolicies(ctx, db, tableSpecs); err != nil {
		return fmt.Errorf("failed to apply row security policies: %w", err)
	}
	if err := audit.ApplyPolicies(ctx, db); err != nil {
		return fmt.Errorf("failed to apply audit policies: %w", err)
	}
	logger.Info("Row security policies applied")

	recorder, err := audit.NewDBRecorder(db, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create audit recorder: %w", err)
	}

	orgsStore := orgs.NewStore(db)
	sessions := tenancy.NewSessionManager(db, recorder, logger, metrics)
	assignments := tenancy.NewAssignmentStore(db, redisClient, metrics)
	engine := tenancy.NewEngine(assignments, orgsStore, metrics)
	pipeline := tenancy.NewPipeline(orgsStore, logger, metrics)
	bootstrap := tenancy.NewBootstrapLookup(db, metrics, tableSpecs)

	tokenManager := auth.NewTokenManager(db)
	authMiddleware := auth.NewMiddleware(tokenManager, false)

	documentStore := documents.NewStore(sessions, engine, recorder)
	workOrderStore := workorders.NewStore(sessions, engine, assignments, recorder)

	router := mux.NewRouter()
	router.Use(auth.RequestIDMiddleware)
	router.Use(metrics.HTTPMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware.Handler)

	// The ownership lookup runs before any tenant scope is selected, so it is
	// registered outside the pipeline. It returns owning organization ids and
	// nothing else.
	api.HandleFunc("/bootstrap/ownership", ownershipHandler(bootstrap)).Methods(http.MethodGet)

	tenant := api.NewRoute().Subrouter()
	tenant.Use(pipeline.Middleware)
	audit.NewHandlers(recorder).RegisterRoutes(tenant)
	documents.NewHandlers(documentStore).RegisterRoutes(tenant)
	workorders.NewHandlers(workOrderStore).RegisterRoutes(tenant)

	var handler http.Handler = router
	if otelProviders != nil {
		handler = otelhttp.NewHandler(router, "camber")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	retention := audit.NewRetention(db, logger, cfg.Audit.RetentionDays)
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Audit.CleanupSchedule, func() {
		defer observability.RecoverPanic(logger, "audit retention")
		if _, err := retention.Run(context.Background()); err != nil {
			logger.WithError(err).Error("Audit retention run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid audit cleanup schedule %q: %w", cfg.Audit.CleanupSchedule, err)
	}
	scheduler.Start()

	go observeDBStats(db, metrics)

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		scheduler.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	g.Go(shutdown.WaitForShutdown)

	return g.Wait()
}

// migrate runs every package's migrations in dependency order. Users come
// first, then organizations, then everything keyed to them.
func migrate(ctx context.Context, db *sql.DB) error {
	steps := []struct {
		name string
		run  func(context.Context, *sql.DB) error
	}{
		{"auth", auth.RunMigrations},
		{"orgs", orgs.RunMigrations},
		{"tenancy", tenancy.RunMigrations},
		{"audit", audit.RunMigrations},
		{"documents", documents.RunMigrations},
		{"workorders", workorders.RunMigrations},
	}
	for _, step := range steps {
		if err := step.run(ctx, db); err != nil {
			return fmt.Errorf("%s migrations failed: %w", step.name, err)
		}
	}
	return nil
}

func ownershipHandler(bootstrap *tenancy.BootstrapLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemType := r.URL.Query().Get("item_type")
		itemID, err := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
		if itemType == "" || err != nil || itemID <= 0 {
			http.Error(w, `{"error":"item_type and item_id are required"}`, http.StatusBadRequest)
			return
		}

		ref, err := bootstrap.Resolve(r.Context(), itemType, itemID)
		if err != nil {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ref)
	}
}

func observeDBStats(db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		stats := db.Stats()
		metrics.ObserveDBStats(stats.InUse, stats.Idle)
	}
}
