package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"dtfquotes-go/internal/auth"
	"dtfquotes-go/internal/config"
	"dtfquotes-go/internal/dropbox"
	"dtfquotes-go/internal/scheduler"
	"dtfquotes-go/internal/storage"
	"dtfquotes-go/internal/store"
	"dtfquotes-go/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *log.Logger
	DB            *sql.DB
	Auth          *auth.Manager
	Gateway       *store.Gateway
	Scheduler     *scheduler.Scheduler
	WorkerPool    *worker.Pool
	HttpServer    *http.Server
	MetricsServer *http.Server
}

// New creates and initializes a new Application instance.
func New(cfg *config.Config) (*Application, error) {
	logger := log.New(os.Stdout, "dtfquotes: ", log.LstdFlags)

	// Setup: Database (scheduler job persistence)
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	jobStore := storage.NewJobStore(db)
	if err := jobStore.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Setup: WorkerPool
	pool := worker.NewPool(cfg.NumWorkers)

	// Setup: Scheduler
	sched, err := scheduler.New(context.Background(), jobStore, pool, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	// Setup: Auth Manager. Missing credentials are logged but not fatal;
	// storage operations fail until they are provided.
	authManager := auth.NewManager(cfg.Dropbox.AppKey, cfg.Dropbox.AppSecret, cfg.Dropbox.RefreshToken, logger)
	if !cfg.HasCredentials() {
		logger.Println("WARNING: dropbox credentials not configured, storage operations will fail")
	}

	// Setup: Storage Gateway
	gateway := store.NewGateway(authManager, dropbox.NewClient(), logger)

	// Setup: Token refresh job
	refreshService := scheduler.NewTokenRefreshService(sched, authManager, logger)
	if err := refreshService.Schedule(cfg.Scheduler.RefreshSchedule); err != nil {
		return nil, fmt.Errorf("failed to schedule token refresh: %w", err)
	}

	// Setup: HTTP server for metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Auth:          authManager,
		Gateway:       gateway,
		Scheduler:     sched,
		WorkerPool:    pool,
		MetricsServer: metricsServer,
	}

	// Setup: Main HTTP server
	app.HttpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: app.routes(),
	}

	return app, nil
}

// routes builds the HTTP route table.
func (a *Application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)

	mux.Handle("POST /api/quotes", a.requireAPIKey(http.HandlerFunc(a.handleSaveQuote)))
	mux.Handle("GET /api/quotes/{id}", a.requireAPIKey(http.HandlerFunc(a.handleLoadQuote)))
	mux.Handle("DELETE /api/quotes/{id}", a.requireAPIKey(http.HandlerFunc(a.handleDeleteQuote)))
	mux.Handle("GET /api/customers/{customerID}/quotes", a.requireAPIKey(http.HandlerFunc(a.handleListCustomerQuotes)))

	mux.Handle("POST /api/customers/{customerID}/logo", a.requireAPIKey(http.HandlerFunc(a.handleSaveLogo)))
	mux.Handle("GET /api/customers/{customerID}/logo", a.requireAPIKey(http.HandlerFunc(a.handleLoadLogo)))
	mux.Handle("DELETE /api/customers/{customerID}/logo", a.requireAPIKey(http.HandlerFunc(a.handleDeleteLogo)))

	return a.logRequests(mux)
}

// Start begins the application's services.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Println("Starting application services...")

	// Start the worker pool
	a.WorkerPool.Start()
	a.Logger.Println("Worker pool started.")

	// Start the scheduler
	a.Scheduler.Start()
	a.Logger.Println("Scheduler started.")

	// Start the metrics server
	go func() {
		a.Logger.Printf("Starting metrics server on %s", a.MetricsServer.Addr)
		if err := a.MetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("Metrics server ListenAndServe: %v", err)
		}
	}()

	// Start the main HTTP server
	a.Logger.Printf("Starting HTTP server on %s", a.HttpServer.Addr)
	if err := a.HttpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Println("Stopping application services...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("HTTP server shutdown error: %v", err)
	}

	if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("Metrics server shutdown error: %v", err)
	}

	a.Scheduler.Stop()
	a.Logger.Println("Scheduler stopped.")

	a.WorkerPool.Stop()
	a.Logger.Println("Worker pool stopped.")

	if err := a.DB.Close(); err != nil {
		a.Logger.Printf("Error closing database: %v", err)
	}

	a.Logger.Println("Application stopped gracefully.")
	return nil
}
