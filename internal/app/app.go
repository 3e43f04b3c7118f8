package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"umbrella-admin/internal/accounting"
	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/config"
	"umbrella-admin/internal/database"
	"umbrella-admin/internal/event"
	"umbrella-admin/internal/handler"
	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/logger"
	"umbrella-admin/internal/metrics"
	"umbrella-admin/internal/middleware"
	"umbrella-admin/internal/notify"
	"umbrella-admin/internal/repository"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/router"
	"umbrella-admin/internal/service"
	"umbrella-admin/internal/websocket"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	ctx := context.Background()
	var cleanups []func()
	fail := func(err error) (*App, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, err
	}

	registry := metrics.NewRegistry()

	store, err := openBackend(ctx, cfg, registry)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, store.close)
	backend := store.backend

	units, err := service.LoadHierarchy(ctx, backend, cfg.RootUnitName)
	if err != nil {
		return fail(fmt.Errorf("failed to load unit hierarchy: %w", err))
	}

	evaluator, err := rights.NewEvaluator(units, cfg.RightsCacheSize)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize rights evaluator: %w", err))
	}

	bus := event.NewBus()

	engine := &lifecycle.Engine{
		Units:    units,
		Rights:   evaluator,
		Backend:  backend,
		Recorder: audit.NewRecorder(),
		Events:   bus,
		Notifier: notify.Multi{notify.NewLogNotifier(log), notify.NewBusNotifier(bus)},
		Metrics:  metrics.NewLifecycle(registry),
		Logger:   log.With("component", "lifecycle"),
	}

	kinds := lifecycle.NewRegistry()
	if err := accounting.Register(kinds, engine); err != nil {
		return fail(fmt.Errorf("failed to register object kinds: %w", err))
	}
	reports, err := accounting.ReportsFrom(kinds, units)
	if err != nil {
		return fail(err)
	}

	authService, err := service.NewAuthService(backend, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize auth service: %w", err))
	}
	if err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fail(err)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.NewHub(bus)
	go hub.Run(hubCtx)
	cleanups = append(cleanups, stopHub)

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Unit:        handler.NewUnitHandler(service.NewUnitService(backend, units)),
		Entity:      handler.NewEntityHandler(kinds),
		Audit:       handler.NewAuditHandler(service.NewAuditService(backend.Audit())),
		Report:      handler.NewReportHandler(reports),
		Health:      store.health,
		Live:        hub.Handler(cfg.CORSOrigins),
		Metrics:     metrics.Handler(registry),
		HTTPMetrics: metrics.NewHTTP(registry),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	slog.Info("application ready", "kinds", len(kinds.All()), "units", len(units.All()))
	return &App{server: server, cleanupFuncs: cleanups}, nil
}

type openedBackend struct {
	backend repository.Backend
	// health is nil for the in-memory backend.
	health func(ctx context.Context) error
	close  func()
}

// openBackend selects the store from DATABASE_URL: Postgres, SQLite, or the
// in-memory backend when the URL is empty.
func openBackend(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (openedBackend, error) {
	target, err := database.ParseURL(cfg.DatabaseURL)
	if err != nil {
		return openedBackend{}, err
	}

	switch target.Driver {
	case database.DriverPostgres:
		slog.Info("connecting to PostgreSQL", "url", target.Redacted)
		db, err := database.New(ctx, target.DSN, database.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return openedBackend{}, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return openedBackend{}, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		db.RegisterPoolMetrics(reg)
		return openedBackend{backend: repository.NewPostgresBackend(db.Pool), health: db.Health, close: db.Close}, nil

	case database.DriverSQLite:
		slog.Info("opening SQLite state", "url", target.Redacted)
		sqlDB, err := repository.OpenSQLite(ctx, target.DSN)
		if err != nil {
			return openedBackend{}, err
		}
		backend, err := repository.NewSQLiteBackend(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return openedBackend{}, fmt.Errorf("failed to load SQLite state: %w", err)
		}
		return openedBackend{backend: backend, health: sqlDB.PingContext, close: func() { _ = sqlDB.Close() }}, nil

	default:
		slog.Warn("DATABASE_URL not set; using the in-memory backend, data is lost on restart")
		backend := repository.NewMemoryBackend()
		return openedBackend{backend: backend, close: func() { _ = backend.Close() }}, nil
	}
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
