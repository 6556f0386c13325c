package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"labguard/config"
	"labguard/internal/agentctl"
	"labguard/internal/dashboard"
	"labguard/internal/db"
	"labguard/internal/health"
	"labguard/internal/logs"
	"labguard/internal/middleware"
	"labguard/internal/repo"
	"labguard/internal/tracker"
	"labguard/internal/usagelog"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	Handler    http.Handler
	Registry   *prometheus.Registry
	httpServer *http.Server

	db      *gorm.DB
	store   tracker.Store
	svc     *tracker.Service
	flusher *usagelog.Flusher
	sweeper *tracker.Sweeper
}

// OpenStore подключает БД из cfg и прогоняет миграции. Пустой driver даёт
// in-memory store (db == nil).
func OpenStore(cfg *config.Config) (tracker.Store, *gorm.DB, error) {
	if cfg.Database.Driver == "" {
		return tracker.NewMemStore(), nil, nil
	}
	d, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Migrate(d); err != nil {
		return nil, nil, fmt.Errorf("db migrate: %w", err)
	}
	return repo.NewStore(d), d, nil
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) БД (опционально)
	store, gdb, err := OpenStore(cfg)
	if err != nil {
		return err
	}
	a.store, a.db = store, gdb
	if a.db == nil {
		logs.Logger.Warn("database.driver is empty: running on the in-memory store, state is lost on restart")
	}

	// 3) Метрики
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 4) Трекер и фоновые циклы
	a.flusher = usagelog.New(a.store,
		usagelog.WithBatchSize(cfg.UsageLog.BatchSize),
		usagelog.WithQueueSize(cfg.UsageLog.QueueSize),
		usagelog.WithInterval(cfg.UsageLog.FlushInterval),
		usagelog.WithLogger(logs.Logger),
		usagelog.WithRegisterer(a.Registry),
	)
	a.svc = tracker.NewService(a.store, tracker.Options{
		OfflineAfter:      cfg.Presence.OfflineAfter,
		SessionCloseAfter: cfg.Presence.SessionCloseAfter,
		SessionRetention:  cfg.Retention.Sessions,
		UsageLogRetention: cfg.Retention.UsageLogs,
		NoiseProcesses:    cfg.Tracker.NoiseProcesses,
		LockShards:        cfg.Tracker.LockShards,
		Logger:            logs.Logger,
		Metrics:           tracker.NewMetrics(a.Registry),
		Usage:             a.flusher,
	})
	a.sweeper = tracker.NewSweeper(a.svc, cfg.Presence.SweepInterval, cfg.Presence.SessionSweepInterval)

	// 5) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	// 6) Health
	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db, a.store)
	} else {
		health.RegisterRoutes(a.Router, a.store)
	}
	a.Router.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// 7) Дашборд и API агента (rate limit только на агента)
	dashboard.NewHandler(a.svc, logs.Logger).RegisterRoutes(a.Router)
	agentctl.NewController(a.svc, logs.Logger).RegisterRoutes(a.Router,
		middleware.RateLimit(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow))

	_ = a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, err := rt.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := rt.GetMethods()
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})

	// CORS снаружи роутера: preflight OPTIONS не совпадает ни с одним маршрутом
	a.Handler = middleware.CORS(cfg.HTTP.CORSOrigins)(a.Router)
	return nil
}

// Run serves HTTP until ctx is done or SIGINT/SIGTERM arrives. The sweeper and
// the usage-log flusher outlive the HTTP server so late heartbeats still get
// flushed.
func (a *App) Run(ctx context.Context) error {
	if a.Handler == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)
	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	bgCtx, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()
	var bg errgroup.Group
	bg.Go(func() error { return a.sweeper.Run(bgCtx) })
	bg.Go(func() error { return a.flusher.Run(bgCtx) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	cancelBG()
	if bgErr := bg.Wait(); err == nil {
		err = bgErr
	}
	if a.db != nil {
		if sqlDB, dbErr := a.db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}
	logs.Logger.Info("server stopped")
	return err
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
