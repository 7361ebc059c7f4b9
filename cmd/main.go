package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/finishline/internal/adapters/detection"
	"github.com/okian/finishline/internal/adapters/http/api"
	"github.com/okian/finishline/internal/adapters/http/site"
	"github.com/okian/finishline/internal/adapters/http/swagger"
	"github.com/okian/finishline/internal/adapters/notify"
	"github.com/okian/finishline/internal/adapters/repository"
	service "github.com/okian/finishline/internal/app"
	"github.com/okian/finishline/internal/config"
	"github.com/okian/finishline/pkg/logger"
	"github.com/okian/finishline/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 15 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	retryCeiling              = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := setupLogging(cfg); err != nil {
		os.Stderr.WriteString("failed to configure logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "finishline stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) error {
	format, err := logger.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	if err := logger.InitWith(os.Stdout, format); err != nil {
		return err
	}
	return logger.SetLevelString(cfg.LogLevel)
}

// run wires the service from cfg and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("main")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}

	hub := notify.NewHub(logger.Named("hub"))
	defer hub.Close()
	broadcaster := notify.NewAsync(newBroadcaster(cfg, hub), cfg.NotifyBuffer, logger.Named("notify"))

	svc, err := service.New(store, detector,
		service.WithLogger(logger.Get()),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.JobQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithThresholds(cfg.Thresholds()),
		service.WithCollection(cfg.FaceCollection),
		service.WithClaimLease(cfg.ClaimLease()),
		service.WithRetry(cfg.RetryAttempts, cfg.RetryBackoff(), retryCeiling),
		service.WithMaintenance(cfg.Maintenance()),
		service.WithPublisher(broadcaster),
	)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	if cfg.StartListFile != "" {
		entries, err := repository.LoadStartListFile(cfg.StartListFile)
		if err != nil {
			return err
		}
		n, err := svc.SeedStartList(ctx, entries)
		if err != nil {
			return fmt.Errorf("seed start list: %w", err)
		}
		log.Info(ctx, "start list loaded", logger.String("file", cfg.StartListFile), logger.Int("entries", n))
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, hub),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	// Stop intake first, then drain fusion jobs, then flush broadcasts.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service stop failed", logger.Error(err))
	}
	if err := broadcaster.Close(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "undelivered queue events dropped", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return runErr
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	case config.StoreSQLite:
		store, err := repository.OpenSQLite(ctx, cfg.SQLitePath, repository.WithBusyTimeout(cfg.SQLiteBusyTimeout()))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w %q", config.ErrUnknownStoreDriver, cfg.StoreDriver)
}

func newDetector(cfg *config.Config) (detection.Detector, error) {
	if cfg.DetectionFixtures != "" {
		return detection.LoadStaticDetector(cfg.DetectionFixtures)
	}
	opts := []detection.Option{detection.WithTimeout(cfg.DetectionTimeout())}
	if cfg.DetectionAPIKey != "" {
		opts = append(opts, detection.WithHeader("X-Api-Key", cfg.DetectionAPIKey))
	}
	return detection.NewClient(cfg.DetectionURL, opts...)
}

// newBroadcaster fans queue events out to websocket reviewers and, when
// configured, to Slack.
func newBroadcaster(cfg *config.Config, hub *notify.Hub) *notify.Fanout {
	sinks := []notify.Sink{{Name: "websocket", Broadcaster: hub}}
	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		sinks = append(sinks, notify.Sink{Name: "slack", Broadcaster: notify.NewSlackClient(cfg.SlackToken, cfg.SlackChannel)})
	}
	return notify.NewFanout(sinks...)
}

func newMux(ctx context.Context, cfg *config.Config, svc *service.Service, hub *notify.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithPageLimits(cfg.DefaultPageLimit, cfg.MaxPageLimit),
		api.WithQueueStream(hub),
		api.WithLogger(logger.Named("api")),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater periodically records runtime metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes queue gauges from the service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.GetStats(ctx)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
