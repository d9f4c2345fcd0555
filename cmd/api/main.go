package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookswap/internal/api"
	"bookswap/internal/config"
	"bookswap/internal/database"
	"bookswap/internal/domain"
	"bookswap/internal/events"
	"bookswap/internal/logging"
	"bookswap/internal/metrics"
	"bookswap/internal/repository"
	"bookswap/internal/service"
	"bookswap/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDBWithOptions(cfg.Database.Path, database.Options{
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}
	limiter := initRateLimiter(ctx, redisClient, logger)

	bus := events.NewEventBus(logging.Component(logger, "events"))
	subscribeAudit(bus, logging.Component(logger, "audit"))

	var notifier domain.Notifier
	if cfg.Notifications.Enabled {
		w := worker.NewNotificationWorker(db, db, worker.PolicyFromConfig(cfg.Notifications), worker.Options{
			Redis:         redisClient,
			DeadLetterKey: cfg.Notifications.DeadLetterKey,
			PollInterval:  cfg.Notifications.PollInterval,
			BatchSize:     cfg.Notifications.BatchSize,
		}, logger)
		go w.Start(ctx)
		notifier = w
	} else {
		logger.Warn().Msg("notifications disabled, system messages will not be delivered")
	}

	snapshots := database.NewSnapshotService(db, cfg.Backup, logger)
	go snapshots.Start(ctx)

	svc := api.Services{
		Exchanges:  service.NewExchangeService(db, bus, notifier, nil, logger),
		Books:      service.NewBookService(db, bus, notifier, logger),
		Meetings:   service.NewMeetingService(db, bus, notifier, cfg.Exchange.MeetingLeadTime, nil, logger),
		Completion: service.NewCompletionService(db, bus, notifier, cfg.Exchange.CodeTTL, cfg.Exchange.CodeLength, nil, logger),
		Ratings:    service.NewRatingService(db, bus, logger),
		Messages:   db,
	}

	if err := seedMeetingPoints(ctx, cfg.MeetingPoints.SeedFile, svc.Meetings, logger); err != nil {
		return err
	}

	httpServer := api.NewHTTPServer(cfg.API, cfg.Exchange.WriteQuota, svc, limiter, db, logger)

	startMetrics(ctx, cfg, logger)

	return serve(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initRateLimiter prefers redis and falls back to process memory.
func initRateLimiter(ctx context.Context, client *redis.Client, logger *zerolog.Logger) domain.RateLimiter {
	memory := repository.NewMemoryRateLimiter()
	go sweepLoop(ctx, memory, logger)

	if client == nil {
		return memory
	}
	return repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(client), memory, logger)
}

func sweepLoop(ctx context.Context, limiter *repository.MemoryRateLimiter, logger *zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				logger.Debug().Int("windows", n).Msg("expired quota windows dropped")
			}
		}
	}
}

func subscribeAudit(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(event *events.Event) error {
		logger.Info().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			RawJSON("payload", event.Payload).
			Msg("domain event")
		return nil
	}
	for _, t := range []string{
		events.EventRequestCreated,
		events.EventRequestAccepted,
		events.EventRequestRejected,
		events.EventRequestCancelled,
		events.EventExchangeCancelled,
		events.EventExchangeCompleted,
		events.EventMeetingProposed,
		events.EventMeetingDecided,
		events.EventCodeIssued,
		events.EventRatingCreated,
		events.EventBookWithdrawn,
		events.EventBookAvailability,
	} {
		bus.Subscribe(t, handler)
	}
}

func seedMeetingPoints(ctx context.Context, path string, meetings *service.MeetingService, logger *zerolog.Logger) error {
	if path == "" {
		return nil
	}
	points, err := config.LoadMeetingPoints(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("seed_file", path).Msg("meeting point seed file not found")
			return nil
		}
		return err
	}
	n, err := meetings.ImportPoints(ctx, points)
	if err != nil {
		return fmt.Errorf("seed meeting points: %w", err)
	}
	logger.Info().Int("points", n).Str("seed_file", path).Msg("meeting points seeded")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
