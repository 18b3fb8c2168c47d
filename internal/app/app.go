// Package app wires the service together and owns its lifecycle.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"floodwatch/internal/alerting"
	"floodwatch/internal/config"
	"floodwatch/internal/handlers"
	"floodwatch/internal/ingest"
	"floodwatch/internal/kafka"
	"floodwatch/internal/liveness"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/middleware"
	"floodwatch/internal/models"
	"floodwatch/internal/notify"
	"floodwatch/internal/realtime"
	"floodwatch/internal/storage"
	"floodwatch/internal/worker"
)

// App is the assembled service.
type App struct {
	cfg *config.Config

	db          *sql.DB
	redisClient *redis.Client
	producer    *kafka.Producer
	workerPool  *worker.Pool
	dispatcher  *notify.Dispatcher
	monitor     *liveness.Monitor
	httpServer  *http.Server
	exportChan  chan *models.ReadingEnvelope

	wg sync.WaitGroup
}

func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Run assembles everything and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	log := logger.WithComponent("app")
	log.Info().Msg("floodwatch starting")

	db, err := storage.Open(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	a.db = db
	defer db.Close()

	devices := storage.NewDeviceRepository(db, logger.WithComponent("devices"))
	readings := storage.NewReadingRepository(db, logger.WithComponent("readings"))
	alerts := storage.NewAlertRepository(db, logger.WithComponent("alerts"))
	subscriptions := storage.NewSubscriptionRepository(db, logger.WithComponent("subscriptions"))

	publisher := a.initPublisher(ctx)
	a.dispatcher = notify.NewDispatcher(subscriptions, a.initProvider(), logger.WithComponent("dispatcher"))

	engine := alerting.NewEngine(a.cfg.Alerts, alerts, publisher, a.dispatcher, logger.WithComponent("alerting"))

	a.monitor = liveness.NewMonitor(
		devices, publisher, a.dispatcher,
		a.cfg.Liveness.OfflineThreshold,
		a.cfg.Liveness.SweepInterval,
		logger.WithComponent("liveness"),
	)

	if err := a.initExport(); err != nil {
		return fmt.Errorf("init export: %w", err)
	}

	node, _ := os.Hostname()
	if node == "" {
		node = "unknown"
	}
	service := ingest.NewService(
		a.cfg.Alerts,
		devices, readings, engine, a.monitor, publisher,
		a.exportChan, node,
		logger.WithComponent("ingest"),
	)

	a.initHTTPServer(service)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.monitor.Run(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Info().Str("addr", a.cfg.HTTP.Addr).Msg("starting HTTP server")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return a.shutdown()
}

// initPublisher connects to Redis, falling back to a no-op publisher when
// no address is configured.
func (a *App) initPublisher(ctx context.Context) realtime.Publisher {
	log := logger.WithComponent("app")

	if a.cfg.Redis.Addr == "" {
		log.Warn().Msg("redis not configured, realtime broadcast disabled")
		return realtime.NopPublisher{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Str("addr", a.cfg.Redis.Addr).Msg("redis unreachable at startup")
	}
	a.redisClient = client
	log.Info().Str("addr", a.cfg.Redis.Addr).Str("channel", a.cfg.Redis.Channel).Msg("realtime broadcaster initialized")
	return realtime.NewRedisBroadcaster(client, a.cfg.Redis.Channel, logger.WithComponent("realtime"))
}

func (a *App) initProvider() notify.Provider {
	log := logger.WithComponent("app")
	if a.cfg.FCM.ServerKey == "" {
		log.Warn().Msg("FCM not configured, push notifications disabled")
		return notify.NopProvider{}
	}
	log.Info().Msg("FCM provider initialized")
	return notify.NewFCMProvider(a.cfg.FCM, logger.WithComponent("fcm"))
}

// initExport starts the Kafka export stream when brokers are configured.
func (a *App) initExport() error {
	log := logger.WithComponent("app")

	if len(a.cfg.Kafka.Brokers) == 0 {
		log.Info().Msg("kafka not configured, readings export disabled")
		return nil
	}

	producer, err := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.cfg.Kafka.Producer)
	if err != nil {
		return err
	}
	a.producer = producer

	a.exportChan = make(chan *models.ReadingEnvelope, 1000)
	metrics.ExportQueueCapacity.Set(float64(cap(a.exportChan)))

	a.workerPool = worker.NewPool(worker.Config{
		Publisher:    producer,
		EnvelopeChan: a.exportChan,
		Workers:      a.cfg.Kafka.Producer.PoolSize,
		BatchSize:    a.cfg.Kafka.Producer.BatchSize,
		BatchTimeout: a.cfg.Kafka.Producer.BatchTimeout,
	})
	a.workerPool.Start()

	log.Info().
		Strs("brokers", a.cfg.Kafka.Brokers).
		Str("topic", a.cfg.Kafka.Topic).
		Msg("readings export initialized")
	return nil
}

func (a *App) initHTTPServer(service *ingest.Service) {
	mux := http.NewServeMux()

	ingestHandler := handlers.NewIngestHandler(service, a.cfg.HTTP.MaxBodySize, logger.WithComponent("http"))
	mux.Handle("/api/sensor-data", middleware.Chain(
		ingestHandler,
		middleware.Recovery,
		middleware.Logging,
		middleware.APIKey(a.cfg.HTTP.APIKey),
	))

	mux.HandleFunc("/health", a.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := a.db.PingContext(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// shutdown drains in the dependency order: stop accepting requests, flush
// the export queue, wait for in-flight notifications, then close clients.
func (a *App) shutdown() error {
	log := logger.WithComponent("app")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if a.workerPool != nil {
		log.Info().Msg("closing export queue")
		close(a.exportChan)

		done := make(chan struct{})
		go func() {
			a.workerPool.Stop()
			close(done)
		}()
		select {
		case <-done:
			log.Info().Msg("export workers stopped gracefully")
		case <-time.After(15 * time.Second):
			log.Warn().Msg("export worker shutdown timeout")
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}

	log.Info().Msg("draining notification dispatcher")
	a.dispatcher.Drain()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("redis close error")
		}
	}

	a.wg.Wait()
	log.Info().Msg("floodwatch stopped gracefully")
	return nil
}
