package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rentfolio/notification-service/internal/config"
	"github.com/rentfolio/notification-service/internal/dispatch"
	"github.com/rentfolio/notification-service/internal/queue"
	"github.com/rentfolio/notification-service/internal/repository"
	"github.com/rentfolio/notification-service/internal/routes"
	"github.com/rentfolio/notification-service/internal/settings"
	"github.com/rentfolio/notification-service/internal/vault"
	"github.com/rentfolio/notification-service/pkg/backoff"
	"github.com/rentfolio/notification-service/pkg/logger"
	"github.com/rentfolio/notification-service/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, os.Getenv("LOG_FORMAT"))
	logr.Info("starting notification service", slog.String("app", cfg.AppName))

	secretVault, err := vault.New(cfg.MasterKey)
	if err != nil {
		logr.Error("failed to initialize vault", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	policies := settings.DefaultPolicies()
	if cfg.SecretMaxPlaintextLen > 0 {
		policies = settings.Policies{
			EmailPassword:    vault.FieldPolicy{MaxPlaintextLen: cfg.SecretMaxPlaintextLen},
			SMSAPIKey:        vault.FieldPolicy{MaxPlaintextLen: cfg.SecretMaxPlaintextLen},
			SMSAPISecret:     vault.FieldPolicy{MaxPlaintextLen: cfg.SecretMaxPlaintextLen},
			TelegramBotToken: vault.FieldPolicy{MaxPlaintextLen: cfg.SecretMaxPlaintextLen},
		}
	}
	codec, err := settings.NewCodec(secretVault, policies)
	if err != nil {
		logr.Error("invalid secret field policy", slog.Any("error", err))
		os.Exit(1)
	}

	settingsStore := settings.NewStore(db, cfg.SettingsTable)

	deliveryStore, err := repository.NewDeliveryStore(db, cfg.DeliveriesTable)
	if err != nil {
		logr.Error("failed to prepare delivery store", slog.Any("error", err))
		os.Exit(1)
	}

	var suppression *repository.SuppressionStore
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		suppression = repository.NewSuppressionStore(rdb, cfg.SuppressionTTL)
		defer suppression.Close()
	}
	reporter := repository.NewStoreReporter(deliveryStore, suppression, logr)

	policy := dispatch.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Backoff:     backoff.Schedule(cfg.RetryBackoff),
	}

	tasks := []dispatch.Task{
		dispatch.NewEmailTask(settingsStore, codec, policy, reporter, logr, cfg.ProviderTimeout),
		dispatch.NewSMSTask(settingsStore, codec, policy, reporter, logr, cfg.ProviderTimeout),
		dispatch.NewTelegramTask(settingsStore, codec, policy, reporter, logr, cfg.ProviderTimeout),
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	metricsCollector := metrics.New()
	consumer := queue.NewConsumer(conn, queue.ConsumerConfig{
		Queue:           cfg.DeliveryQueue,
		WaitQueue:       cfg.WaitQueue,
		DeadLetterQueue: cfg.DeadLetterQueue,
		Prefetch:        cfg.PrefetchCount,
		WorkerCount:     cfg.WorkerCount,
	}, tasks, policy, metricsCollector, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	httpSrv := startHTTPServer(cfg.HTTPPort, metricsCollector, logr, started)

	if err := consumer.Start(ctx); err != nil {
		logr.Error("delivery consumer exited", slog.Any("error", err))
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("notification service stopped")
}

func startHTTPServer(port string, metricsCollector *metrics.Metrics, logr *slog.Logger, started time.Time) *http.Server {
	if port == "" {
		port = "8084"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: routes.NewRouter(metricsCollector, started),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
