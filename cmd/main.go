/**
 * @description
 * Entry point for the connection service. It loads configuration, connects to
 * PostgreSQL, RabbitMQ and Redis, wires the application service, starts the
 * payment event consumer and the maintenance scheduler, and serves the HTTP API
 * until SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: optional .env loading for local runs.
 * - github.com/jackc/pgx/v5: PostgreSQL connection pool.
 * - github.com/redis/go-redis/v9: shared rate limiting.
 * - github.com/sirupsen/logrus: structured logging.
 * - internal/api, internal/app, internal/config, internal/store, pkg/rabbitmq.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kontent/connection-service/internal/api"
	"github.com/kontent/connection-service/internal/app"
	"github.com/kontent/connection-service/internal/config"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/kontent/connection-service/internal/logger"
	"github.com/kontent/connection-service/internal/store"
	"github.com/kontent/connection-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	// Local runs keep secrets in .env; deployed environments set them directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	boot := logger.Component(log, "bootstrap")
	for _, warning := range cfg.Warnings {
		boot.Warn(warning)
	}
	boot.WithField("port", cfg.ServerPort).Info("starting connection-service")

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		boot.WithError(err).Fatal("database url parse failed")
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Poolers in front of the database do not support prepared statements.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		boot.WithError(err).Fatal("database connection failed")
	}
	defer dbpool.Close()
	boot.Info("database connected")

	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		boot.WithError(err).Warn("rabbitmq producer unavailable; using fallback")
		publisher = &rabbitmq.EventProducerFallback{Logger: log}
	} else {
		publisher = producer
		boot.Info("rabbitmq producer connected")
	}
	defer publisher.Close()

	repository := store.NewPostgresRepository(dbpool)
	notifier := app.NewNotificationEmitter(publisher, repository, cfg.EventsExchange, log)

	service := app.NewService(repository, notifier, publisher, app.Options{
		FeeConfigName:                cfg.ConnectionFeeConfigName,
		EventsExchange:               cfg.EventsExchange,
		ConnectionRequestLimitPerMin: cfg.ConnectionRequestRateLimitPerMinute,
		MessageLimitPerMin:           cfg.MessageRateLimitPerMinute,
	}, log)

	if redisClient := connectRedis(cfg, boot); redisClient != nil {
		defer redisClient.Close()
		service.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix))
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, log)
	if err != nil {
		boot.WithError(err).Warn("rabbitmq consumer unavailable; payment events will not be processed")
	} else {
		defer consumer.Close()
		paymentEvents := app.NewPaymentEventConsumer(service, log)
		bindings := map[string]rabbitmq.Handler{
			domain.RoutingKeyPaymentSucceeded: paymentEvents.HandlePaymentSucceeded,
			domain.RoutingKeyRefundCompleted:  paymentEvents.HandleRefundCompleted,
		}
		if err := consumer.ConsumeWithBindings(cfg.EventsExchange, cfg.PaymentEventQueue, bindings); err != nil {
			boot.WithError(err).Fatal("payment event consumer start failed")
		}
		boot.WithField("queue", cfg.PaymentEventQueue).Info("payment event consumer started")
	}

	jobs := app.NewJobs(service, log, app.JobsConfig{
		PendingPaymentTTL:        cfg.PendingPaymentTTL(),
		RefundRedispatchAfter:    cfg.RefundRedispatchAfter(),
		ConnectionExpirySchedule: cfg.ConnectionExpiryJobSchedule,
		RefundDispatchSchedule:   cfg.RefundDispatchJobSchedule,
	})
	scheduler := app.NewScheduler(jobs, log)
	scheduler.Start()

	handlers := api.NewHandlers(service, log)
	router := api.NewRouter(handlers, api.ClerkAuthMiddleware(cfg.ClerkJWKSURL), cfg.InternalAPIKey)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpLog := logger.Component(log, "http")

	go func() {
		httpLog.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpLog.WithError(err).Fatal("server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	httpLog.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		httpLog.WithError(err).Error("shutdown failed")
	}
	<-scheduler.Stop().Done()
	service.Wait()
	httpLog.Info("shutdown complete")
}

// connectRedis returns nil when Redis is not configured or unreachable; rate
// limiting is then disabled.
func connectRedis(cfg config.Config, log *logrus.Entry) *redis.Client {
	if cfg.ConnectionRequestRateLimitPerMinute <= 0 && cfg.MessageRateLimitPerMinute <= 0 {
		return nil
	}
	if cfg.RedisURL == "" {
		log.WithField("env", "REDIS_URL").Warn("redis url missing; rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("redis url parse failed; rate limiting disabled")
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis ping failed; rate limiting disabled")
		client.Close()
		return nil
	}
	log.Info("redis connected")
	return client
}
