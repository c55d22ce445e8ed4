// Package app wires the worker process: the lock-gated outbox publisher, the
// idempotent payment event consumer, and the probe endpoints.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vietct/orderflow/internal/domain/outbox"
	"github.com/vietct/orderflow/internal/domain/payment"
	"github.com/vietct/orderflow/internal/lock"
	"github.com/vietct/orderflow/internal/storage/postgres"
	"github.com/vietct/orderflow/internal/transport/kafka"
	"github.com/vietct/orderflow/pkg/health"
)

// Run creates all dependencies and supervises the background loops until the
// context is cancelled. It is the single wiring point for the worker.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("probe_addr", cfg.ProbeAddr),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis client backing the publisher lock.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	// Kafka producer for the outbox drain.
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		return errors.Wrap(err, "create kafka producer")
	}
	defer producer.Close()

	// Stores.
	db := postgres.NewDB(pool)
	orderRepo := postgres.NewOrderRepository(db)
	outboxStore := postgres.NewOutboxStore(db)
	processedStore := postgres.NewProcessedEventStore(db)

	// Outbox publisher, gated by the distributed lock.
	locks := lock.NewRedisManager(rdb)
	publisher, err := outbox.NewPublisher(outboxStore, producer, locks, outbox.PublisherConfig{
		Interval:     cfg.Publisher.Interval,
		BatchSize:    cfg.Publisher.BatchSize,
		LockName:     cfg.Publisher.LockName,
		LockTTL:      cfg.Publisher.LockTTL,
		PaymentTopic: cfg.Kafka.PaymentTopic,
		DefaultTopic: cfg.Kafka.DefaultTopic,
	}, lg.Named("outbox"), m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create outbox publisher")
	}

	// Payment event processor + Kafka consumer.
	notifier := payment.NewLoggingNotifier(lg.Named("notify"))
	processor, err := payment.NewProcessor(processedStore, orderRepo, notifier,
		lg.Named("payment"), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create payment processor")
	}
	if err := processor.Warm(ctx); err != nil {
		return errors.Wrap(err, "warm payment processor")
	}

	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Consumer.GroupID,
		cfg.Kafka.PaymentTopic, processor, lg.Named("consumer"), m.TracerProvider())
	if err != nil {
		return errors.Wrap(err, "create kafka consumer")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		Addr:              cfg.ProbeAddr,
		Handler:           mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("Outbox publisher running", zap.Duration("interval", cfg.Publisher.Interval))
		if err := publisher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "publisher")
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("Payment consumer running", zap.String("topic", cfg.Kafka.PaymentTopic))
		if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "consumer")
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("Probe server listening", zap.String("addr", cfg.ProbeAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "probe server")
		}
		return nil
	})

	// Graceful shutdown: flip readiness, drain, then stop the probe server.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Probe server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
