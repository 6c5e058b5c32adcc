// internal/app/app.go

// Пакет app собирает сервис из компонентов: конфиг → телеметрия →
// хранилища → Kafka → конвейер → HTTP. Остановка идёт в обратном
// порядке: сначала перестаём читать, затем доводим начатое, затем
// закрываем соединения.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Egor251/taskflow/internal/config"
	"github.com/Egor251/taskflow/internal/metrics"
	"github.com/Egor251/taskflow/internal/pipeline"
	"github.com/Egor251/taskflow/internal/processor"
	"github.com/Egor251/taskflow/internal/publisher"
	"github.com/Egor251/taskflow/internal/schema"
	"github.com/Egor251/taskflow/pkg/httpserver"
	"github.com/Egor251/taskflow/pkg/kafka"
	"github.com/Egor251/taskflow/pkg/logger"
	"github.com/Egor251/taskflow/pkg/redis"
	"github.com/Egor251/taskflow/pkg/telemetry"
)

// runnable — общий контракт обоих конвейеров.
type runnable interface {
	Run(ctx context.Context) error
}

// Run блокирует до отмены контекста или фатальной ошибки компонента.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	metrics.Register(nil)

	/* ---------- Telemetry ---------- */

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Insecure:       cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("telemetry shutdown failed", zap.Error(err))
		}
	}()

	/* ---------- Redis (опционально) ---------- */

	var store redis.Storage
	if cfg.Redis.URL != "" {
		store, err = redis.New(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error("redis close failed", zap.Error(err))
			}
		}()
	}

	/* ---------- Schema + Processor ---------- */

	sch, err := schema.Resolve(cfg.Pipeline.ValidatorSchema)
	if err != nil {
		return err
	}
	proc, err := processor.New(cfg.Pipeline.Processor, processor.Deps{
		Log:   log,
		Redis: store,
	})
	if err != nil {
		return err
	}

	/* ---------- Kafka ---------- */

	consumer, err := kafka.NewConsumer(ctx, kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.ConsumerGroup,
		Version: cfg.Kafka.Version,
		Backoff: cfg.Kafka.Backoff,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Error("kafka consumer close failed", zap.Error(err))
		}
	}()

	producer, err := kafka.NewProducer(ctx, kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.Acks,
		Timeout:      cfg.Kafka.Timeout,
		Compression:  cfg.Kafka.Compression,
		Backoff:      cfg.Kafka.Backoff,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Error("kafka producer close failed", zap.Error(err))
		}
	}()

	pub := publisher.New(producer, cfg.Kafka.ProducerTopic, cfg.Kafka.ErrorTopic(),
		cfg.Pipeline.Processor, log)

	/* ---------- Pipeline ---------- */

	var pipe runnable
	switch cfg.Pipeline.Mode {
	case "pool":
		pipe = pipeline.NewPool(consumer, cfg.Kafka.ConsumerTopic, sch, proc, pub,
			cfg.Pipeline.MaxWorkers, cfg.Pipeline.QueueSize, log)
	default:
		pipe = pipeline.NewSequential(consumer, cfg.Kafka.ConsumerTopic, sch, proc, pub, log)
	}

	/* ---------- HTTP (metrics + health) ---------- */

	httpSrv, err := httpserver.New(httpserver.Config{
		Addr:            fmt.Sprintf(":%d", cfg.HTTP.Port),
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		MetricsPath:     cfg.HTTP.MetricsPath,
		HealthzPath:     cfg.HTTP.HealthzPath,
		ReadyzPath:      cfg.HTTP.ReadyzPath,
	}, func() error { return producer.Ping(context.Background()) }, log)
	if err != nil {
		return fmt.Errorf("httpserver: %w", err)
	}

	/* ---------- Run ---------- */

	log.Info("service started",
		zap.String("mode", cfg.Pipeline.Mode),
		zap.String("processor", cfg.Pipeline.Processor),
		zap.String("consumer_topic", cfg.Kafka.ConsumerTopic),
		zap.String("producer_topic", cfg.Kafka.ProducerTopic),
		zap.String("error_topic", cfg.Kafka.ErrorTopic()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipe.Run(ctx) })
	g.Go(func() error { return httpSrv.Start(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("service stopped")
	return nil
}
