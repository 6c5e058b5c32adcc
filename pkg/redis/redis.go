// pkg/redis/redis.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Egor251/taskflow/pkg/backoff"
	"github.com/Egor251/taskflow/pkg/logger"
)

var (
	redisMetrics = struct {
		OpErrors         prometheus.Counter
		OperationLatency prometheus.Histogram
	}{
		OpErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow", Subsystem: "redis", Name: "op_errors_total",
			Help: "Total number of failed Redis operations",
		}),
		OperationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskflow", Subsystem: "redis", Name: "operation_latency_seconds",
			Help:    "Latency of Redis operations",
			Buckets: prometheus.DefBuckets,
		}),
	}
	tracer = otel.Tracer("redis-storage")
)

// Storage описывает key-value хранилище меток «задача уже встречалась».
type Storage interface {
	// SetFirstSeen ставит метку для ключа с TTL.
	// Возвращает true, если ключ появился впервые; false — если уже был.
	SetFirstSeen(ctx context.Context, key string) (bool, error)
	Close() error
}

// Config хранит параметры подключения к Redis.
type Config struct {
	URL     string         `mapstructure:"url"` // e.g. "redis://host:6379/0"
	TTL     time.Duration  `mapstructure:"ttl"`
	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
}

func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("redis: URL required")
	}
	return nil
}

type redisStorage struct {
	client     *redis.Client
	ttl        time.Duration
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New создает Storage, соединяется с Redis, с retry и метриками.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Storage, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("redis")

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	client := redis.NewClient(opts)

	op := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	ctxConn, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.String("url", cfg.URL)))
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, "redis-connect", op); err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	span.End()
	log.Info("redis: connected", zap.String("url", cfg.URL))

	return &redisStorage{
		client:     client,
		ttl:        cfg.TTL,
		log:        log,
		backoffCfg: cfg.Backoff,
	}, nil
}

func (r *redisStorage) SetFirstSeen(ctx context.Context, key string) (bool, error) {
	ctxOp, span := tracer.Start(ctx, "SetFirstSeen", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	start := time.Now()

	var first bool
	op := func(ctx context.Context) error {
		ok, err := r.client.SetNX(ctx, key, "1", r.ttl).Result()
		if err != nil {
			return err
		}
		first = ok
		return nil
	}
	if err := backoff.Execute(ctxOp, r.backoffCfg, r.log, "redis-setnx", op); err != nil {
		redisMetrics.OpErrors.Inc()
		r.log.WithContext(ctx).Error("redis SETNX failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		return false, err
	}
	redisMetrics.OperationLatency.Observe(time.Since(start).Seconds())
	return first, nil
}

func (r *redisStorage) Close() error {
	return r.client.Close()
}
