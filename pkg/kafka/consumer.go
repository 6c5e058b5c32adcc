// pkg/kafka/consumer.go
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Egor251/taskflow/pkg/backoff"
	"github.com/Egor251/taskflow/pkg/logger"
)

// -----------------------------------------------------------------------------
// Prometheus-метрики
// -----------------------------------------------------------------------------

var consumerMetrics = struct {
	ConnectAttempts prometheus.Counter
	ConnectErrors   prometheus.Counter
	ConsumeErrors   prometheus.Counter
	Commits         prometheus.Counter
}{
	ConnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow", Subsystem: "kafka_consumer", Name: "connect_attempts_total",
		Help: "Kafka consumer group connect attempts",
	}),
	ConnectErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow", Subsystem: "kafka_consumer", Name: "connect_errors_total",
		Help: "Kafka consumer connect errors",
	}),
	ConsumeErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow", Subsystem: "kafka_consumer", Name: "consume_errors_total",
		Help: "Errors during consumption sessions",
	}),
	Commits: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow", Subsystem: "kafka_consumer", Name: "offset_commits_total",
		Help: "Manually committed record offsets",
	}),
}

var consumerTracer = otel.Tracer("kafka-consumer")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// ConsumerConfig содержит параметры Kafka ConsumerGroup.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Version string
	Backoff backoff.Config
}

func (c *ConsumerConfig) applyDefaults() {
	if c.Version == "" {
		c.Version = "2.8.0"
	}
}

func (c ConsumerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka consumer: brokers required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("kafka consumer: GroupID required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Consumer implementation
// -----------------------------------------------------------------------------

type kafkaConsumerGroup struct {
	group      sarama.ConsumerGroup
	log        *logger.Logger
	backoffCfg backoff.Config
}

// NewConsumer создаёт и подключает ConsumerGroup с ретраями.
//
// Auto-commit отключён принципиально: каждая запись подтверждается
// вызовом Message.Commit после публикации результата её обработки.
func NewConsumer(ctx context.Context, cfg ConsumerConfig, log *logger.Logger) (Consumer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-consumer")

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: invalid Version %q: %w", cfg.Version, err)
	}
	sarCfg := sarama.NewConfig()
	sarCfg.Version = version
	sarCfg.Consumer.Return.Errors = true
	sarCfg.Consumer.Offsets.AutoCommit.Enable = false
	sarCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	var group sarama.ConsumerGroup
	connectOp := func(ctx context.Context) error {
		consumerMetrics.ConnectAttempts.Inc()
		g, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sarCfg)
		if err != nil {
			consumerMetrics.ConnectErrors.Inc()
			return err
		}
		group = g
		return nil
	}

	ctxConn, span := consumerTracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers), attribute.String("group", cfg.GroupID)))
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, "kafka-connect", connectOp); err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("kafka consumer: connect failed: %w", err)
	}
	span.End()

	log.Info("kafka consumer group connected",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", cfg.GroupID),
	)
	return &kafkaConsumerGroup{group: group, log: log, backoffCfg: cfg.Backoff}, nil
}

// Consume запускает бесконечное чтение топиков, оборачивая сессии в backoff.
func (kc *kafkaConsumerGroup) Consume(ctx context.Context, topics []string, handler Handler) error {
	h := &consumerGroupHandler{ctx: ctx, handler: handler, log: kc.log}
	for {
		ctxSess, span := consumerTracer.Start(ctx, "ConsumeSession",
			trace.WithAttributes(attribute.StringSlice("topics", topics)))
		err := kc.group.Consume(ctxSess, topics, h)
		span.End()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			consumerMetrics.ConsumeErrors.Inc()
			kc.log.Error("consume session error", zap.Error(err))

			// Небольшая пауза перед следующей сессией
			pause := func(ctx context.Context) error {
				select {
				case <-time.After(100 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if berr := backoff.Execute(ctx, kc.backoffCfg, kc.log, "kafka-session-pause", pause); berr != nil {
				return fmt.Errorf("kafka consumer: pause between sessions failed: %w", berr)
			}
		}
	}
}

// Close закрывает ConsumerGroup.
func (kc *kafkaConsumerGroup) Close() error {
	return kc.group.Close()
}

// -----------------------------------------------------------------------------
// Internal handler
// -----------------------------------------------------------------------------

type consumerGroupHandler struct {
	ctx     context.Context
	handler Handler
	log     *logger.Logger
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for m := range claim.Messages() {
		ctxMsg := sess.Context()
		_, span := consumerTracer.Start(ctxMsg, "HandleMessage",
			trace.WithAttributes(
				attribute.String("topic", m.Topic),
				attribute.Int64("offset", m.Offset),
			),
		)

		headers := make(map[string][]byte, len(m.Headers))
		for _, hdr := range m.Headers {
			if hdr != nil && hdr.Key != nil && hdr.Value != nil {
				headers[string(hdr.Key)] = hdr.Value
			}
		}

		// MarkMessage + Commit безопасны из другой горутины, поэтому
		// воркер-пул может подтверждать запись уже после ENQUEUE.
		rec := m
		var once sync.Once
		commit := func() {
			once.Do(func() {
				sess.MarkMessage(rec, "")
				sess.Commit()
				consumerMetrics.Commits.Inc()
			})
		}

		msg := &Message{
			Key:       m.Key,
			Value:     m.Value,
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Timestamp: m.Timestamp,
			Headers:   headers,
			Commit:    commit,
		}

		if err := h.handler(h.ctx, msg); err != nil {
			span.RecordError(err)
			span.End()
			h.log.WithContext(ctxMsg).Error("handler aborted claim", zap.Error(err))
			return err
		}
		span.End()
	}
	return nil
}
