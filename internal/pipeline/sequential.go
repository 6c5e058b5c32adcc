// internal/pipeline/sequential.go
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/Egor251/taskflow/internal/metrics"
	"github.com/Egor251/taskflow/internal/processor"
	"github.com/Egor251/taskflow/internal/publisher"
	"github.com/Egor251/taskflow/internal/schema"
	"github.com/Egor251/taskflow/pkg/kafka"
	"github.com/Egor251/taskflow/pkg/logger"
)

// Sequential обрабатывает задачи строго по одной: следующая запись не
// читается, пока смещение текущей не закоммичено. Глобальный порядок
// исходов в рамках раздела совпадает с порядком поступления.
type Sequential struct {
	consumer kafka.Consumer
	topic    string
	schema   *schema.Schema
	proc     processor.Processor
	pub      *publisher.Publisher
	log      *logger.Logger
}

// NewSequential собирает последовательный конвейер из готовых компонентов.
func NewSequential(consumer kafka.Consumer, topic string, sch *schema.Schema,
	proc processor.Processor, pub *publisher.Publisher, log *logger.Logger) *Sequential {

	return &Sequential{
		consumer: consumer,
		topic:    topic,
		schema:   sch,
		proc:     proc,
		pub:      pub,
		log:      log.Named("sequential"),
	}
}

// Run блокирует до отмены контекста или невосстановимой ошибки транспорта.
func (s *Sequential) Run(ctx context.Context) error {
	s.log.Info("sequential pipeline started",
		zap.String("topic", s.topic),
		zap.String("processor", s.proc.Name()),
	)
	return s.consumer.Consume(ctx, []string{s.topic}, func(ctx context.Context, msg *kafka.Message) error {
		s.handle(ctx, msg)
		return nil
	})
}

// handle проводит одну запись через все стадии. Ошибки стадий
// конвертируются в Failure-сообщения и никогда не поднимаются выше.
func (s *Sequential) handle(ctx context.Context, msg *kafka.Message) {
	metrics.ConsumedMessages.Inc()

	t, err := s.schema.Validate(msg.Value, publisher.MetadataFrom(msg))
	if err != nil {
		// Плохое сообщение не блокирует поток: Failure + коммит,
		// стадия PROCESSING пропускается.
		metrics.ValidationErrors.Inc()
		s.log.WithContext(ctx).Warn("validation failed",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		failAndCommit(ctx, s.pub, s.log, msg, nil, err)
		return
	}

	runTask(ctx, s.proc, s.pub, s.log, t, msg)
}
