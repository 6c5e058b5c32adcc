// internal/publisher/publisher.go

// Пакет publisher сериализует исход обработки задачи и отправляет его
// в результирующий топик (успех) либо в топик ошибок (сбой).
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Egor251/taskflow/internal/metrics"
	"github.com/Egor251/taskflow/internal/task"
	"github.com/Egor251/taskflow/pkg/kafka"
	"github.com/Egor251/taskflow/pkg/logger"
)

var tracer = otel.Tracer("publisher")

// Publisher публикует исходы обработки.
type Publisher struct {
	producer   kafka.Producer
	topic      string // топик успешных результатов
	errorTopic string // топик ошибок (topic + суффикс)
	processor  string // имя процессора для заголовков и envelope
	log        *logger.Logger
}

// New создаёт Publisher. errorTopic уже включает суффикс.
func New(producer kafka.Producer, topic, errorTopic, processorName string, log *logger.Logger) *Publisher {
	return &Publisher{
		producer:   producer,
		topic:      topic,
		errorTopic: errorTopic,
		processor:  processorName,
		log:        log.Named("publisher"),
	}
}

// MetadataFrom снимает метаданные источника с записи брокера.
// Вызывается на intake, до валидации.
func MetadataFrom(msg *kafka.Message) task.SourceMetadata {
	return task.SourceMetadata{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Timestamp: msg.Timestamp,
	}
}

// PublishSuccess отправляет Success-сообщение в результирующий топик.
// Сообщение ключуется task_id, чтобы результаты одной задачи попадали
// в один раздел.
func (p *Publisher) PublishSuccess(ctx context.Context, t *task.Task, result map[string]any) error {
	ctx, span := tracer.Start(ctx, "PublishSuccess",
		trace.WithAttributes(attribute.String("task_id", t.ID)))
	defer span.End()

	env := task.SuccessEnvelope{
		Status:    "completed",
		TaskID:    t.ID,
		Processor: p.processor,
		Result:    result,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Metadata:  t.Meta,
	}
	value, err := json.Marshal(env)
	if err != nil {
		span.RecordError(err)
		return &task.PublishError{Topic: p.topic, Err: err}
	}

	headers := map[string][]byte{
		"processor_type": []byte(p.processor),
		"task_id":        []byte(t.ID),
		"status":         []byte("success"),
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(t.ID), value, headers); err != nil {
		metrics.PublishErrors.Inc()
		span.RecordError(err)
		return &task.PublishError{Topic: p.topic, Err: err}
	}

	metrics.SuccessPublished.Inc()
	p.log.WithContext(ctx).Debug("success outcome published",
		zap.String("task_id", t.ID),
		zap.String("topic", p.topic),
	)
	return nil
}

// PublishFailure отправляет Failure-сообщение в топик ошибок.
// t может быть nil, если сбой случился до валидации; тогда контекст задачи
// в сообщение не попадает, но исходная нагрузка сохраняется целиком.
func (p *Publisher) PublishFailure(ctx context.Context, msg *kafka.Message, t *task.Task, cause error) error {
	ctx, span := tracer.Start(ctx, "PublishFailure",
		trace.WithAttributes(attribute.String("error_type", task.ErrorType(cause))))
	defer span.End()

	env := task.FailureEnvelope{
		ErrorType:       task.ErrorType(cause),
		ErrorMessage:    cause.Error(),
		OriginalMessage: string(msg.Value),
		MessageMetadata: MetadataFrom(msg),
		Stack:           task.Stack(cause),
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	if t != nil {
		env.Context = map[string]any{
			"task_data": map[string]any{
				"task_id":  t.ID,
				"data":     t.Payload,
				"priority": t.Priority,
			},
		}
	}

	value, err := json.Marshal(env)
	if err != nil {
		span.RecordError(err)
		return &task.PublishError{Topic: p.errorTopic, Err: err}
	}

	headers := map[string][]byte{
		"error_type":     []byte(env.ErrorType),
		"original_topic": []byte(msg.Topic),
		"timestamp":      []byte(env.Timestamp),
	}
	if err := p.producer.Publish(ctx, p.errorTopic, msg.Key, value, headers); err != nil {
		metrics.PublishErrors.Inc()
		span.RecordError(err)
		return &task.PublishError{Topic: p.errorTopic, Err: err}
	}

	metrics.FailurePublished.Inc()
	p.log.WithContext(ctx).Debug("failure outcome published",
		zap.String("error_type", env.ErrorType),
		zap.String("topic", p.errorTopic),
	)
	return nil
}
