// internal/pipeline/pipeline.go

// Пакет pipeline содержит два варианта конвейера обработки задач:
// строго последовательный (Sequential) и пул воркеров (Pool).
// Оба проходят одни и те же стадии: валидация → обработка → публикация
// исхода → коммит смещения. Ошибки валидации и обработки превращаются
// в Failure-сообщение и не прерывают поток: смещение коммитится и для
// неудачных задач (fail fast, без ретраев).
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/Egor251/taskflow/internal/metrics"
	"github.com/Egor251/taskflow/internal/processor"
	"github.com/Egor251/taskflow/internal/publisher"
	"github.com/Egor251/taskflow/internal/task"
	"github.com/Egor251/taskflow/pkg/kafka"
	"github.com/Egor251/taskflow/pkg/logger"
)

var tracer = otel.Tracer("pipeline")

// execute вызывает процессор, перехватывая и ошибки, и паники.
// Ни то, ни другое не должно дойти до intake-цикла.
func execute(ctx context.Context, proc processor.Processor, t *task.Task) (result map[string]any, perr *task.ProcessingError) {
	defer func() {
		if r := recover(); r != nil {
			perr = &task.ProcessingError{
				Processor: proc.Name(),
				Err:       fmt.Errorf("panic: %v", r),
				Stack:     string(debug.Stack()),
			}
		}
	}()

	res, err := proc.Process(ctx, t)
	if err != nil {
		return nil, &task.ProcessingError{Processor: proc.Name(), Err: err}
	}
	return res, nil
}

// failAndCommit публикует Failure-сообщение и коммитит смещение.
// Ошибка публикации логируется, но коммит выполняется в любом случае:
// плохое сообщение не должно блокировать поток.
func failAndCommit(ctx context.Context, pub *publisher.Publisher, log *logger.Logger,
	msg *kafka.Message, t *task.Task, cause error) {

	if err := pub.PublishFailure(ctx, msg, t, cause); err != nil {
		log.WithContext(ctx).Error("failure outcome publish failed, committing anyway",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
	msg.Commit()
}

// runTask выполняет обработку валидированной задачи: процессор →
// публикация исхода → коммит. Используется обоими конвейерами.
func runTask(ctx context.Context, proc processor.Processor, pub *publisher.Publisher,
	log *logger.Logger, t *task.Task, msg *kafka.Message) {

	ctx = logger.ContextWithTaskID(ctx, t.ID)
	ctx, span := tracer.Start(ctx, "RunTask")
	defer span.End()

	start := time.Now()

	result, perr := execute(ctx, proc, t)
	if perr != nil {
		metrics.ProcessErrors.Inc()
		span.RecordError(perr)
		log.WithContext(ctx).Error("task processing failed", zap.Error(perr))
		failAndCommit(ctx, pub, log, msg, t, perr)
		return
	}

	if err := pub.PublishSuccess(ctx, t, result); err != nil {
		// Политика: лог и коммит. Потеря результата наблюдаема через
		// метрику publish_errors_total.
		span.RecordError(err)
		log.WithContext(ctx).Error("success outcome publish failed, committing anyway",
			zap.Error(err))
	} else {
		metrics.ProcessedTasks.Inc()
	}

	metrics.ProcessingLatency.Observe(time.Since(start).Seconds())
	msg.Commit()
}
