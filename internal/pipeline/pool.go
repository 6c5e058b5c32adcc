// internal/pipeline/pool.go
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Egor251/taskflow/internal/metrics"
	"github.com/Egor251/taskflow/internal/processor"
	"github.com/Egor251/taskflow/internal/publisher"
	"github.com/Egor251/taskflow/internal/schema"
	"github.com/Egor251/taskflow/internal/task"
	"github.com/Egor251/taskflow/pkg/kafka"
	"github.com/Egor251/taskflow/pkg/logger"
)

// workItem — элемент очереди пула: валидированная задача плюс запись,
// смещение которой закоммитит воркер. seq — монотонный номер intake,
// нужен только для диагностики: FIFO-очередь сохраняет порядок сама.
type workItem struct {
	t   *task.Task
	msg *kafka.Message
	seq uint64
}

// Pool — конвейер с пулом воркеров. Один intake-цикл валидирует записи
// и складывает их в ограниченную очередь; N воркеров разбирают очередь
// и доводят каждую задачу до опубликованного исхода и коммита.
//
// Порядок постановки в очередь совпадает с порядком поступления, но
// порядок завершения между воркерами не гарантируется: это осознанный
// размен строгого порядка на пропускную способность.
type Pool struct {
	consumer kafka.Consumer
	topic    string
	schema   *schema.Schema
	proc     processor.Processor
	pub      *publisher.Publisher
	log      *logger.Logger

	workers int
	queue   chan workItem
	seq     atomic.Uint64
}

// NewPool собирает пул. workers < 1 трактуется как 1 (поведение при этом
// эквивалентно Sequential); queueSize < 1 → 2×workers.
func NewPool(consumer kafka.Consumer, topic string, sch *schema.Schema,
	proc processor.Processor, pub *publisher.Publisher,
	workers, queueSize int, log *logger.Logger) *Pool {

	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers * 2
	}
	return &Pool{
		consumer: consumer,
		topic:    topic,
		schema:   sch,
		proc:     proc,
		pub:      pub,
		log:      log.Named("pool"),
		workers:  workers,
		queue:    make(chan workItem, queueSize),
	}
}

// Run блокирует до отмены контекста или невосстановимой ошибки транспорта.
//
// Порядок остановки: сначала завершается intake-цикл, затем закрывается
// очередь — каждый воркер дочитывает её до конца, доводит текущую задачу
// до коммита и выходит. Ни один воркер не обрывается посреди задачи.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("worker pool started",
		zap.String("topic", p.topic),
		zap.String("processor", p.proc.Name()),
		zap.Int("workers", p.workers),
		zap.Int("queue_size", cap(p.queue)),
	)

	// Воркеры живут на неотменяемом контексте: начатая задача всегда
	// допубликовывается и коммитится даже после сигнала остановки.
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 1; i <= p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.workerLoop(workCtx, id)
		}(i)
	}

	err := p.consumer.Consume(ctx, []string{p.topic}, p.intake)

	close(p.queue)
	wg.Wait()
	p.log.Info("worker pool stopped")
	return err
}

// intake валидирует запись и ставит её в очередь. Заполненная очередь
// блокирует постановку — и, как следствие, чтение из брокера: это
// единственный механизм backpressure.
func (p *Pool) intake(ctx context.Context, msg *kafka.Message) error {
	metrics.ConsumedMessages.Inc()

	t, err := p.schema.Validate(msg.Value, publisher.MetadataFrom(msg))
	if err != nil {
		// Невалидные записи не занимают слот воркера: Failure + коммит
		// прямо из intake-цикла.
		metrics.ValidationErrors.Inc()
		p.log.WithContext(ctx).Warn("validation failed at intake",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		failAndCommit(ctx, p.pub, p.log, msg, nil, err)
		return nil
	}

	item := workItem{t: t, msg: msg, seq: p.seq.Add(1)}
	select {
	case p.queue <- item:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		// Запись не закоммичена: после рестарта она будет доставлена
		// повторно (at-least-once).
		return ctx.Err()
	}
}

// workerLoop разбирает очередь до её закрытия.
func (p *Pool) workerLoop(ctx context.Context, id int) {
	ctx = logger.ContextWithWorkerID(ctx, id)
	p.log.WithContext(ctx).Debug("worker started", zap.Int("worker_id", id))

	for item := range p.queue {
		metrics.QueueDepth.Set(float64(len(p.queue)))
		p.log.WithContext(ctx).Debug("task dequeued",
			zap.String("task_id", item.t.ID),
			zap.Uint64("intake_seq", item.seq),
		)
		runTask(ctx, p.proc, p.pub, p.log, item.t, item.msg)
	}

	p.log.WithContext(ctx).Debug("worker stopped", zap.Int("worker_id", id))
}
