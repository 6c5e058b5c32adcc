// internal/processor/dedup.go
package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Egor251/taskflow/internal/task"
	"github.com/Egor251/taskflow/pkg/logger"
	"github.com/Egor251/taskflow/pkg/redis"
)

func init() {
	Register("dedup", func(deps Deps) (Processor, error) {
		if deps.Redis == nil {
			return nil, fmt.Errorf("processor dedup: redis storage is required, set redis.url")
		}
		return &dedupProcessor{storage: deps.Redis, log: deps.Log.Named("dedup")}, nil
	})
}

// dedupProcessor помечает task_id в Redis и сообщает, встречалась ли
// задача раньше. Система работает в режиме at-least-once, поэтому
// повторная доставка — штатная ситуация, которую удобно выявлять здесь.
type dedupProcessor struct {
	storage redis.Storage
	log     *logger.Logger
}

func (p *dedupProcessor) Name() string { return "dedup" }

func (p *dedupProcessor) Process(ctx context.Context, t *task.Task) (map[string]any, error) {
	first, err := p.storage.SetFirstSeen(ctx, "task:"+t.ID)
	if err != nil {
		return nil, fmt.Errorf("dedup: mark task %q: %w", t.ID, err)
	}
	if !first {
		p.log.WithContext(ctx).Warn("duplicate task detected", zap.String("task_id", t.ID))
	}
	return map[string]any{
		"task_id":   t.ID,
		"duplicate": !first,
	}, nil
}
