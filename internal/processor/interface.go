// internal/processor/interface.go

// Пакет processor определяет подключаемую бизнес-логику обработки задач.
// Конкретная реализация выбирается по имени из реестра на старте сервиса.
package processor

import (
	"context"

	"github.com/Egor251/taskflow/internal/task"
	"github.com/Egor251/taskflow/pkg/logger"
	"github.com/Egor251/taskflow/pkg/redis"
)

// Processor выполняет бизнес-логику одной задачи.
//
// Process может сколь угодно долго ждать I/O; окружение этого не
// ограничивает. Ошибка (или паника) перехватывается пайплайном и
// превращается в Failure-сообщение — до intake-цикла она не доходит.
type Processor interface {
	Name() string
	Process(ctx context.Context, t *task.Task) (map[string]any, error)
}

// Deps — зависимости, доступные фабрикам процессоров.
type Deps struct {
	Log   *logger.Logger
	Redis redis.Storage // nil, если redis не сконфигурирован
}

// Factory создаёт процессор из зависимостей.
type Factory func(deps Deps) (Processor, error)
