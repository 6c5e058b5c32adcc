// internal/processor/echo.go
package processor

import (
	"context"

	"github.com/Egor251/taskflow/internal/task"
)

func init() {
	Register("echo", func(deps Deps) (Processor, error) {
		return &echoProcessor{}, nil
	})
}

// echoProcessor возвращает нагрузку задачи без изменений.
// Полезен для smoke-проверок развёрнутого пайплайна.
type echoProcessor struct{}

func (p *echoProcessor) Name() string { return "echo" }

func (p *echoProcessor) Process(_ context.Context, t *task.Task) (map[string]any, error) {
	result := make(map[string]any, len(t.Payload))
	for k, v := range t.Payload {
		result[k] = v
	}
	return result, nil
}
