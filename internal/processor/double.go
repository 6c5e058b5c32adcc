// internal/processor/double.go
package processor

import (
	"context"

	"github.com/Egor251/taskflow/internal/task"
)

func init() {
	Register("double", func(deps Deps) (Processor, error) {
		return &doubleProcessor{}, nil
	})
}

// doubleProcessor удваивает каждое числовое поле нагрузки,
// остальные значения копирует как есть.
type doubleProcessor struct{}

func (p *doubleProcessor) Name() string { return "double" }

func (p *doubleProcessor) Process(_ context.Context, t *task.Task) (map[string]any, error) {
	result := make(map[string]any, len(t.Payload))
	for k, v := range t.Payload {
		switch n := v.(type) {
		case float64:
			result[k] = n * 2
		case int:
			result[k] = n * 2
		default:
			result[k] = v
		}
	}
	return result, nil
}
