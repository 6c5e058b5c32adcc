// internal/schema/schema.go

// Пакет schema реализует декларативную валидацию входящих сообщений.
// Схема выбирается по имени из закрытого реестра на старте сервиса:
// никакой динамической загрузки кода по строке.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/Egor251/taskflow/internal/task"
)

// FieldType — допустимый тип значения поля в JSON-нагрузке.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeAny     FieldType = "any"
)

// Field описывает одно поле схемы.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Default  any // применяется, если поле отсутствует и не Required
}

// Schema — декларация формы входящего запроса.
type Schema struct {
	Name         string
	Fields       []Field
	AllowUnknown bool // false → неизвестные поля считаются нарушением
}

// Validate декодирует raw, проверяет его по схеме и собирает Task
// с прикреплёнными метаданными источника. Чистая функция: не имеет
// побочных эффектов и не трогает брокер.
//
// Все нарушения схемы собираются в один SchemaError, а не только первое.
func (s *Schema) Validate(raw []byte, meta task.SourceMetadata) (*task.Task, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &task.DecodeError{Err: err}
	}

	var violations []string

	declared := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		declared[f.Name] = f

		v, ok := payload[f.Name]
		if !ok {
			if f.Required {
				violations = append(violations, fmt.Sprintf("%s: required field is missing", f.Name))
			} else if f.Default != nil {
				payload[f.Name] = f.Default
			}
			continue
		}
		if !matchesType(v, f.Type) {
			violations = append(violations,
				fmt.Sprintf("%s: expected %s, got %s", f.Name, f.Type, jsonTypeName(v)))
		}
	}

	if !s.AllowUnknown {
		var unknown []string
		for name := range payload {
			if _, ok := declared[name]; !ok {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		for _, name := range unknown {
			violations = append(violations, fmt.Sprintf("%s: unexpected field", name))
		}
	}

	if len(violations) > 0 {
		return nil, &task.SchemaError{Schema: s.Name, Violations: violations}
	}

	return buildTask(payload, meta), nil
}

// buildTask переносит нормализованную нагрузку в Task.
// Наличие и типы служебных полей уже гарантированы схемой.
func buildTask(payload map[string]any, meta task.SourceMetadata) *task.Task {
	t := &task.Task{Meta: meta}
	if v, ok := payload["task_id"].(string); ok {
		t.ID = v
	}
	if v, ok := payload["data"].(map[string]any); ok {
		t.Payload = v
	}
	if v, ok := payload["priority"].(float64); ok {
		t.Priority = int(v)
	} else if v, ok := payload["priority"].(int); ok {
		t.Priority = v
	}
	return t
}

func matchesType(v any, ft FieldType) bool {
	switch ft {
	case TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeNumber:
		return isNumeric(v)
	case TypeInteger:
		switch n := v.(type) {
		case float64:
			return n == math.Trunc(n)
		case int:
			return true
		default:
			return false
		}
	default:
		return false
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, int:
		return true
	default:
		return false
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
