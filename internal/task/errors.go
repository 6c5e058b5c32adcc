// internal/task/errors.go
package task

import (
	"errors"
	"fmt"
	"strings"
)

// Таксономия ошибок пайплайна. Ошибки валидации и обработки не ретраятся:
// они превращаются в Failure-сообщение, после чего смещение коммитится.

// DecodeError — полезная нагрузка не является валидным JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// SchemaError — нагрузка декодирована, но нарушает схему.
// Violations перечисляет все нарушения, а не только первое.
type SchemaError struct {
	Schema     string
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %q: %s", e.Schema, strings.Join(e.Violations, "; "))
}

// ProcessingError — ошибка (или паника) внутри TaskProcessor.
type ProcessingError struct {
	Processor string
	Err       error
	Stack     string // заполняется при восстановленной панике
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processor %q: %v", e.Processor, e.Err)
}
func (e *ProcessingError) Unwrap() error { return e.Err }

// PublishError — не удалось отправить результат обработки.
// Политика пайплайна: залогировать и всё равно закоммитить смещение.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish to %q: %v", e.Topic, e.Err) }
func (e *PublishError) Unwrap() error { return e.Err }

// ErrorType возвращает имя типа ошибки для поля error_type
// исходящего Failure-сообщения.
func ErrorType(err error) string {
	var (
		de *DecodeError
		se *SchemaError
		pe *ProcessingError
		ue *PublishError
	)
	switch {
	case errors.As(err, &de):
		return "DecodeError"
	case errors.As(err, &se):
		return "SchemaError"
	case errors.As(err, &pe):
		return "ProcessingError"
	case errors.As(err, &ue):
		return "PublishError"
	default:
		return "UnknownError"
	}
}

// Stack извлекает сохранённый стек из ProcessingError, если он есть.
func Stack(err error) string {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Stack
	}
	return ""
}
