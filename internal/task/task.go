// internal/task/task.go

// Пакет task описывает единицу работы сервиса и формы исходящих сообщений.
package task

import (
	"encoding/json"
	"time"
)

// SourceMetadata — неизменяемая запись о происхождении задачи.
// Прикрепляется на этапе intake и дальше не модифицируется.
type SourceMetadata struct {
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task — валидированная задача, живущая в памяти ровно одну попытку обработки.
type Task struct {
	ID       string         // task_id, задаётся отправителем
	Payload  map[string]any // бизнес-содержимое ("data")
	Priority int            // информационное поле, поведение от него не зависит
	Meta     SourceMetadata // происхождение записи
}

// requestWire — wire-форма входящего запроса.
type requestWire struct {
	TaskID   string         `json:"task_id"`
	Data     map[string]any `json:"data"`
	Priority int            `json:"priority"`
}

// EncodeRequest сериализует задачу обратно в форму входящего запроса.
// Валидация результата даёт идентичную задачу (round-trip).
func (t *Task) EncodeRequest() ([]byte, error) {
	return json.Marshal(requestWire{
		TaskID:   t.ID,
		Data:     t.Payload,
		Priority: t.Priority,
	})
}

// SuccessEnvelope — исходящее сообщение об успешной обработке.
type SuccessEnvelope struct {
	Status    string         `json:"status"` // всегда "completed"
	TaskID    string         `json:"task_id"`
	Processor string         `json:"processor"`
	Result    map[string]any `json:"result"`
	Timestamp string         `json:"timestamp"` // RFC3339, UTC
	Metadata  SourceMetadata `json:"metadata"`
}

// FailureEnvelope — исходящее сообщение об ошибке обработки.
// Несёт достаточно контекста для replay и ручного разбора.
type FailureEnvelope struct {
	ErrorType       string         `json:"error_type"`
	ErrorMessage    string         `json:"error_message"`
	OriginalMessage string         `json:"original_message"`
	MessageMetadata SourceMetadata `json:"message_metadata"`
	Stack           string         `json:"stack,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
	Timestamp       string         `json:"timestamp"`
}
