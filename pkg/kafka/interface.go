// pkg/kafka/interface.go
//
// Пакет kafka задаёт минимальные контракты обмена сообщениями, не тянет
// за собой Sarama и никак не зависит от конкретной реализации.
package kafka

import (
	"context"
	"time"
)

// Message представляет запись, полученную из Kafka.
type Message struct {
	Key       []byte            // ключ сообщения (может быть nil)
	Value     []byte            // полезная нагрузка
	Topic     string            // имя топика
	Partition int32             // раздел
	Offset    int64             // смещение
	Timestamp time.Time         // время записи у брокера
	Headers   map[string][]byte // заголовки записи

	// Commit подтверждает смещение именно этой записи.
	// Auto-commit отключён: пайплайн сам решает, когда фиксировать прогресс,
	// уже после публикации результата. Безопасен для вызова из другой
	// горутины; повторные вызовы игнорируются.
	Commit func()
}

// Handler вызывается для каждой полученной записи. Ненулевая ошибка
// прерывает текущую сессию чтения; запись при этом не коммитится.
type Handler func(ctx context.Context, msg *Message) error

// Consumer описывает читателя одного или нескольких топиков.
//
//	Consume(ctx, topics, handler) блокирует, пока:
//	  • контекст не будет отменён;
//	  • либо произойдёт невосстанавливаемая ошибка, которую метод вернёт.
type Consumer interface {
	Consume(ctx context.Context, topics []string, handler Handler) error
	Close() error
}

// Producer публикует сообщения в Kafka.
type Producer interface {
	// Publish гарантирует доставку согласно политике RequiredAcks;
	// возможен внутренний retry согласно стратегии back-off.
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string][]byte) error
	// Ping проверяет достижимость кластера (обновление метаданных).
	Ping(ctx context.Context) error
	Close() error
}
