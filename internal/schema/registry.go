// internal/schema/registry.go
package schema

import (
	"fmt"
	"sort"
	"sync"
)

var (
	mu       sync.RWMutex
	registry = make(map[string]*Schema)
)

// Register добавляет схему в реестр. Повторная регистрация имени — ошибка
// программиста, поэтому паника на старте.
func Register(s *Schema) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[s.Name]; dup {
		panic(fmt.Sprintf("schema: duplicate registration of %q", s.Name))
	}
	registry[s.Name] = s
}

// Resolve возвращает схему по имени из конфигурации.
func Resolve(name string) (*Schema, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("schema: unknown schema %q (known: %v)", name, known())
	}
	return s, nil
}

func known() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	// "request" — базовая форма запроса: task_id + data обязательны,
	// priority опционален (дефолт 1), лишние поля запрещены.
	Register(&Schema{
		Name: "request",
		Fields: []Field{
			{Name: "task_id", Type: TypeString, Required: true},
			{Name: "data", Type: TypeObject, Required: true},
			{Name: "priority", Type: TypeInteger, Default: 1},
		},
	})
}
