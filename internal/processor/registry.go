// internal/processor/registry.go
package processor

import (
	"fmt"
	"sort"
	"sync"
)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register добавляет фабрику процессора в реестр. Вызывается из init()
// файлов реализаций; дубликат имени — паника на старте.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("processor: duplicate registration of %q", name))
	}
	factories[name] = f
}

// New создаёт процессор по имени из конфигурации.
func New(name string, deps Deps) (Processor, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("processor: unknown processor %q (known: %v)", name, known())
	}
	return f(deps)
}

func known() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
