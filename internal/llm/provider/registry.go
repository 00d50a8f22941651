package provider

import (
	"fmt"
	"sort"
	"sync"
)

// FactoryFunc builds a provider from its configuration map.
type FactoryFunc func(config map[string]any) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]FactoryFunc)
)

// RegisterFactory registers a provider factory under a name. Providers call
// this from init so that configuration can select them by name.
func RegisterFactory(name string, factory FactoryFunc) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// New builds a provider by name using its registered factory.
func New(name string, config map[string]any) (Provider, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider '%s' not registered", name)
	}
	return factory(config)
}

// List returns the registered provider names, sorted.
func List() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
