package sources

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[SourceType]SourceFactory)
	mu       sync.RWMutex
)

// Register adds a feed factory to the registry
func Register(sourceType SourceType, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[sourceType] = factory
}

// Create creates a new feed instance. The name is stored in the config under
// "name" so factories can pick it up.
func Create(sourceType, name string, config map[string]interface{}) (Feed, error) {
	mu.RLock()
	factory, ok := registry[SourceType(sourceType)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSourceType, sourceType)
	}

	cfg := make(map[string]interface{}, len(config)+1)
	for k, v := range config {
		cfg[k] = v
	}
	if name != "" {
		cfg["name"] = name
	}

	return factory(cfg)
}

// List returns all registered source types
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Catalog holds the configured feeds by name. Admin source changes may only
// pick feeds from it.
type Catalog map[string]Feed

// Get returns the feed registered under name.
func (c Catalog) Get(name string) (Feed, bool) {
	f, ok := c[name]
	return f, ok
}

// Names returns the sorted feed names.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
