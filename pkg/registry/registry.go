package registry

import (
	"sort"
	"sync"
)

// Registry implements StrategyRegistry. Each engine gets its own value; there is
// no package-level instance.
type Registry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds or replaces the strategy for a node type
func (r *Registry) Register(nodeType string, strategy Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.strategies[nodeType] = strategy
}

// GetStrategy returns the strategy for a node type
func (r *Registry) GetStrategy(nodeType string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	strategy, exists := r.strategies[nodeType]
	if !exists {
		return nil, &UnknownStrategyError{Type: nodeType}
	}

	return strategy, nil
}

// Types returns the registered node types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Strings(types)

	return types
}
