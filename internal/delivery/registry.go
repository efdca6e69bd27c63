// internal/delivery/registry.go
package delivery

import (
	"fmt"
	"strings"
	"sync"
)

// Handler delivers a rendered output message to a surface identified by
// targetKey.
type Handler func(targetKey, message string) error

// Registry routes session output to the appropriate delivery handler
// based on target key prefix (e.g. "telegram:", "stdout:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for target keys starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver finds the handler matching the target key prefix and calls it.
// Returns an error if no handler is registered for the prefix.
func (r *Registry) Deliver(targetKey, message string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(targetKey, prefix) {
			return handler(targetKey, message)
		}
	}
	return fmt.Errorf("no delivery handler for target key: %s", targetKey)
}
