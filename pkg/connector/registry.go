package connector

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrConnectorNotFound is returned when no connector is registered under a name.
var ErrConnectorNotFound = errors.New("connector not found")

// Registry maps connector names to implementations. It is filled at startup and
// read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector)}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the connector under its own name.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Name()] = c
}

func (r *Registry) Get(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectorNotFound, name)
	}
	return c, nil
}

// Names lists registered connectors in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
