package connector

import (
	"fmt"
	"sync"

	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
)

// Registry maps engine types to connectors. Adding a source type is a
// registration, not a new switch arm.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds a connector under its engine type, replacing any
// previous registration for the same type.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.EngineType()] = c
}

// RegisterWithType adds a connector under an explicit engine type,
// useful for aliasing legacy type names.
func (r *Registry) RegisterWithType(c Connector, engineType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[engineType] = c
}

// Get returns the connector registered for engineType.
func (r *Registry) Get(engineType string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[engineType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", sdkerrors.ErrUnknownEngine, engineType)
	}
	return c, nil
}

// EngineTypes lists the registered engine types.
func (r *Registry) EngineTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connectors))
	for t := range r.connectors {
		out = append(out, t)
	}
	return out
}
