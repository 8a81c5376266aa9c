// Package actuator provides the registry of IR transports. Devices name a
// transport in their configuration and the registry builds the matching
// dispatch.Actuator. Registrations carry a priority so a private build can
// override a built-in transport under the same name.
package actuator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"irfan/internal/dispatch"
)

// Priority constants for transport registration.
// Higher priority values override lower priority transports with the same name.
const (
	PriorityDefault  = 0
	PriorityOverride = 100
)

// ErrNotRegistered is returned when no transport has the requested name.
var ErrNotRegistered = errors.New("transport not registered")

// Factory creates an actuator from the shared connections.
type Factory func(ctx *Context) (dispatch.Actuator, error)

// Info contains metadata about a registered transport.
type Info struct {
	// Name is the value devices use in their transport field.
	Name string

	// Description is a human-readable description of the transport.
	Description string

	// Priority determines which registration wins for a name. Higher wins.
	Priority int

	// Factory creates the actuator.
	Factory Factory
}

// Registry manages transport registration and instantiation.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Info
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[string]Info),
	}
}

// Register adds a transport to the registry.
// If a transport with the same name already exists, the one with higher
// priority wins. If priorities are equal, the later registration wins.
// It reports whether info was installed.
func (r *Registry) Register(info Info) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Name == "" {
		return false, fmt.Errorf("transport name cannot be empty")
	}
	if info.Factory == nil {
		return false, fmt.Errorf("transport %s: factory cannot be nil", info.Name)
	}

	if existing, exists := r.transports[info.Name]; exists && info.Priority < existing.Priority {
		return false, nil
	}

	r.transports[info.Name] = info
	return true, nil
}

// Get returns the info for a given name.
func (r *Registry) Get(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.transports[name]
	return info, ok
}

// Names returns the names of all registered transports, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the actuator registered under name. In read-only mode the
// actuator is wrapped so that payloads are logged and never sent.
func (r *Registry) Create(name string, ctx *Context) (dispatch.Actuator, error) {
	info, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}

	a, err := info.Factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport %s: %w", name, err)
	}

	if ctx.ReadOnly {
		return newReadOnly(name, ctx.Logger), nil
	}
	return a, nil
}
