package server

import (
	"fmt"
	"strings"
	"sync"
)

// Factory builds a component instance for one session.
// The socket is the session's shared socket, or nil for request-scoped views.
type Factory func(socket *Socket) Component

// Registration binds a component type to its mount path and factory.
type Registration struct {
	TypeID  string
	Path    string
	Factory Factory
}

// SocketPath returns the WebSocket endpoint path for the component.
func (r Registration) SocketPath() string {
	return r.Path + "/@ws/"
}

// Registry maps component type ids to registrations.
// It is filled at startup and frozen before the first request is served.
type Registry struct {
	mu      sync.RWMutex
	frozen  bool
	entries map[string]Registration
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Registration),
	}
}

// NormalizePath turns a mount path into the form used for routing:
// a leading slash, no trailing slash, and "" for the root.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimRight(path, "/")
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// Add registers a component type.
func (r *Registry) Add(typeID, path string, factory Factory) error {
	if strings.TrimSpace(typeID) == "" || factory == nil {
		return fmt.Errorf("%w: type %q", ErrInvalidRegistration, typeID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot add %q", ErrRegistryFrozen, typeID)
	}
	if _, exists := r.entries[typeID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateComponent, typeID)
	}

	path = NormalizePath(path)
	for _, reg := range r.entries {
		if reg.Path == path {
			return fmt.Errorf("%w: path %q already used by %q", ErrDuplicateComponent, path, reg.TypeID)
		}
	}

	r.entries[typeID] = Registration{
		TypeID:  typeID,
		Path:    path,
		Factory: factory,
	}
	r.order = append(r.order, typeID)
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the registration for a type id.
func (r *Registry) Lookup(typeID string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[typeID]
	return reg, ok
}

// Types returns the registered type ids in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns the registrations in registration order.
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
