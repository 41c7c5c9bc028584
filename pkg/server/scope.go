package server

import (
	"context"
	"sync"
)

// activeScope holds the component currently handling a request or message.
// It is cleared by its release func, so contexts that outlive the handler
// (goroutines, stored closures) observe no active component.
type activeScope struct {
	mu   sync.RWMutex
	comp Component
}

type activeScopeKey struct{}

// withActiveComponent returns a context carrying comp as the active component
// and the release func that clears it. Callers defer release immediately.
func withActiveComponent(ctx context.Context, comp Component) (context.Context, func()) {
	scope := &activeScope{comp: comp}
	release := func() {
		scope.mu.Lock()
		scope.comp = nil
		scope.mu.Unlock()
	}
	return context.WithValue(ctx, activeScopeKey{}, scope), release
}

// ActiveComponent returns the component handling the current message or view
// request, or nil outside a dispatch or after it returned.
func ActiveComponent(ctx context.Context) Component {
	scope, ok := ctx.Value(activeScopeKey{}).(*activeScope)
	if !ok {
		return nil
	}
	scope.mu.RLock()
	defer scope.mu.RUnlock()
	return scope.comp
}
