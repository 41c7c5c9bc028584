package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
)

// ComponentState is the lifecycle state of a component instance.
type ComponentState int32

const (
	// StateUnbound is the state right after construction.
	StateUnbound ComponentState = iota
	// StateBound means the component is linked to its session socket.
	StateBound
	// StateActive means the component handled initialize or activate.
	StateActive
	// StateClosed means the owning session was torn down.
	StateClosed
)

// String returns the state name.
func (s ComponentState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Component event names.
const (
	EventBeforeRequest = "beforeRequest"
	EventAfterRequest  = "afterRequest"
	EventMessage       = "message"
	EventActivate      = "activate"
	EventClose         = "close"
)

// MessageEvent returns the event name fired for one message type,
// e.g. MessageEvent("ping") == "message:ping".
func MessageEvent(messageType string) string {
	return EventMessage + ":" + messageType
}

// ComponentEvent is passed to component listeners.
type ComponentEvent struct {
	Name      string
	Component Component
	Message   *protocol.Message // message events and activate
	Request   *http.Request     // request events
	Err       error             // afterRequest: error returned by Show
}

// Listener handles a component event.
type Listener func(ctx context.Context, ev *ComponentEvent) error

// Component is the server-side state for one UI component within one session.
//
// Implementations embed Base, which supplies every method; types override
// HandleMessage, Activate or Show to add behavior.
type Component interface {
	// LinkSocket binds the component to its session socket.
	LinkSocket(socket *Socket)
	// Socket returns the linked socket, or nil.
	Socket() *Socket
	// TypeID returns the registered component type.
	TypeID() string
	// State returns the lifecycle state.
	State() ComponentState

	// Activate is called for "activate" messages.
	Activate(ctx context.Context, msg *protocol.Message) error
	// HandleMessage receives every message that is not initialize/activate/close.
	HandleMessage(ctx context.Context, msg *protocol.Message) error
	// Show serves an HTTP view under the component's mount path.
	Show(ctx context.Context, w http.ResponseWriter, r *http.Request, path string) error

	// SendMessage pushes a named event to the client.
	SendMessage(event string, data any) error
	// On subscribes to a component event.
	On(event string, fn Listener)
	// Close transitions to StateClosed and fires the close event once.
	Close()

	base() *Base
}

// Base implements Component. Embed it in concrete components.
type Base struct {
	mu        sync.RWMutex
	typeID    string
	self      Component
	socket    *Socket
	listeners map[string][]Listener
	state     atomic.Int32
}

func (b *Base) base() *Base { return b }

// bind records the registered type and the outer component value.
func (b *Base) bind(typeID string, self Component) {
	b.mu.Lock()
	b.typeID = typeID
	b.self = self
	b.mu.Unlock()
}

// LinkSocket binds the component to socket. Linking an unbound component moves it to StateBound.
func (b *Base) LinkSocket(socket *Socket) {
	b.mu.Lock()
	b.socket = socket
	b.mu.Unlock()

	if socket != nil {
		b.state.CompareAndSwap(int32(StateUnbound), int32(StateBound))
	}
}

// Socket returns the linked socket.
func (b *Base) Socket() *Socket {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.socket
}

// TypeID returns the registered component type.
func (b *Base) TypeID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.typeID
}

// State returns the lifecycle state.
func (b *Base) State() ComponentState {
	return ComponentState(b.state.Load())
}

// markActive moves a live component to StateActive.
func (b *Base) markActive() {
	for {
		cur := b.state.Load()
		if ComponentState(cur) == StateClosed || ComponentState(cur) == StateActive {
			return
		}
		if b.state.CompareAndSwap(cur, int32(StateActive)) {
			return
		}
	}
}

// On subscribes fn to event.
func (b *Base) On(event string, fn Listener) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[string][]Listener)
	}
	b.listeners[event] = append(b.listeners[event], fn)
}

// Trigger fires event and joins listener errors.
func (b *Base) Trigger(ctx context.Context, ev *ComponentEvent) error {
	b.mu.RLock()
	fns := append([]Listener(nil), b.listeners[ev.Name]...)
	if ev.Component == nil {
		ev.Component = b.self
	}
	b.mu.RUnlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Base) hasListeners(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[event]) > 0
}

// Activate fires the activate event.
func (b *Base) Activate(ctx context.Context, msg *protocol.Message) error {
	return b.Trigger(ctx, &ComponentEvent{Name: EventActivate, Message: msg})
}

// HandleMessage fires MessageEvent(msg.Type) listeners, then the generic
// message listeners. Messages with no listener are ignored.
func (b *Base) HandleMessage(ctx context.Context, msg *protocol.Message) error {
	typed := MessageEvent(msg.Type)
	if b.hasListeners(typed) {
		if err := b.Trigger(ctx, &ComponentEvent{Name: typed, Message: msg}); err != nil {
			return err
		}
	}
	return b.Trigger(ctx, &ComponentEvent{Name: EventMessage, Message: msg})
}

// Show renders the default bootstrap page for the component.
func (b *Base) Show(ctx context.Context, w http.ResponseWriter, r *http.Request, path string) error {
	return RenderPage(w, PageFromContext(ctx))
}

// SendMessage pushes a named event through the linked socket.
func (b *Base) SendMessage(event string, data any) error {
	socket := b.Socket()
	if socket == nil {
		return ErrNotBound
	}
	return socket.Send(b.TypeID(), event, data)
}

// Close moves the component to StateClosed and fires the close event once.
func (b *Base) Close() {
	if ComponentState(b.state.Swap(int32(StateClosed))) == StateClosed {
		return
	}
	_ = b.Trigger(context.Background(), &ComponentEvent{Name: EventClose})
}
