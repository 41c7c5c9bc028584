package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
)

// Dispatch describes one inbound message on its way to a component.
type Dispatch struct {
	SessionKey string
	TypeID     string
	Message    *protocol.Message
	Conn       Conn
	Socket     *Socket
	Component  Component
	Received   time.Time
}

// HandlerFunc handles a resolved message.
type HandlerFunc func(ctx context.Context, d *Dispatch) error

// Middleware wraps message dispatch. Implementations call next to continue.
type Middleware interface {
	Handle(ctx context.Context, d *Dispatch, next HandlerFunc) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, d *Dispatch, next HandlerFunc) error

// Handle calls f.
func (f MiddlewareFunc) Handle(ctx context.Context, d *Dispatch, next HandlerFunc) error {
	return f(ctx, d, next)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMiddleware appends dispatch middleware. The first one is outermost.
func WithMiddleware(mw ...Middleware) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, mw...)
	}
}

// WithErrorHook registers a callback invoked for every recovered handler failure.
func WithErrorHook(fn func(*HandlerError)) RouterOption {
	return func(r *Router) {
		r.onError = fn
	}
}

// Router is the terminal point for frames arriving on component endpoints.
// It resolves each message to its session socket and component, serializes
// dispatch per session and recovers handler failures so a connection never
// closes because of one.
type Router struct {
	store      *Store
	logger     *slog.Logger
	middleware []Middleware
	handler    HandlerFunc
	onError    func(*HandlerError)
}

// NewRouter creates a router over store.
func NewRouter(store *Store, opts ...RouterOption) *Router {
	r := &Router{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")

	h := r.dispatch
	for i := len(r.middleware) - 1; i >= 0; i-- {
		mw, next := r.middleware[i], h
		h = func(ctx context.Context, d *Dispatch) error {
			return mw.Handle(ctx, d, next)
		}
	}
	r.handler = h
	return r
}

// Store returns the session store.
func (r *Router) Store() *Store {
	return r.store
}

// HandleConnect is informational: the session key arrives with the first message.
func (r *Router) HandleConnect(conn Conn, typeID string) {
	r.logger.Debug("connection opened", "type", typeID)
}

// HandleMessage decodes and dispatches one frame received on conn at the
// endpoint of typeID. It returns the message's session key when the frame
// could be decoded. Errors are logged here; callers keep reading.
func (r *Router) HandleMessage(ctx context.Context, conn Conn, typeID string, data []byte) (string, error) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		r.logger.Warn("dropping undecodable message", "type", typeID, "error", err)
		return "", err
	}
	key := msg.Key()

	if msg.Type == protocol.TypeClose {
		if r.store.Close(key) {
			r.logger.Debug("session closed by client", "session", key)
		}
		return key, nil
	}

	entry, socket, comp, err := r.resolve(key, typeID)
	if err != nil {
		herr := r.report(&Dispatch{SessionKey: key, TypeID: typeID, Message: msg}, err)
		return key, herr
	}

	entry.dispatch.Lock()
	defer entry.dispatch.Unlock()

	comp.LinkSocket(socket)

	d := &Dispatch{
		SessionKey: key,
		TypeID:     typeID,
		Message:    msg,
		Conn:       conn,
		Socket:     socket,
		Component:  comp,
		Received:   time.Now(),
	}
	if err := r.invoke(ctx, d); err != nil {
		return key, r.report(d, err)
	}
	return key, nil
}

// HandleClose detaches conn from the sessions it carried. Sessions stay in
// the store until an explicit close, the reaper or shutdown removes them.
func (r *Router) HandleClose(conn Conn, keys []string) {
	for _, key := range keys {
		if e := r.store.Get(key); e != nil && e.socket.Detach(conn) {
			r.logger.Debug("connection detached", "session", key)
		}
	}
}

// resolve runs the store lookup, converting a factory panic into an error.
func (r *Router) resolve(key, typeID string) (e *Entry, s *Socket, c Component, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError(p)
		}
	}()
	return r.store.GetOrCreate(key, typeID)
}

// invoke runs the middleware chain with the component as the active scope.
// The scope is released on every exit path.
func (r *Router) invoke(ctx context.Context, d *Dispatch) (err error) {
	ctx, release := withActiveComponent(ctx, d.Component)
	defer release()
	defer func() {
		if p := recover(); p != nil {
			err = panicError(p)
		}
	}()
	return r.handler(ctx, d)
}

// dispatch is the innermost handler.
func (r *Router) dispatch(ctx context.Context, d *Dispatch) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError(p)
		}
	}()

	switch d.Message.Type {
	case protocol.TypeInitialize:
		if err := d.Socket.Initialize(d.Conn, d.TypeID); err != nil {
			return err
		}
		d.Component.base().markActive()
		return d.Component.Activate(ctx, d.Message)

	case protocol.TypeActivate:
		if err := d.Socket.Activate(d.Conn, d.TypeID); err != nil {
			return err
		}
		d.Component.base().markActive()
		return d.Component.Activate(ctx, d.Message)

	default:
		return d.Socket.ReceiveMessage(ctx, d.Component, d.Message)
	}
}

// report assigns a correlation id to a dispatch failure and logs it.
func (r *Router) report(d *Dispatch, err error) *HandlerError {
	var herr *HandlerError
	if !errors.As(err, &herr) {
		herr = &HandlerError{Err: err}
	}
	herr.ErrorID = uuid.NewString()
	herr.SessionKey = d.SessionKey
	herr.Component = d.TypeID
	if d.Message != nil {
		herr.MessageType = d.Message.Type
	}
	if herr.Origin == "" && d.Component != nil {
		herr.Origin = fmt.Sprintf("%T", d.Component)
	}

	attrs := []any{
		"error_id", herr.ErrorID,
		"session", herr.SessionKey,
		"type", herr.Component,
		"message", herr.MessageType,
		"origin", herr.Origin,
	}
	if herr.IsPanic() {
		attrs = append(attrs, "panic", fmt.Sprint(herr.Panic), "stack", string(herr.Stack))
	} else {
		attrs = append(attrs, "error", herr.Err)
	}
	r.logger.Error("message handler failed", attrs...)

	if r.onError != nil {
		r.onError(herr)
	}
	return herr
}

// panicError captures a recovered value with its stack and the frame that panicked.
func panicError(p any) *HandlerError {
	herr := &HandlerError{
		Panic:  p,
		Stack:  debug.Stack(),
		Origin: panicOrigin(),
	}
	if err, ok := p.(error); ok {
		herr.Err = err
	}
	return herr
}

// panicOrigin returns file:line of the frame that called panic. It must be
// called from a deferred recover.
func panicOrigin() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	afterPanic := false
	for {
		frame, more := frames.Next()
		if afterPanic && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.File, frame.Line)
		}
		if frame.Function == "runtime.gopanic" {
			afterPanic = true
		}
		if !more {
			return ""
		}
	}
}
