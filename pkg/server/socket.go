package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"

	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
)

// Conn is a physical duplex connection. *websocket.Conn satisfies it, but
// implementations used by the endpoint serialize writes and apply write
// deadlines themselves.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// controlConn is implemented by connections that can send close frames.
type controlConn interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// Socket is the connection channel of one session. It is shared by every
// component of the session and owns the physical connections bound to it,
// one per component type plus the most recently bound one as a fallback.
//
// Frames sent while no connection is attached are buffered and flushed on
// the next initialize. Sends after Shutdown are dropped silently.
type Socket struct {
	key    string
	config *SessionConfig
	logger *slog.Logger

	mu         sync.Mutex
	conns      map[string]Conn
	last       Conn
	activeType string
	pending    *queue.Queue
	dropped    int
	lastSeen   time.Time

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newSocket(key string, config *SessionConfig, logger *slog.Logger) *Socket {
	return &Socket{
		key:      key,
		config:   config,
		logger:   logger.With("session", key),
		conns:    make(map[string]Conn),
		pending:  queue.New(),
		lastSeen: time.Now(),
	}
}

// Key returns the session key.
func (s *Socket) Key() string {
	return s.key
}

// ActiveType returns the component type most recently initialized or activated.
func (s *Socket) ActiveType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeType
}

// Attached reports whether at least one physical connection is bound.
func (s *Socket) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last != nil
}

// IsClosed reports whether Shutdown has been called.
func (s *Socket) IsClosed() bool {
	return s.closed.Load()
}

// Pending returns the number of buffered frames.
func (s *Socket) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length()
}

// Dropped returns how many buffered frames were discarded on overflow.
func (s *Socket) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Touch records traffic on the session.
func (s *Socket) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Idle returns how long the socket has gone without an attached connection
// and without traffic. It is zero while a connection is attached.
func (s *Socket) Idle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil {
		return 0
	}
	return now.Sub(s.lastSeen)
}

// Initialize bootstraps the session on conn for a component type: it binds
// the connection, echoes the session key back to the client and flushes
// frames buffered while the session was detached. Frames sent concurrently
// are written after the acknowledgement and the flushed backlog.
func (s *Socket) Initialize(conn Conn, typeID string) error {
	if conn == nil {
		return ErrNoConnection
	}
	if s.closed.Load() {
		return ErrSocketClosed
	}
	ack, err := protocol.EncodeEvent(protocol.EventInitialize, protocol.InitializeAck{
		SessionKey: s.key,
		Component:  typeID,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conns[typeID] = conn
	s.last = conn
	s.activeType = typeID
	s.lastSeen = time.Now()
	frames := make([][]byte, 0, s.pending.Length()+1)
	frames = append(frames, ack)
	for s.pending.Length() > 0 {
		frames = append(frames, s.pending.Remove().([]byte))
	}
	// Send finds conn only after s.mu is released and then waits here.
	s.writeMu.Lock()
	s.mu.Unlock()

	failed, werr := len(frames), error(nil)
	for i, frame := range frames {
		if werr = conn.WriteMessage(websocket.TextMessage, frame); werr != nil {
			failed = i
			break
		}
	}
	s.writeMu.Unlock()

	if werr != nil {
		s.logger.Debug("write failed, detaching connection", "component", typeID, "error", werr)
		s.Detach(conn)
		if !s.closed.Load() {
			s.mu.Lock()
			for _, frame := range frames[failed:] {
				s.enqueueLocked(frame)
			}
			s.mu.Unlock()
		}
		return nil
	}
	if len(frames) > 1 {
		s.logger.Debug("flushed pending frames", "count", len(frames)-1)
	}
	return nil
}

// Activate marks typeID as the active view. A non-nil conn is bound to the
// type without re-running the bootstrap.
func (s *Socket) Activate(conn Conn, typeID string) error {
	if s.closed.Load() {
		return ErrSocketClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conn != nil {
		s.conns[typeID] = conn
		s.last = conn
	}
	s.activeType = typeID
	s.lastSeen = time.Now()
	return nil
}

// ReceiveMessage hands a generic message to comp.
func (s *Socket) ReceiveMessage(ctx context.Context, comp Component, msg *protocol.Message) error {
	s.Touch()
	return comp.HandleMessage(ctx, msg)
}

// Send pushes a named event to the connection bound for typeID.
func (s *Socket) Send(typeID, event string, data any) error {
	if s.closed.Load() {
		return nil
	}
	frame, err := protocol.EncodeEvent(event, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conns[typeID]
	if conn == nil {
		conn = s.last
	}
	if conn == nil {
		s.enqueueLocked(frame)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.write(typeID, conn, frame)
	return nil
}

// enqueueLocked buffers frame, dropping the oldest one when full.
func (s *Socket) enqueueLocked(frame []byte) {
	limit := s.config.MaxPendingFrames
	if limit < 0 {
		return
	}
	for s.pending.Length() >= limit && s.pending.Length() > 0 {
		s.pending.Remove()
		s.dropped++
	}
	if limit > 0 {
		s.pending.Add(frame)
	}
}

// write sends frame on conn. A failed write detaches the connection and
// buffers the frame for the next initialize.
func (s *Socket) write(typeID string, conn Conn, frame []byte) {
	if s.closed.Load() {
		return
	}

	s.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, frame)
	s.writeMu.Unlock()
	if err == nil {
		return
	}

	s.logger.Debug("write failed, detaching connection", "component", typeID, "error", err)
	s.Detach(conn)
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	s.enqueueLocked(frame)
	s.mu.Unlock()
}

// Detach unbinds conn from every component type. It reports whether conn was bound.
func (s *Socket) Detach(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for typeID, c := range s.conns {
		if c == conn {
			delete(s.conns, typeID)
			found = true
		}
	}
	if s.last == conn {
		s.last = nil
		found = true
		for _, c := range s.conns {
			s.last = c
			break
		}
	}
	if found {
		s.lastSeen = time.Now()
	}
	return found
}

// Shutdown closes every bound connection and terminates the socket.
// It reports false if the socket was already terminated.
func (s *Socket) Shutdown() bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}

	s.mu.Lock()
	unique := make(map[Conn]struct{}, len(s.conns)+1)
	for _, c := range s.conns {
		unique[c] = struct{}{}
	}
	if s.last != nil {
		unique[s.last] = struct{}{}
	}
	s.conns = make(map[string]Conn)
	s.last = nil
	s.pending = queue.New()
	s.mu.Unlock()

	deadline := time.Now().Add(s.config.WriteTimeout)
	for c := range unique {
		if cc, ok := c.(controlConn); ok {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown")
			_ = cc.WriteControl(websocket.CloseMessage, msg, deadline)
		}
		if err := c.Close(); err != nil {
			s.logger.Debug("close connection", "error", err)
		}
	}
	return true
}
