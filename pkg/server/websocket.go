package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn serializes writes on a gorilla connection and applies the write
// timeout to each of them. A connection may carry frames for several sessions.
type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, timeout time.Duration) *wsConn {
	return &wsConn{conn: conn, timeout: timeout}
}

func (c *wsConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return c.conn.WriteControl(messageType, data, deadline)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Endpoint upgrades requests on a component's socket path and feeds every
// frame of the resulting connection to the router.
type Endpoint struct {
	router   *Router
	typeID   string
	config   *SessionConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEndpoint creates the WebSocket endpoint for component type typeID.
func NewEndpoint(router *Router, typeID string) *Endpoint {
	config := router.store.Config()
	return &Endpoint{
		router: router,
		typeID: typeID,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: router.logger.With("endpoint", typeID),
	}
}

// ServeHTTP runs the read loop of one physical connection. Each frame is
// dispatched synchronously; handlers in flight when the peer disconnects
// run to completion.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(e.config.MaxMessageSize)

	conn := newWSConn(ws, e.config.WriteTimeout)
	e.router.HandleConnect(conn, e.typeID)

	ctx := context.WithoutCancel(r.Context())
	seen := make(map[string]struct{})
	var keys []string

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.logger.Debug("websocket read failed", "error", err)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		key, _ := e.router.HandleMessage(ctx, conn, e.typeID, data)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	e.router.HandleClose(conn, keys)
	_ = conn.Close()
}
