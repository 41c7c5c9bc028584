package demo

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	webui "github.com/jphp-group-community/wizard-framework"
	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

type recordingConn struct {
	mu     sync.Mutex
	events []*protocol.Event
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) last(t *testing.T, name string) json.RawMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Name == name {
			return c.events[i].Data
		}
	}
	t.Fatalf("no %q event written", name)
	return nil
}

func setup(t *testing.T) (*webui.App, *webui.UIModule) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := webui.New(webui.Config{Stamp: "demo", Logger: logger})
	m := webui.NewModule(webui.WithLogger(logger), webui.WithTempDir(t.TempDir()))
	if err := Register(m); err != nil {
		t.Fatal(err)
	}
	if err := app.Use(m); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return app, m
}

func open(t *testing.T, m *webui.UIModule, typeID string) (server.Component, *recordingConn) {
	t.Helper()
	_, socket, comp, err := m.Store().GetOrCreate("s_1", typeID)
	if err != nil {
		t.Fatal(err)
	}
	conn := &recordingConn{}
	if err := socket.Initialize(conn, typeID); err != nil {
		t.Fatal(err)
	}
	return comp, conn
}

func message(t *testing.T, typ string, payload map[string]any) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessage(typ, "s", "1", payload)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestRegister(t *testing.T) {
	_, m := setup(t)
	types := m.Registry().Types()
	if len(types) != 2 || types[0] != DashboardType || types[1] != CounterType {
		t.Errorf("Types() = %v", types)
	}
}

func TestDashboard_Ping(t *testing.T) {
	_, m := setup(t)
	comp, conn := open(t, m, DashboardType)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	comp.(*Dashboard).now = func() time.Time { return fixed }

	if err := comp.HandleMessage(context.Background(), message(t, "ping", map[string]any{"echo": "hi"})); err != nil {
		t.Fatal(err)
	}
	var pong Pong
	if err := json.Unmarshal(conn.last(t, "pong"), &pong); err != nil {
		t.Fatal(err)
	}
	if pong.Echo != "hi" || !pong.At.Equal(fixed) {
		t.Errorf("pong = %+v", pong)
	}
}

func TestDashboard_View(t *testing.T) {
	app, _ := setup(t)

	for _, tc := range []struct{ path, title string }{
		{"/dash/", "<title>Dashboard</title>"},
		{"/dash/reports", "<title>Dashboard /reports</title>"},
	} {
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", tc.path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tc.title) {
			t.Errorf("GET %s: missing %s", tc.path, tc.title)
		}
	}
}

func TestDashboard_CountsViews(t *testing.T) {
	d := NewDashboard(nil).(*Dashboard)
	for i := 0; i < 3; i++ {
		if err := d.Trigger(context.Background(), &server.ComponentEvent{Name: server.EventBeforeRequest}); err != nil {
			t.Fatal(err)
		}
	}
	if d.Views() != 3 {
		t.Errorf("Views() = %d, want 3", d.Views())
	}
}

func TestCounter(t *testing.T) {
	_, m := setup(t)
	comp, conn := open(t, m, CounterType)
	ctx := context.Background()

	value := func() int {
		t.Helper()
		var u CountUpdate
		if err := json.Unmarshal(conn.last(t, "count"), &u); err != nil {
			t.Fatal(err)
		}
		return u.Value
	}

	if err := comp.HandleMessage(ctx, message(t, "increment", nil)); err != nil {
		t.Fatal(err)
	}
	if got := value(); got != 1 {
		t.Errorf("after increment = %d, want 1", got)
	}

	if err := comp.HandleMessage(ctx, message(t, "increment", map[string]any{"by": 5})); err != nil {
		t.Fatal(err)
	}
	if got := value(); got != 6 {
		t.Errorf("after increment by 5 = %d, want 6", got)
	}

	if err := comp.Activate(ctx, message(t, "activate", nil)); err != nil {
		t.Fatal(err)
	}
	if got := value(); got != 6 {
		t.Errorf("activate published %d, want 6", got)
	}

	if err := comp.HandleMessage(ctx, message(t, "reset", nil)); err != nil {
		t.Fatal(err)
	}
	if got := comp.(*Counter).Value(); got != 0 {
		t.Errorf("Value() after reset = %d", got)
	}
}

func TestCounter_BadIncrement(t *testing.T) {
	_, m := setup(t)
	comp, _ := open(t, m, CounterType)

	err := comp.HandleMessage(context.Background(), message(t, "increment", map[string]any{"by": "many"}))
	if err == nil {
		t.Fatal("increment with non-numeric by succeeded")
	}
	if comp.(*Counter).Value() != 0 {
		t.Errorf("Value() = %d after failed increment", comp.(*Counter).Value())
	}
}
