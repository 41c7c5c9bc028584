package server

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
)

func newTestSocket(config *SessionConfig) *Socket {
	return newSocket("abc_u1", config.withDefaults(), testLogger())
}

func TestSocketInitialize_AcknowledgesSession(t *testing.T) {
	s := newTestSocket(nil)
	conn := &fakeConn{}

	if err := s.Initialize(conn, "app.Dashboard"); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	events := conn.events(t)
	if len(events) != 1 || events[0].Name != protocol.EventInitialize {
		t.Fatalf("events = %v, want one initialize ack", conn.eventNames(t))
	}
	var ack protocol.InitializeAck
	if err := json.Unmarshal(events[0].Data, &ack); err != nil {
		t.Fatalf("ack decode error: %v", err)
	}
	want := protocol.InitializeAck{SessionKey: "abc_u1", Component: "app.Dashboard"}
	if ack != want {
		t.Errorf("ack = %+v, want %+v", ack, want)
	}
	if !s.Attached() {
		t.Error("Attached() = false after Initialize()")
	}
	if s.ActiveType() != "app.Dashboard" {
		t.Errorf("ActiveType() = %q, want %q", s.ActiveType(), "app.Dashboard")
	}
}

func TestSocketInitialize_Errors(t *testing.T) {
	s := newTestSocket(nil)
	if err := s.Initialize(nil, "app.Dashboard"); !errors.Is(err, ErrNoConnection) {
		t.Errorf("Initialize(nil) error = %v, want %v", err, ErrNoConnection)
	}

	s.Shutdown()
	if err := s.Initialize(&fakeConn{}, "app.Dashboard"); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("Initialize() after Shutdown() error = %v, want %v", err, ErrSocketClosed)
	}
	if err := s.Activate(&fakeConn{}, "app.Dashboard"); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("Activate() after Shutdown() error = %v, want %v", err, ErrSocketClosed)
	}
}

func TestSocketSend_BuffersWhileDetached(t *testing.T) {
	s := newTestSocket(nil)

	for _, ev := range []string{"a", "b"} {
		if err := s.Send("app.Dashboard", ev, nil); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}
	if s.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", s.Pending())
	}

	conn := &fakeConn{}
	if err := s.Initialize(conn, "app.Dashboard"); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	want := []string{protocol.EventInitialize, "a", "b"}
	if got := conn.eventNames(t); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after flush, want 0", s.Pending())
	}
}

func TestSocketSend_DropsOldestOnOverflow(t *testing.T) {
	config := DefaultSessionConfig()
	config.MaxPendingFrames = 2
	s := newTestSocket(config)

	for _, ev := range []string{"a", "b", "c"} {
		_ = s.Send("app.Dashboard", ev, nil)
	}
	if s.Pending() != 2 || s.Dropped() != 1 {
		t.Fatalf("Pending() = %d, Dropped() = %d, want 2, 1", s.Pending(), s.Dropped())
	}

	conn := &fakeConn{}
	_ = s.Initialize(conn, "app.Dashboard")
	want := []string{protocol.EventInitialize, "b", "c"}
	if got := conn.eventNames(t); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSocketSend_RoutesByComponentType(t *testing.T) {
	s := newTestSocket(nil)
	dash, settings := &fakeConn{}, &fakeConn{}

	_ = s.Initialize(dash, "app.Dashboard")
	_ = s.Initialize(settings, "app.Settings")

	_ = s.Send("app.Dashboard", "to-dash", nil)
	_ = s.Send("app.Settings", "to-settings", nil)
	_ = s.Send("app.Other", "fallback", nil)

	if got, want := dash.eventNames(t), []string{protocol.EventInitialize, "to-dash"}; !reflect.DeepEqual(got, want) {
		t.Errorf("dashboard conn events = %v, want %v", got, want)
	}
	if got, want := settings.eventNames(t), []string{protocol.EventInitialize, "to-settings", "fallback"}; !reflect.DeepEqual(got, want) {
		t.Errorf("settings conn events = %v, want %v", got, want)
	}
}

func TestSocketWriteFailure_DetachesAndBuffers(t *testing.T) {
	s := newTestSocket(nil)
	broken := &fakeConn{}
	_ = s.Initialize(broken, "app.Dashboard")
	broken.mu.Lock()
	broken.failing = true
	broken.mu.Unlock()

	if err := s.Send("app.Dashboard", "lost", nil); err != nil {
		t.Fatalf("Send() error = %v, want nil on broken connection", err)
	}
	if s.Attached() {
		t.Error("broken connection still attached")
	}

	fresh := &fakeConn{}
	_ = s.Initialize(fresh, "app.Dashboard")
	want := []string{protocol.EventInitialize, "lost"}
	if got := fresh.eventNames(t); !reflect.DeepEqual(got, want) {
		t.Errorf("events after reconnect = %v, want %v", got, want)
	}
}

func TestSocketDetach(t *testing.T) {
	s := newTestSocket(nil)
	a, b := &fakeConn{}, &fakeConn{}
	_ = s.Initialize(a, "app.Dashboard")
	_ = s.Initialize(b, "app.Settings")

	if !s.Detach(b) {
		t.Fatal("Detach() = false for bound conn")
	}
	if !s.Attached() {
		t.Error("socket should fall back to the remaining conn")
	}
	if s.Detach(b) {
		t.Error("second Detach() = true")
	}
	s.Detach(a)
	if s.Attached() {
		t.Error("Attached() = true with no conns")
	}
	if s.Idle(time.Now().Add(time.Minute)) < time.Minute {
		t.Error("Idle() did not start counting after the last detach")
	}
}

func TestSocketShutdown_Idempotent(t *testing.T) {
	s := newTestSocket(nil)
	conn := &controlFakeConn{}
	_ = s.Initialize(conn, "app.Dashboard")
	_ = s.Activate(conn, "app.Settings")

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Shutdown()
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("Shutdown() returned true %d times, want 1", wins)
	}
	if conn.closeCount() != 1 {
		t.Errorf("conn closes = %d, want 1", conn.closeCount())
	}
	if conn.controls != 1 {
		t.Errorf("close frames = %d, want 1", conn.controls)
	}
	if !s.IsClosed() {
		t.Error("IsClosed() = false")
	}
}

func TestSocketSend_AfterShutdownIsNoop(t *testing.T) {
	s := newTestSocket(nil)
	conn := &fakeConn{}
	_ = s.Initialize(conn, "app.Dashboard")
	s.Shutdown()

	if err := s.Send("app.Dashboard", "late", nil); err != nil {
		t.Errorf("Send() after Shutdown() error = %v, want nil", err)
	}
	if got := conn.eventNames(t); len(got) != 1 {
		t.Errorf("events = %v, want only the initialize ack", got)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

// gatedConn blocks its first write until gate is closed.
type gatedConn struct {
	fakeConn
	once    sync.Once
	writing chan struct{}
	gate    chan struct{}
}

func (c *gatedConn) WriteMessage(mt int, data []byte) error {
	first := false
	c.once.Do(func() { first = true })
	if first {
		close(c.writing)
		<-c.gate
	}
	return c.fakeConn.WriteMessage(mt, data)
}

func TestSocketInitialize_FlushPrecedesConcurrentSend(t *testing.T) {
	s := newTestSocket(nil)
	for _, ev := range []string{"a", "b"} {
		if err := s.Send("app.Dashboard", ev, nil); err != nil {
			t.Fatal(err)
		}
	}

	conn := &gatedConn{writing: make(chan struct{}), gate: make(chan struct{})}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.Initialize(conn, "app.Dashboard")
	}()
	<-conn.writing

	go func() {
		defer wg.Done()
		_ = s.Send("app.Dashboard", "late", nil)
	}()
	time.Sleep(20 * time.Millisecond)
	close(conn.gate)
	wg.Wait()

	want := []string{protocol.EventInitialize, "a", "b", "late"}
	if got := conn.eventNames(t); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}
