package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn records frames written to it.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	closes   int
	controls int
	failing  bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("fake: write on broken connection")
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) events(t *testing.T) []*protocol.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.Event, 0, len(c.frames))
	for _, f := range c.frames {
		ev, err := protocol.DecodeEvent(f)
		if err != nil {
			t.Fatalf("DecodeEvent(%s) error: %v", f, err)
		}
		out = append(out, ev)
	}
	return out
}

func (c *fakeConn) eventNames(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, ev := range c.events(t) {
		names = append(names, ev.Name)
	}
	return names
}

// controlFakeConn also accepts close frames.
type controlFakeConn struct {
	fakeConn
}

func (c *controlFakeConn) WriteControl(int, []byte, time.Time) error {
	c.mu.Lock()
	c.controls++
	c.mu.Unlock()
	return nil
}

// recorder is a component that remembers what it handled.
type recorder struct {
	Base
	id int64

	mu          sync.Mutex
	messages    []string
	activations []string
	active      []Component
}

func (r *recorder) Activate(ctx context.Context, msg *protocol.Message) error {
	r.mu.Lock()
	r.activations = append(r.activations, msg.Type)
	r.mu.Unlock()
	return r.Base.Activate(ctx, msg)
}

func (r *recorder) HandleMessage(ctx context.Context, msg *protocol.Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, msg.Type)
	r.active = append(r.active, ActiveComponent(ctx))
	r.mu.Unlock()

	switch msg.Type {
	case "fail":
		return errors.New("handler failed")
	case "panic":
		panic("handler exploded")
	case "ping":
		return r.SendMessage("pong", map[string]int64{"id": r.id})
	}
	return r.Base.HandleMessage(ctx, msg)
}

func (r *recorder) handled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// recorderFactory counts constructed instances.
type recorderFactory struct {
	built atomic.Int64
}

func (f *recorderFactory) New(*Socket) Component {
	return &recorder{id: f.built.Add(1)}
}

func newTestStore(t *testing.T, config *SessionConfig) (*Store, *recorderFactory) {
	t.Helper()
	f := &recorderFactory{}
	reg := NewRegistry()
	if err := reg.Add("app.Dashboard", "/dash", f.New); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := reg.Add("app.Settings", "/settings", f.New); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	reg.Freeze()
	return NewStore(reg, config, testLogger()), f
}

func mustMessage(t *testing.T, typ, sid, uuid string) []byte {
	t.Helper()
	msg, err := protocol.NewMessage(typ, sid, uuid, nil)
	if err != nil {
		t.Fatalf("NewMessage() error: %v", err)
	}
	return msg.Raw()
}
