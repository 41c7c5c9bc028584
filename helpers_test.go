package webui

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// journal records writes across several connections in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// fakeConn records the events written to it.
type fakeConn struct {
	name    string
	journal *journal

	mu     sync.Mutex
	events []string
	closes int
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, ev.Name)
	c.mu.Unlock()
	if c.journal != nil {
		c.journal.add(c.name + ":" + ev.Name)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type dashboard struct {
	server.Base
}

type settings struct {
	server.Base
}

func newDashboard(*server.Socket) server.Component { return &dashboard{} }
func newSettings(*server.Socket) server.Component  { return &settings{} }

// plainContext is a Context that cannot serve HTTP.
type plainContext struct{}

func (plainContext) Logger() *slog.Logger { return testLogger() }

// newTestModule returns a module with app.Dashboard at /dash and
// app.Settings at /settings, injected into a fresh App.
func newTestModule(t *testing.T, opts ...Option) (*App, *UIModule) {
	t.Helper()
	app := New(Config{Stamp: "test-stamp", Logger: testLogger()})
	opts = append([]Option{WithLogger(testLogger()), WithTempDir(t.TempDir())}, opts...)
	m := NewModule(opts...)
	if err := m.AddUI("app.Dashboard", "/dash", newDashboard); err != nil {
		t.Fatal(err)
	}
	if err := m.AddUI("app.Settings", "/settings", newSettings); err != nil {
		t.Fatal(err)
	}
	if err := app.Use(m); err != nil {
		t.Fatalf("Use: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return app, m
}
