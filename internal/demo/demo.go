// Package demo provides the sample components served by the webui command.
package demo

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

// Type IDs and mount paths of the demo components.
const (
	DashboardType = "app.Dashboard"
	DashboardPath = "/dash"
	CounterType   = "app.Counter"
	CounterPath   = "/counter"
)

// Adder registers a component type. *webui.UIModule satisfies it.
type Adder interface {
	AddUI(typeID, path string, factory server.Factory) error
}

// Register adds every demo component to m.
func Register(m Adder) error {
	if err := m.AddUI(DashboardType, DashboardPath, NewDashboard); err != nil {
		return err
	}
	return m.AddUI(CounterType, CounterPath, NewCounter)
}

// Pong is the reply to a ping message.
type Pong struct {
	Echo string    `json:"echo,omitempty"`
	At   time.Time `json:"at"`
}

// Dashboard answers pings and counts the views it served.
type Dashboard struct {
	server.Base

	mu    sync.Mutex
	views int
	now   func() time.Time
}

// NewDashboard is the Dashboard factory.
func NewDashboard(*server.Socket) server.Component {
	d := &Dashboard{now: time.Now}
	d.On(server.EventBeforeRequest, func(context.Context, *server.ComponentEvent) error {
		d.mu.Lock()
		d.views++
		d.mu.Unlock()
		return nil
	})
	d.On(server.MessageEvent("ping"), d.ping)
	return d
}

func (d *Dashboard) ping(_ context.Context, ev *server.ComponentEvent) error {
	echo, _ := ev.Message.String("echo")
	return d.SendMessage("pong", Pong{Echo: echo, At: d.now().UTC()})
}

// Views returns the number of HTTP views this instance rendered.
func (d *Dashboard) Views() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.views
}

// Show renders the bootstrap page titled for the dashboard.
func (d *Dashboard) Show(ctx context.Context, w http.ResponseWriter, _ *http.Request, path string) error {
	page := server.PageFromContext(ctx)
	page.Title = "Dashboard"
	if path != "/" {
		page.Title = fmt.Sprintf("Dashboard %s", path)
	}
	return server.RenderPage(w, page)
}

// CountUpdate carries the counter value to the client.
type CountUpdate struct {
	Value int `json:"value"`
}

// Counter keeps a per-session counter.
type Counter struct {
	server.Base

	mu    sync.Mutex
	value int
}

// NewCounter is the Counter factory.
func NewCounter(*server.Socket) server.Component {
	c := &Counter{}
	c.On(server.MessageEvent("increment"), c.increment)
	c.On(server.MessageEvent("reset"), c.reset)
	c.On(server.EventActivate, func(context.Context, *server.ComponentEvent) error {
		return c.publish()
	})
	return c
}

func (c *Counter) increment(_ context.Context, ev *server.ComponentEvent) error {
	by := 1
	if ev.Message.Has("by") {
		if err := ev.Message.Bind("by", &by); err != nil {
			return fmt.Errorf("increment: %w", err)
		}
	}
	c.mu.Lock()
	c.value += by
	c.mu.Unlock()
	return c.publish()
}

func (c *Counter) reset(context.Context, *server.ComponentEvent) error {
	c.mu.Lock()
	c.value = 0
	c.mu.Unlock()
	return c.publish()
}

func (c *Counter) publish() error {
	return c.SendMessage("count", CountUpdate{Value: c.Value()})
}

// Value returns the current count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
