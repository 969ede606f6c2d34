// Package remote keeps the presenter's connection to the broadcast hub. A
// Channel sends one-way commands through a Transport and relays push events
// from the hub to subscribers.
package remote

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

const (
	// SendMethod is the single hub method every command goes through.
	SendMethod = "SendMessage"
	// EventUpdateCount carries the audience counter.
	EventUpdateCount = "updateCount"
)

var (
	ErrNotConnected   = errors.New("not connected to hub")
	ErrInvalidCommand = errors.New("invalid command")
)

// Handlers receives transport callbacks.
type Handlers struct {
	// OnMessage is called for every invocation pushed by the hub.
	OnMessage func(target string, args []string)
	// OnClose is called once when the connection ends without Stop.
	OnClose func(err error)
}

// Transport moves hub invocations over a concrete connection.
type Transport interface {
	// Start opens the connection. Calling Start on an open transport is a no-op.
	Start(ctx context.Context, h Handlers) error
	// Stop closes the connection. Handlers.OnClose is not called.
	Stop(ctx context.Context) error
	// Send invokes target on the hub with a single string argument.
	Send(ctx context.Context, target, arg string) error
}

// Handler receives the payload of a subscribed push event.
type Handler func(payload string)

type subscription struct {
	id uint64
	fn Handler
}

// Channel is the presenter's command channel to the hub.
type Channel struct {
	transport Transport
	log       *slog.Logger

	lifeMu sync.Mutex // serializes Connect and Disconnect

	mu        sync.Mutex
	connected bool
	nextID    uint64
	subs      map[string][]subscription
	watchers  []func(connected bool)
}

// NewChannel creates a disconnected Channel over t.
func NewChannel(t Transport, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		transport: t,
		log:       log.With("component", "remote"),
		subs:      make(map[string][]subscription),
	}
}

// Connect opens the hub connection. No-op when already connected.
func (c *Channel) Connect(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.Connected() {
		return nil
	}

	c.log.Info("connecting to hub")
	err := c.transport.Start(ctx, Handlers{
		OnMessage: c.dispatch,
		OnClose:   c.lost,
	})
	if err != nil {
		c.log.Error("hub connect failed", "error", err)
		return err
	}

	c.setConnected(true)
	c.log.Info("connected to hub")
	return nil
}

// Disconnect closes the hub connection. No-op when not connected.
func (c *Channel) Disconnect(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.Connected() {
		return nil
	}

	c.log.Info("disconnecting from hub")
	err := c.transport.Stop(ctx)
	c.setConnected(false)
	if err != nil {
		c.log.Warn("hub disconnect returned error", "error", err)
		return err
	}
	return nil
}

// SendCommand transmits command through SendMethod. It returns once the
// transport has accepted the message.
func (c *Channel) SendCommand(ctx context.Context, command string) error {
	c.log.Debug("sending command", "command", command)

	if !c.Connected() {
		return ErrNotConnected
	}
	return c.transport.Send(ctx, SendMethod, command)
}

// Connected reports the current connection state.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe registers fn for the push event. The returned func removes it.
func (c *Channel) Subscribe(event string, fn Handler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.subs[event] = append(c.subs[event], subscription{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		list := c.subs[event]
		for i, s := range list {
			if s.id == id {
				c.subs[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// OnStateChange registers fn to be told about every connection state change.
func (c *Channel) OnStateChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

func (c *Channel) dispatch(target string, args []string) {
	payload := ""
	if len(args) > 0 {
		payload = args[0]
	}

	c.mu.Lock()
	list := append([]subscription(nil), c.subs[target]...)
	c.mu.Unlock()

	if len(list) == 0 {
		c.log.Debug("unhandled hub event", "target", target)
		return
	}
	for _, s := range list {
		s.fn(payload)
	}
}

func (c *Channel) lost(err error) {
	c.log.Warn("hub connection lost", "error", err)
	c.setConnected(false)
}

func (c *Channel) setConnected(v bool) {
	c.mu.Lock()
	if c.connected == v {
		c.mu.Unlock()
		return
	}
	c.connected = v
	watchers := slices.Clone(c.watchers)
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(v)
	}
}
