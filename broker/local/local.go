// Package local is an in-process broker.Broker, suitable for single-process
// tests and the example cmd/server binary. It runs middleware chains
// synchronously and fans out published messages to watchers registered on
// the same process.
package local

import (
	"context"
	"errors"
	"sync"

	"github.com/SocketCluster/sc-crud-rethink/broker"
)

type channel struct {
	mu       sync.Mutex
	name     string
	watchers map[int]broker.WatchHandler
	nextID   int
	pending  bool
	sub      bool
}

func (c *channel) Name() string { return c.name }

func (c *channel) Watch(h broker.WatchHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = h
}

func (c *channel) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sub = false
	c.pending = false
}

func (c *channel) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sub = false
	c.pending = false
	c.watchers = map[int]broker.WatchHandler{}
}

func (c *channel) fanOut(message any) {
	c.mu.Lock()
	hs := make([]broker.WatchHandler, 0, len(c.watchers))
	for _, h := range c.watchers {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(message)
	}
}

// Broker is an in-process broker.Broker.
type Broker struct {
	mu          sync.Mutex
	channels    map[string]*channel
	middlewares map[broker.MiddlewareKind][]broker.Middleware
	handshake   []func(broker.Socket)
}

// New creates an empty Broker.
func New() *Broker {
	return &Broker{
		channels:    make(map[string]*channel),
		middlewares: make(map[broker.MiddlewareKind][]broker.Middleware),
	}
}

func (b *Broker) AddMiddleware(kind broker.MiddlewareKind, mw broker.Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares[kind] = append(b.middlewares[kind], mw)
}

// runChain runs every registered middleware for kind in order, stopping at
// the first denial.
func (b *Broker) runChain(ctx context.Context, kind broker.MiddlewareKind, req broker.Request) error {
	b.mu.Lock()
	chain := append([]broker.Middleware{}, b.middlewares[kind]...)
	b.mu.Unlock()

	for _, mw := range chain {
		var chainErr error
		done := make(chan struct{})
		mw(ctx, req, func(err error) {
			chainErr = err
			close(done)
		})
		<-done
		if chainErr != nil {
			return chainErr
		}
	}

	return nil
}

func (b *Broker) channelFor(name string) *channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.channels[name]
	if !ok {
		c = &channel{name: name, watchers: map[int]broker.WatchHandler{}}
		b.channels[name] = c
	}

	return c
}

// Subscribe joins or establishes a subscription to channelName without
// running the Subscribe middleware chain (see broker.Broker.Subscribe).
func (b *Broker) Subscribe(ctx context.Context, channelName string) (broker.Channel, error) {
	c := b.channelFor(channelName)

	c.mu.Lock()
	c.pending = true
	c.sub = true
	c.mu.Unlock()

	return c, nil
}

// SubscribeFromClient runs the Subscribe middleware chain before joining or
// establishing a subscription to channelName.
func (b *Broker) SubscribeFromClient(ctx context.Context, channelName, authToken string) (broker.Channel, error) {
	c := b.channelFor(channelName)

	c.mu.Lock()
	c.pending = true
	c.mu.Unlock()

	err := b.runChain(ctx, broker.Subscribe, broker.Request{Channel: channelName, AuthToken: authToken})

	c.mu.Lock()
	c.pending = false
	if err == nil {
		c.sub = true
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return c, nil
}

// Channel returns the handle for name without subscribing.
func (b *Broker) Channel(name string) broker.Channel {
	return b.channelFor(name)
}

// IsSubscribed reports subscription state for name.
func (b *Broker) IsSubscribed(name string, includePending bool) bool {
	b.mu.Lock()
	c, ok := b.channels[name]
	b.mu.Unlock()
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if includePending {
		return c.sub || c.pending
	}

	return c.sub
}

// Publish runs the emit middleware chain, then fans the message out to
// every local watcher of channelName.
func (b *Broker) Publish(ctx context.Context, channelName string, message any) error {
	if err := b.runChain(ctx, broker.Emit, broker.Request{Channel: channelName, Data: message}); err != nil {
		return err
	}

	b.channelFor(channelName).fanOut(message)

	return nil
}

// Deliver fans message out to channelName's local watchers without running
// the Emit middleware chain or re-publishing anywhere else. It is meant for
// brokers that layer cross-process transport over this one (pubsubbroker),
// relaying a message whose middleware chain already ran on the instance
// that originated it.
func (b *Broker) Deliver(channelName string, message any) {
	b.channelFor(channelName).fanOut(message)
}

// PublishFromClient is the inbound counterpart to Publish: it runs the
// PublishIn chain (which spec §4.5 says must unconditionally deny any
// "crud>" channel from an outside socket) before fanning the message out.
func (b *Broker) PublishFromClient(ctx context.Context, socketID, channelName string, message any) error {
	if err := b.runChain(ctx, broker.PublishIn, broker.Request{SocketID: socketID, Channel: channelName, Data: message}); err != nil {
		return err
	}

	b.channelFor(channelName).fanOut(message)

	return nil
}

func (b *Broker) OnHandshake(handler func(broker.Socket)) {
	b.mu.Lock()
	b.handshake = append(b.handshake, handler)
	b.mu.Unlock()
}

// Connect simulates a client handshake, invoking every registered handshake
// handler with a new socket wired to the four CRUD events.
func (b *Broker) Connect(socketID string) *Socket {
	s := &Socket{id: socketID}

	b.mu.Lock()
	handlers := append([]func(broker.Socket){}, b.handshake...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}

	return s
}

// Socket is the in-process broker.Socket implementation used by Connect.
type Socket struct {
	id       string
	onCreate broker.RequestHandler
	onRead   broker.RequestHandler
	onUpdate broker.RequestHandler
	onDelete broker.RequestHandler
}

func (s *Socket) ID() string                       { return s.id }
func (s *Socket) OnCreate(h broker.RequestHandler) { s.onCreate = h }
func (s *Socket) OnRead(h broker.RequestHandler)   { s.onRead = h }
func (s *Socket) OnUpdate(h broker.RequestHandler) { s.onUpdate = h }
func (s *Socket) OnDelete(h broker.RequestHandler) { s.onDelete = h }

// Emit invokes the handler registered for event ("create"|"read"|"update"|"delete").
func (s *Socket) Emit(ctx context.Context, event string, authToken string, data any, cb func(any, error)) {
	var h broker.RequestHandler
	switch event {
	case "create":
		h = s.onCreate
	case "read":
		h = s.onRead
	case "update":
		h = s.onUpdate
	case "delete":
		h = s.onDelete
	}
	if h == nil {
		cb(nil, errors.New("broker/local: no handler registered for event "+event))

		return
	}
	h(ctx, s.id, authToken, data, cb)
}
