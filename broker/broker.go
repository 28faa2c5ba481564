// Package broker declares the socket/transport boundary the orchestrator
// and filter pipeline are mediated through. The handshake, channel
// multiplexing, and wire protocol are external collaborators (spec §1);
// this package only names the interface consumed by the rest of the core.
package broker

import "context"

// MiddlewareKind names the three hook points a Broker exposes.
type MiddlewareKind string

const (
	// Emit gates a server-side publish to a client-facing event.
	Emit MiddlewareKind = "emit"
	// PublishIn gates an inbound publish attempt from a client socket.
	PublishIn MiddlewareKind = "publishIn"
	// Subscribe gates an inbound subscribe attempt from a client socket.
	Subscribe MiddlewareKind = "subscribe"
)

// Request is the envelope every middleware hook receives.
type Request struct {
	SocketID  string
	Event     string
	Channel   string
	Data      any
	AuthToken string
}

// Next continues the middleware chain; a non-nil err aborts it and the
// error is surfaced to the caller (or, for PublishIn/Subscribe, back to the
// client).
type Next func(err error)

// Middleware inspects/annotates a Request and must call next exactly once.
type Middleware func(ctx context.Context, req Request, next Next)

// WatchHandler receives every message published to the channel it's
// registered on, including the empty "refetch" signal used by resource
// channels.
type WatchHandler func(message any)

// Channel is a single named subscription slot.
type Channel interface {
	Name() string
	Unsubscribe()
	Destroy()
	Watch(handler WatchHandler)
}

// RequestHandler processes one CRUD event from a socket. cb must be called
// exactly once with the operation's result or error.
type RequestHandler func(ctx context.Context, socketID string, authToken string, data any, cb func(any, error))

// Socket represents one connected client, wired to the four CRUD events at
// handshake time.
type Socket interface {
	ID() string
	OnCreate(h RequestHandler)
	OnRead(h RequestHandler)
	OnUpdate(h RequestHandler)
	OnDelete(h RequestHandler)
}

// Broker is the transport boundary consumed by the orchestrator and the
// filter pipeline's middleware bindings.
type Broker interface {
	AddMiddleware(kind MiddlewareKind, mw Middleware)

	// Subscribe establishes (or joins) a subscription to channelName on the
	// server's own behalf — used by the orchestrator to watch a resource
	// channel it needs for cache invalidation. It does not run the
	// Subscribe middleware chain; that chain only gates subscribe attempts
	// originating from a client socket (see SubscribeFromClient). The
	// returned Channel is usable for Watch/Unsubscribe/Destroy regardless
	// of whether this call newly subscribed or found an existing one.
	Subscribe(ctx context.Context, channelName string) (Channel, error)

	// SubscribeFromClient is the inbound counterpart to Subscribe: it runs
	// the Subscribe middleware chain (spec §4.5 — pre then post with
	// fetchResource=true) before subscribing, for a client socket directly
	// subscribing to a "crud>" channel. authToken is the requesting socket's
	// token, carried through to the middleware chain for the filter hooks
	// to authorize against.
	SubscribeFromClient(ctx context.Context, channelName, authToken string) (Channel, error)

	// Channel returns the Channel handle for name without subscribing.
	Channel(name string) Channel

	// IsSubscribed reports subscription state. includePending, when true,
	// also counts a subscribe attempt that hasn't completed yet.
	IsSubscribed(name string, includePending bool) bool

	Publish(ctx context.Context, channelName string, message any) error

	OnHandshake(handler func(Socket))
}
