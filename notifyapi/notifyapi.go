// Package notifyapi ingests out-of-band mutation notifications from writers
// that changed the store directly, translating each into the matching call
// on the CRUD orchestrator (spec §4.6) so this process's caches and
// subscribers stay in sync with mutations it never performed itself.
package notifyapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SocketCluster/sc-crud-rethink/event"
	v1 "github.com/SocketCluster/sc-crud-rethink/notifyapi/v1"
	"github.com/SocketCluster/sc-crud-rethink/schema"
)

// NotifyTarget is the slice of *crud.Orchestrator this package depends on.
type NotifyTarget interface {
	NotifyUpdate(ctx context.Context, typeName, id string, oldResource, newResource schema.Document) error
}

// Subscriber is the pull side of the transport a mutation-notification
// topic is delivered over (satisfied by *pubsubbroker.GCPClient).
type Subscriber interface {
	Subscribe(ctx context.Context, subID string, handler func(ctx context.Context, data []byte) error) error
}

// Publisher is the push side, for writers that want to announce a mutation
// (satisfied by *pubsubbroker.GCPClient).
type Publisher interface {
	Publish(ctx context.Context, topicID string, data []byte) (string, error)
}

// Adapter subscribes to a mutation-notification topic and dispatches every
// message into target.NotifyUpdate.
type Adapter struct {
	target     NotifyTarget
	subscriber Subscriber
	subID      string
	router     *event.Router
}

// New builds an Adapter. It registers the single ResourceMutationEvent route
// at construction time so Listen can start immediately.
func New(target NotifyTarget, subscriber Subscriber, subID string) *Adapter {
	r := event.NewRouter()
	a := &Adapter{target: target, subscriber: subscriber, subID: subID, router: r}
	event.Register(r, a.processResourceMutation)

	return a
}

// Listen blocks, dispatching every message received on the configured
// subscription until ctx is canceled or the subscriber reports a fatal
// error.
func (a *Adapter) Listen(ctx context.Context) error {
	return a.subscriber.Subscribe(ctx, a.subID, func(ctx context.Context, data []byte) error {
		return a.router.HandleMessage(ctx, "", data)
	})
}

func (a *Adapter) processResourceMutation(ctx context.Context, eventID string, ev v1.ResourceMutationEvent) error {
	slog.InfoContext(ctx, "notifyapi: received resource mutation", "eventID", eventID, "type", ev.Type, "id", ev.ID)

	if err := a.target.NotifyUpdate(ctx, ev.Type, ev.ID, schema.Document(ev.Old), schema.Document(ev.New)); err != nil {
		return fmt.Errorf("notifyapi: notify update for %s/%s: %w", ev.Type, ev.ID, err)
	}

	return nil
}

// PublishMutation marshals ev through the shared event envelope and
// publishes it to topicID, for a writer announcing a direct mutation.
func PublishMutation(ctx context.Context, pub Publisher, topicID string, ev v1.ResourceMutationEvent) (string, error) {
	b, err := event.New(ev)
	if err != nil {
		return "", fmt.Errorf("notifyapi: encode mutation event: %w", err)
	}

	return pub.Publish(ctx, topicID, b)
}
