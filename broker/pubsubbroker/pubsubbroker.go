// Package pubsubbroker is a broker.Broker that fans published messages out
// across processes via Cloud Pub/Sub, while delegating middleware chains,
// channel bookkeeping, and local watcher dispatch to broker/local. It lets a
// multi-instance deployment share resource/view channel traffic without each
// instance re-running filter hooks for messages that originated elsewhere.
package pubsubbroker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/SocketCluster/sc-crud-rethink/broker"
	"github.com/SocketCluster/sc-crud-rethink/broker/local"
)

// Transport is the narrow publish/subscribe surface pubsubbroker needs from
// a Pub/Sub client. GCPClient satisfies it against the real service.
type Transport interface {
	Publish(ctx context.Context, topicID string, data []byte) (string, error)
	Subscribe(ctx context.Context, subID string, handler func(ctx context.Context, data []byte) error) error
}

// TopicNamer derives a Pub/Sub topic/subscription ID from a channel name.
// Callers typically hash or sanitize the channel name to fit Pub/Sub's ID
// constraints.
type TopicNamer func(channelName string) string

// Broker wraps a local.Broker, replaying every message that arrives over
// Pub/Sub into its local watcher fan-out, and publishing every locally
// originated message out to Pub/Sub in turn.
type Broker struct {
	*local.Broker

	transport Transport
	topicID   TopicNamer
	subID     TopicNamer
}

// New wires a Broker over transport. topicID and subID both default to the
// identity function when nil.
func New(transport Transport, topicID, subID TopicNamer) *Broker {
	if topicID == nil {
		topicID = func(s string) string { return s }
	}
	if subID == nil {
		subID = func(s string) string { return s }
	}

	return &Broker{
		Broker:    local.New(),
		transport: transport,
		topicID:   topicID,
		subID:     subID,
	}
}

// envelope is the wire format published to Pub/Sub. It carries no origin
// marker, so Listen delivers a message this process published itself (and
// already fanned out locally via Publish) to its local watchers a second
// time if the subscription hands it back.
type envelope struct {
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message"`
}

// Publish runs the local emit chain and fan-out, then relays the message to
// every other subscribed instance over Pub/Sub.
func (b *Broker) Publish(ctx context.Context, channelName string, message any) error {
	if err := b.Broker.Publish(ctx, channelName, message); err != nil {
		return err
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return errors.Join(ErrFailedToPublishMessage, err)
	}

	env, err := json.Marshal(envelope{Channel: channelName, Message: payload})
	if err != nil {
		return errors.Join(ErrFailedToPublishMessage, err)
	}

	_, err = b.transport.Publish(ctx, b.topicID(channelName), env)

	return err
}

// Listen subscribes to channelName's Pub/Sub topic and blocks, fanning every
// delivered message into the local broker's watchers for that channel. It
// does not re-publish to Pub/Sub, so it never loops a message back out.
// Callers typically run Listen in its own goroutine per channel that has at
// least one local watcher.
func (b *Broker) Listen(ctx context.Context, channelName string) error {
	return b.transport.Subscribe(ctx, b.subID(channelName), func(ctx context.Context, data []byte) error {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.ErrorContext(ctx, "pubsubbroker: dropping malformed envelope", "error", err)

			return nil
		}
		if env.Channel != channelName {
			return nil
		}

		var message any
		if err := json.Unmarshal(env.Message, &message); err != nil {
			slog.ErrorContext(ctx, "pubsubbroker: dropping malformed message", "channel", env.Channel, "error", err)

			return nil
		}

		b.Broker.Deliver(channelName, message)

		return nil
	})
}
