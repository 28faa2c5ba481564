package pubsubbroker

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/pubsub/v2"
)

// ErrFailedToEstablishClient indicates the underlying Pub/Sub client could
// not be constructed.
var ErrFailedToEstablishClient = errors.New("pubsubbroker: failed to establish pub/sub client")

// ErrFailedToPublishMessage indicates a publish call did not complete.
var ErrFailedToPublishMessage = errors.New("pubsubbroker: failed to publish message")

// ErrFailedToReceiveMessage indicates a subscription's Receive loop exited
// with an error.
var ErrFailedToReceiveMessage = errors.New("pubsubbroker: failed to receive message")

// GCPClient is a thin wrapper over the Cloud Pub/Sub client, narrowed to the
// publish/subscribe shape pubsubbroker needs.
type GCPClient struct {
	client *pubsub.Client
}

// NewGCPClient creates a new Pub/Sub client. It automatically respects the
// PUBSUB_EMULATOR_HOST environment variable for local development.
func NewGCPClient(ctx context.Context, projectID string) (*GCPClient, error) {
	c, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.Join(ErrFailedToEstablishClient, err)
	}

	return &GCPClient{client: c}, nil
}

func (c *GCPClient) Close() error {
	return c.client.Close()
}

// Publish sends data to topicID, blocking until the broker acknowledges it.
func (c *GCPClient) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	p := c.client.Publisher(topicID)

	//nolint:exhaustruct // external struct; only Data is needed here.
	result := p.Publish(ctx, &pubsub.Message{Data: data})

	id, err := result.Get(ctx)
	if err != nil {
		return "", errors.Join(ErrFailedToPublishMessage, err)
	}

	return id, nil
}

// Subscribe blocks, invoking handler for every message delivered on subID
// until ctx is cancelled. A nil return acks; any error nacks for retry.
func (c *GCPClient) Subscribe(ctx context.Context, subID string, handler func(ctx context.Context, data []byte) error) error {
	sub := c.client.Subscriber(subID)

	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := handler(ctx, msg.Data); err != nil {
			slog.ErrorContext(ctx, "pubsubbroker: handler failed, nacking for retry", "error", err)
			msg.Nack()

			return
		}
		msg.Ack()
	})
	if err != nil {
		return errors.Join(ErrFailedToReceiveMessage, err)
	}

	return nil
}
