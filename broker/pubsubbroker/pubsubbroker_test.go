package pubsubbroker

import (
	"context"
	"sync"
	"testing"
)

// fakeTransport is an in-memory Transport: Publish hands the payload
// straight to any registered Subscribe handler for the same id, synchronously.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(ctx context.Context, data []byte) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string]func(ctx context.Context, data []byte) error{}}
}

func (f *fakeTransport) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	f.mu.Lock()
	h := f.handlers[topicID]
	f.mu.Unlock()
	if h != nil {
		if err := h(ctx, data); err != nil {
			return "", err
		}
	}

	return "msg-1", nil
}

// Subscribe registers handler and returns immediately. The real transport
// (GCPClient) blocks for the subscription's lifetime instead; callers that
// need that behavior run Listen in its own goroutine, as pubsubbroker's
// doc comment describes.
func (f *fakeTransport) Subscribe(ctx context.Context, subID string, handler func(ctx context.Context, data []byte) error) error {
	f.mu.Lock()
	f.handlers[subID] = handler
	f.mu.Unlock()

	return nil
}

func TestPublishRelaysToListeningPeer(t *testing.T) {
	transport := newFakeTransport()

	origin := New(transport, nil, nil)
	peer := New(transport, nil, nil)

	ctx := context.Background()

	var got any
	peer.Channel("crud>Product/p1").Watch(func(msg any) { got = msg })

	if err := peer.Listen(ctx, "crud>Product/p1"); err != nil {
		t.Fatalf("Listen error: %v", err)
	}

	if err := origin.Publish(ctx, "crud>Product/p1", "hello"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if got != "hello" {
		t.Errorf("peer watcher received %v, want hello", got)
	}
}

func TestPublishDoesNotLoopLocally(t *testing.T) {
	transport := newFakeTransport()
	b := New(transport, nil, nil)

	callCount := 0
	b.Channel("crud>Product/p1").Watch(func(msg any) { callCount++ })

	if err := b.Publish(context.Background(), "crud>Product/p1", "hello"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if callCount != 1 {
		t.Errorf("watcher invoked %d times, want 1 (no transport echo back into the origin)", callCount)
	}
}
