package local

import (
	"context"
	"testing"

	"github.com/SocketCluster/sc-crud-rethink/broker"
)

func TestPublishFanOutToWatchers(t *testing.T) {
	b := New()
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, "crud>Product/p1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	var got any
	ch.Watch(func(msg any) { got = msg })

	if err := b.Publish(ctx, "crud>Product/p1", "hello"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if got != "hello" {
		t.Errorf("watcher received %v, want hello", got)
	}
}

func TestSubscribeDeniedByMiddleware(t *testing.T) {
	b := New()
	ctx := context.Background()

	b.AddMiddleware(broker.Subscribe, func(_ context.Context, req broker.Request, next broker.Next) {
		next(errBlocked)
	})

	if _, err := b.SubscribeFromClient(ctx, "crud>Product/p1", ""); err != errBlocked {
		t.Errorf("err = %v, want errBlocked", err)
	}
	if b.IsSubscribed("crud>Product/p1", true) {
		t.Error("expected no pending/subscribed state after denial")
	}
}

func TestPublishFromClientUnconditionallyDenied(t *testing.T) {
	b := New()
	ctx := context.Background()

	b.AddMiddleware(broker.PublishIn, func(_ context.Context, req broker.Request, next broker.Next) {
		next(errBlocked) // server owns publication to crud> channels
	})

	if err := b.PublishFromClient(ctx, "sock1", "crud>Product/p1", "x"); err != errBlocked {
		t.Errorf("err = %v, want errBlocked", err)
	}
}

func TestHandshakeWiresSocketEvents(t *testing.T) {
	b := New()
	var createCalled bool
	b.OnHandshake(func(s broker.Socket) {
		s.OnCreate(func(ctx context.Context, socketID, authToken string, data any, cb func(any, error)) {
			createCalled = true
			cb("p1", nil)
		})
	})

	sock := b.Connect("sock1")
	var gotID any
	sock.Emit(context.Background(), "create", "tok", map[string]any{"value": map[string]any{"name": "A"}}, func(res any, err error) {
		gotID = res
		_ = err
	})

	if !createCalled || gotID != "p1" {
		t.Errorf("handshake did not wire create handler: called=%v id=%v", createCalled, gotID)
	}
}

var errBlocked = blockedErr{}

type blockedErr struct{}

func (blockedErr) Error() string { return "blocked" }
