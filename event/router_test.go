package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/SocketCluster/sc-crud-rethink/event"
)

type pingEvent struct {
	Message string `json:"message"`
}

func (pingEvent) Kind() string       { return "Ping" }
func (pingEvent) APIVersion() string { return "v1" }

func TestRouterDispatchesToRegisteredHandler(t *testing.T) {
	r := event.NewRouter()

	var got pingEvent
	event.Register(r, func(ctx context.Context, eventID string, payload pingEvent) error {
		got = payload

		return nil
	})

	b, err := event.New(pingEvent{Message: "hi"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if err := r.HandleMessage(context.Background(), "msg-1", b); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}
	if got.Message != "hi" {
		t.Errorf("got = %+v, want Message=hi", got)
	}
}

func TestRouterReturnsNoHandlerForUnknownKind(t *testing.T) {
	r := event.NewRouter()
	event.Register(r, func(ctx context.Context, eventID string, payload pingEvent) error { return nil })

	other := struct {
		Kind       string `json:"kind"`
		APIVersion string `json:"apiVersion"`
		Data       string `json:"data"`
	}{Kind: "Other", APIVersion: "v1", Data: "{}"}
	b, _ := json.Marshal(other)

	err := r.HandleMessage(context.Background(), "msg-2", b)
	if !errors.Is(err, event.ErrNoHandler) {
		t.Errorf("err = %v, want ErrNoHandler", err)
	}
}

func TestRouterReturnsInvalidEnvelopeForMalformedJSON(t *testing.T) {
	r := event.NewRouter()

	err := r.HandleMessage(context.Background(), "msg-3", []byte("not json"))
	if !errors.Is(err, event.ErrInvalidEnvelope) {
		t.Errorf("err = %v, want ErrInvalidEnvelope", err)
	}
}

func TestRegisterPanicsOnDuplicateRoute(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()

	r := event.NewRouter()
	event.Register(r, func(ctx context.Context, eventID string, payload pingEvent) error { return nil })
	event.Register(r, func(ctx context.Context, eventID string, payload pingEvent) error { return nil })
}
