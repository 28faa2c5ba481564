// Package event implements a small typed-envelope convention for messages
// carried over a Pub/Sub-style transport: every payload is wrapped with a
// Kind and APIVersion so a single subscription can carry more than one
// message shape and a Router can dispatch each to its own handler.
package event

import (
	"encoding/json"
	"fmt"
)

// Event is implemented by every routable payload. Kind and APIVersion
// together select the handler a Router dispatches a message to.
type Event interface {
	Kind() string
	APIVersion() string
}

// New wraps payload in the standard envelope and marshals it to JSON.
func New[T Event](payload T) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("event: marshal payload: %w", err)
	}

	env := envelope{Kind: payload.Kind(), APIVersion: payload.APIVersion(), Data: data}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("event: marshal envelope: %w", err)
	}

	return b, nil
}
