package resourcecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/valkey-io/valkey-go"

	"github.com/SocketCluster/sc-crud-rethink/cachetypes"
	"github.com/SocketCluster/sc-crud-rethink/schema"
)

// ValkeyMirror is a Mirror backed by Valkey, letting a fleet of Orchestrator
// processes share resolved resource snapshots. It stores each document as a
// JSON blob keyed by "<keyPrefix>-<type>/<id>".
type ValkeyMirror struct {
	keyPrefix string
	client    valkey.Client
}

// NewValkeyMirror dials addr (host:port), retrying with backoff the way
// valkeycache.NewValkeyDataCache does, and returns a ready Mirror.
func NewValkeyMirror(ctx context.Context, keyPrefix, host, port string) (*ValkeyMirror, error) {
	addr := fmt.Sprintf("%s:%s", host, port)
	operation := func() (valkey.Client, error) {
		//nolint:exhaustruct // external struct; only InitAddress is needed here.
		return valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	}

	client, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(25*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return &ValkeyMirror{keyPrefix: keyPrefix, client: client}, nil
}

func (m *ValkeyMirror) cacheKey(key Key) string {
	return fmt.Sprintf("%s-%s/%s", m.keyPrefix, key.Type, key.ID)
}

// Get retrieves a mirrored document, returning cachetypes.ErrCachedDataNotFound
// if it isn't present.
func (m *ValkeyMirror) Get(ctx context.Context, key Key) (schema.Document, error) {
	msg, err := m.client.Do(ctx, m.client.B().Get().Key(m.cacheKey(key)).Build()).ToMessage()
	if errors.Is(err, valkey.Nil) {
		return nil, cachetypes.ErrCachedDataNotFound
	} else if err != nil {
		return nil, err
	}

	raw, err := msg.AsBytes()
	if err != nil {
		return nil, err
	}

	var doc schema.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// Set mirrors doc with the given TTL.
func (m *ValkeyMirror) Set(ctx context.Context, key Key, doc schema.Document, ttl time.Duration) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	return m.client.Do(ctx, m.client.B().Set().Key(m.cacheKey(key)).
		Value(valkey.BinaryString(raw)).Ex(ttl).Build()).Error()
}

// Delete removes the mirrored entry for key.
func (m *ValkeyMirror) Delete(ctx context.Context, key Key) error {
	return m.client.Do(ctx, m.client.B().Del().Key(m.cacheKey(key)).Build()).Error()
}
