// Package resourcecache implements the short-TTL, single-flight cache for
// single-document reads described in spec §4.4: at most one in-flight fetch
// per (type, id), field-level patches merged into a pending fetch's result,
// and lifecycle events consumed by the orchestrator to drive resource
// channel subscriptions.
package resourcecache

import (
	"context"
	"sync"
	"time"

	"github.com/SocketCluster/sc-crud-rethink/cachetypes"
	"github.com/SocketCluster/sc-crud-rethink/channelnamer"
	"github.com/SocketCluster/sc-crud-rethink/schema"
)

// Key identifies a single cached resource.
type Key struct {
	Type string
	ID   string
}

// Callback receives the resolved document, or an error if the fetch failed.
type Callback func(schema.Document, error)

// DataProvider performs the actual fetch (typically a StoreAdapter call) and
// reports its outcome through cb exactly once.
type DataProvider func(cb Callback)

// Mirror is an optional distributed backing store for resolved snapshots,
// shared across a fleet of Orchestrator processes. The single-flight and
// patch-merge bookkeeping always stays local to one process; Mirror only
// lets a cold process skip a store round trip by finding another process's
// already-resolved document.
type Mirror interface {
	Get(ctx context.Context, key Key) (schema.Document, error)
	Set(ctx context.Context, key Key, doc schema.Document, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
}

type entry struct {
	resource schema.Document
	pending  bool
	patch    map[string]any
	waiters  []Callback
	timer    *time.Timer
}

// Cache is the single-flight, TTL-based resource cache.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	ttl      time.Duration
	disabled bool
	mirror   Mirror

	onHit    *broadcaster[Key]
	onMiss   *broadcaster[Key]
	onSet    *broadcaster[Key]
	onClear  *broadcaster[Key]
	onExpire *broadcaster[Key]
	onUpdate *broadcaster[Key]
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithMirror attaches a distributed Mirror backend.
func WithMirror(m Mirror) Option {
	return func(c *Cache) { c.mirror = m }
}

// New creates a Cache with the given default TTL. disabled mirrors the
// configuration option of the same name in spec §6: when true, Pass always
// calls through to the data provider and nothing is cached.
func New(ttl time.Duration, disabled bool, opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[Key]*entry),
		ttl:      ttl,
		disabled: disabled,
		onHit:    newBroadcaster[Key](),
		onMiss:   newBroadcaster[Key](),
		onSet:    newBroadcaster[Key](),
		onClear:  newBroadcaster[Key](),
		onExpire: newBroadcaster[Key](),
		onUpdate: newBroadcaster[Key](),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Cache) OnHit(fn func(Key)) (unsubscribe func())    { return c.onHit.Subscribe(fn) }
func (c *Cache) OnMiss(fn func(Key)) (unsubscribe func())   { return c.onMiss.Subscribe(fn) }
func (c *Cache) OnSet(fn func(Key)) (unsubscribe func())    { return c.onSet.Subscribe(fn) }
func (c *Cache) OnClear(fn func(Key)) (unsubscribe func())  { return c.onClear.Subscribe(fn) }
func (c *Cache) OnExpire(fn func(Key)) (unsubscribe func()) { return c.onExpire.Subscribe(fn) }
func (c *Cache) OnUpdate(fn func(Key)) (unsubscribe func()) { return c.onUpdate.Subscribe(fn) }

func (k Key) complete() bool {
	return k.Type != "" && k.ID != ""
}

// Pass is the cache's single entry point for a read. See spec §4.4 for the
// full state table; in short: an existing resolved entry is delivered to
// every waiter immediately, an existing pending entry just joins the
// waiter list, and a miss consults the Mirror (if any) before starting the
// one DataProvider call that will serve every waiter that arrives before it
// completes.
func (c *Cache) Pass(ctx context.Context, key Key, provider DataProvider, cb Callback) {
	if c.disabled || !key.complete() {
		provider(cb)

		return
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	switch {
	case ok && !e.pending:
		// Resolved entry: every current waiter (including cb) is delivered
		// the cached document now, then the waiter list is cleared.
		e.waiters = append(e.waiters, cb)
		waiters := e.waiters
		e.waiters = nil
		doc := e.resource
		c.mu.Unlock()

		c.onHit.emit(key)
		for _, w := range waiters {
			w(doc, nil)
		}

		return

	case ok && e.pending:
		// A fetch is already in flight; join its waiter list.
		e.waiters = append(e.waiters, cb)
		c.mu.Unlock()

		return

	default:
		// Miss: install a pending entry and start the one fetch that will
		// serve every waiter that arrives before it completes.
		e = &entry{pending: true, patch: map[string]any{}, waiters: []Callback{cb}}
		c.entries[key] = e
		c.armExpiry(key, e)
		c.mu.Unlock()

		c.onMiss.emit(key)

		if c.mirror != nil {
			if doc, err := c.mirror.Get(ctx, key); err == nil {
				c.resolve(key, e, doc, nil)

				return
			}
		}

		provider(func(doc schema.Document, err error) {
			c.resolve(key, e, doc, err)
		})
	}
}

// resolve delivers a finished fetch to the waiters of e, the pending entry
// that started it.
func (c *Cache) resolve(key Key, e *entry, doc schema.Document, err error) {
	c.mu.Lock()
	// e may have been cleared/expired while the fetch was in flight; the
	// caller already dropped off the invalidation pipeline, but the fetch's
	// own waiters still must hear the result.
	waiters := e.waiters
	e.waiters = nil

	if err != nil {
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		for _, w := range waiters {
			w(nil, err)
		}

		return
	}

	merged := mergePatch(doc, e.patch)
	resolved := &entry{resource: merged}
	c.entries[key] = resolved
	c.armExpiry(key, resolved)
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Set(context.Background(), key, merged, c.ttl)
	}

	c.onSet.emit(key)
	for _, w := range waiters {
		w(merged, nil)
	}
}

func mergePatch(doc schema.Document, patch map[string]any) schema.Document {
	if len(patch) == 0 {
		return doc
	}
	merged := make(schema.Document, len(doc)+len(patch))
	for k, v := range doc {
		merged[k] = v
	}
	// Patch wins: a field update observed while the fetch was pending is
	// newer than whatever the in-flight fetch returned for that field.
	for k, v := range patch {
		merged[k] = v
	}

	return merged
}

// Get returns the cached document for key, or ErrCachedDataNotFound.
func (c *Cache) Get(key Key) (schema.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.pending {
		return nil, cachetypes.ErrCachedDataNotFound
	}

	return e.resource, nil
}

// Set writes a resolved entry with a fresh TTL, cancelling any prior timer.
func (c *Cache) Set(key Key, doc schema.Document) {
	c.mu.Lock()
	e := &entry{resource: doc}
	c.entries[key] = e
	c.armExpiry(key, e)
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Set(context.Background(), key, doc, c.ttl)
	}
	c.onSet.emit(key)
}

// Clear removes the entry for key, cancelling its timer, and emits "clear".
func (c *Cache) Clear(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if c.mirror != nil {
		_ = c.mirror.Delete(context.Background(), key)
	}
	c.onClear.emit(key)
}

// Update applies a field-level change notification observed on the broker.
// If channelName parses to a field channel and message carries an "update"
// with a value, the value is merged as a patch: into the pending patch map
// if a fetch is still in flight, or directly into the resolved document.
func (c *Cache) Update(channelName string, messageType string, value any) {
	desc, err := channelnamer.Parse(channelName)
	if err != nil || desc.Kind != channelnamer.KindModel || desc.Field == "" {
		return
	}
	if messageType != "update" {
		return
	}
	key := Key{Type: desc.Type, ID: desc.ID}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()

		return
	}
	if e.pending {
		e.patch[desc.Field] = value
	} else {
		if e.resource == nil {
			e.resource = schema.Document{}
		}
		e.resource[desc.Field] = value
	}
	c.mu.Unlock()

	c.onUpdate.emit(key)
}

func (c *Cache) armExpiry(key Key, e *entry) {
	if c.ttl <= 0 {
		return
	}
	e.timer = time.AfterFunc(c.ttl, func() {
		c.mu.Lock()
		current, ok := c.entries[key]
		if !ok || current != e {
			c.mu.Unlock()

			return
		}
		delete(c.entries, key)
		c.mu.Unlock()

		c.onExpire.emit(key)
	})
}
