// Package crud implements the Orchestrator (spec §4.6): the CRUD entry
// points, the per-resource read-coalescing/subscription state machine, and
// out-of-band notification hooks used by external writers.
package crud

import (
	"context"
	"log/slog"

	"github.com/SocketCluster/sc-crud-rethink/broker"
	"github.com/SocketCluster/sc-crud-rethink/filterpipeline"
	"github.com/SocketCluster/sc-crud-rethink/resourcecache"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/store"
	"github.com/SocketCluster/sc-crud-rethink/viewanalyzer"
)

// Config holds the orchestrator's own configuration options. Cache and
// filter-pipeline options are set on resourcecache.New and
// filterpipeline.New instead.
type Config struct {
	DefaultPageSize       int
	BlockInboundByDefault bool
}

// Option configures an Orchestrator at construction time.
type Option func(*Config)

// WithDefaultPageSize overrides the default page size (10) used when a read
// query omits PageSize.
func WithDefaultPageSize(n int) Option { return func(c *Config) { c.DefaultPageSize = n } }

// WithBlockInboundByDefault sets the policy for inbound publish attempts
// with no matching rule. The orchestrator itself does not consult this
// directly (filterpipeline.PublishInMiddleware unconditionally denies
// client publishes to crud> channels per spec §4.5); it is only stored in
// Config.
func WithBlockInboundByDefault(b bool) Option { return func(c *Config) { c.BlockInboundByDefault = b } }

// Orchestrator is the CRUD core: it validates and executes create/read/
// update/delete against a StoreAdapter, derives affected views via
// ViewAnalyzer, and publishes change notifications through a Broker, all
// mediated by a FilterPipeline.
type Orchestrator struct {
	registry *schema.Registry
	adapter  store.Adapter
	brk      broker.Broker
	cache    *resourcecache.Cache
	pipeline *filterpipeline.Pipeline
	analyzer *viewanalyzer.Analyzer
	cfg      Config

	onWarning *broadcaster

	subs subscriptions
}

// New wires an Orchestrator over its collaborators. It subscribes to the
// cache's expire/clear events to drive the per-resource subscription state
// machine's teardown transitions (spec §4.6's state table).
func New(
	registry *schema.Registry,
	adapter store.Adapter,
	brk broker.Broker,
	cache *resourcecache.Cache,
	pipeline *filterpipeline.Pipeline,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		adapter:  adapter,
		brk:      brk,
		cache:    cache,
		pipeline: pipeline,
		analyzer: viewanalyzer.New(registry),
		cfg:      Config{DefaultPageSize: 10},
		onWarning: newBroadcaster(),
		subs:      newSubscriptions(),
	}
	for _, opt := range opts {
		opt(&o.cfg)
	}

	cache.OnExpire(o.teardownSubscription)
	cache.OnClear(o.teardownSubscription)

	return o
}

// OnWarning registers a callback invoked whenever the orchestrator logs a
// spec §7 "warning" event (an error from an operation that already
// published some of its intermediate notifications).
func (o *Orchestrator) OnWarning(fn func(error)) (unsubscribe func()) { return o.onWarning.Subscribe(fn) }

func (o *Orchestrator) warn(ctx context.Context, err error) {
	slog.WarnContext(ctx, "crud: warning", "error", err)
	o.onWarning.emit(err)
}

func (o *Orchestrator) pageSize(q Query) int {
	if q.PageSize > 0 {
		return q.PageSize
	}

	return o.cfg.DefaultPageSize
}

// teardownSubscription is wired to the cache's expire and clear events; it
// implements the "Subscribed -> cache expire/clear -> Idle" transition:
// unsubscribe and destroy the resource channel, dropping the orchestrator's
// own subscription bookkeeping. A subsequent read(id) call re-subscribes
// from scratch.
func (o *Orchestrator) teardownSubscription(key resourcecache.Key) {
	removed, wasSubscribed := o.subs.remove(key)
	if !removed || !wasSubscribed {
		return
	}

	ch := o.brk.Channel(resourceChannelName(key))
	ch.Unsubscribe()
	ch.Destroy()
}
