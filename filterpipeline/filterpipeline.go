// Package filterpipeline implements the two-phase authorization pipeline
// (spec §4.5) that mediates every inbound broker request: pre runs before
// any resource is loaded, post runs with the resource available and may
// itself trigger a cached fetch when invoked for a subscribe attempt.
package filterpipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/SocketCluster/sc-crud-rethink/broker"
	"github.com/SocketCluster/sc-crud-rethink/channelnamer"
	"github.com/SocketCluster/sc-crud-rethink/resourcecache"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/store"
)

// ErrPublishNotAllowed is returned (unwrapped) for any inbound publish
// attempt against a "crud>" channel; the server owns publication to those
// channels, so this denial is unconditional.
var ErrPublishNotAllowed = errors.New("filterpipeline: outside client may not publish to a crud channel")

// Blocked is returned by Pre/Post (and surfaced through broker.Next) when a
// hook denies a request, or when no hook is declared and the corresponding
// blockByDefault flag is set.
type Blocked struct {
	Phase  schema.FilterPhase
	Reason error // nil when the denial came from a missing hook + blockByDefault.
}

func (b *Blocked) Error() string {
	if b.Reason == nil {
		return fmt.Sprintf("filterpipeline: blocked in %s phase (no hook, blocked by default)", b.Phase)
	}

	return fmt.Sprintf("filterpipeline: blocked in %s phase: %v", b.Phase, b.Reason)
}

func (b *Blocked) Unwrap() error { return b.Reason }

// Config holds the pipeline's default-admission policy.
type Config struct {
	BlockPreByDefault  bool
	BlockPostByDefault bool
}

// Option configures a Pipeline at construction time.
type Option func(*Config)

func WithBlockPreByDefault(v bool) Option  { return func(c *Config) { c.BlockPreByDefault = v } }
func WithBlockPostByDefault(v bool) Option { return func(c *Config) { c.BlockPostByDefault = v } }

// Pipeline runs a model's declared pre/post filter hooks and binds them to
// the broker's emit/publishIn/subscribe middleware points.
type Pipeline struct {
	registry *schema.Registry
	adapter  store.Adapter
	cache    *resourcecache.Cache
	cfg      Config
}

// New builds a Pipeline. adapter and cache are used only by Post when
// invoked with fetchResource=true, to load the resource the hook inspects.
func New(registry *schema.Registry, adapter store.Adapter, cache *resourcecache.Cache, opts ...Option) *Pipeline {
	p := &Pipeline{registry: registry, adapter: adapter, cache: cache}
	for _, opt := range opts {
		opt(&p.cfg)
	}

	return p
}

// Pre runs the pre-phase hook for req.Type. A missing hook admits unless
// BlockPreByDefault is set.
func (p *Pipeline) Pre(ctx context.Context, req schema.FilterRequest) error {
	hook, ok := p.registry.FilterHook(req.Type, schema.PhasePre)
	if !ok {
		if p.cfg.BlockPreByDefault {
			return &Blocked{Phase: schema.PhasePre}
		}

		return nil
	}

	if err := hook(ctx, req); err != nil {
		return &Blocked{Phase: schema.PhasePre, Reason: err}
	}

	return nil
}

// Post runs the post-phase hook for req.Type. When fetchResource is true
// and req.Resource is nil, the resource is loaded through the cache first
// (joining whatever single-flight fetch, if any, a concurrent reader
// already started) so the hook sees the same document a reader would.
func (p *Pipeline) Post(ctx context.Context, req schema.FilterRequest, fetchResource bool) error {
	if fetchResource && req.Resource == nil {
		doc, err := p.fetch(ctx, req.Type, req.ID)
		if err != nil {
			return err
		}
		req.Resource = doc
	}

	hook, ok := p.registry.FilterHook(req.Type, schema.PhasePost)
	if !ok {
		if p.cfg.BlockPostByDefault {
			return &Blocked{Phase: schema.PhasePost}
		}

		return nil
	}

	if err := hook(ctx, req); err != nil {
		return &Blocked{Phase: schema.PhasePost, Reason: err}
	}

	return nil
}

func (p *Pipeline) fetch(ctx context.Context, typeName, id string) (schema.Document, error) {
	type outcome struct {
		doc schema.Document
		err error
	}
	done := make(chan outcome, 1)

	p.cache.Pass(ctx, resourcecache.Key{Type: typeName, ID: id}, func(cb resourcecache.Callback) {
		doc, err := p.adapter.Get(ctx, typeName, id)
		cb(doc, err)
	}, func(doc schema.Document, err error) {
		done <- outcome{doc, err}
	})

	o := <-done

	return o.doc, o.err
}

// requestFromBroker translates a broker.Request into the schema-level
// FilterRequest the hooks understand, decoding Type/ID/Field from the
// channel name (middleware requests never carry them pre-parsed).
func requestFromBroker(req broker.Request) schema.FilterRequest {
	fr := schema.FilterRequest{AuthToken: req.AuthToken}

	desc, err := channelnamer.Parse(req.Channel)
	if err == nil {
		fr.Type = desc.Type
		if desc.Kind == channelnamer.KindModel {
			fr.ID = desc.ID
			fr.Field = desc.Field
		} else {
			fr.Query = desc.Params
		}
	}
	if m, ok := req.Data.(map[string]any); ok {
		fr.Query = m
	}

	return fr
}

// EmitMiddleware gates a server-side publish through the pre-phase hook,
// per spec §4.5 ("emit is gated by pre").
func (p *Pipeline) EmitMiddleware() broker.Middleware {
	return func(ctx context.Context, req broker.Request, next broker.Next) {
		next(p.Pre(ctx, requestFromBroker(req)))
	}
}

// PublishInMiddleware unconditionally denies any inbound publish attempt
// against a "crud>" channel; the server is the only legitimate publisher.
func (p *Pipeline) PublishInMiddleware() broker.Middleware {
	return func(_ context.Context, _ broker.Request, next broker.Next) {
		next(ErrPublishNotAllowed)
	}
}

// SubscribeMiddleware runs pre, then post with fetchResource=true, per spec
// §4.5. A pre denial short-circuits before any resource is loaded.
func (p *Pipeline) SubscribeMiddleware() broker.Middleware {
	return func(ctx context.Context, req broker.Request, next broker.Next) {
		fr := requestFromBroker(req)

		if err := p.Pre(ctx, fr); err != nil {
			next(err)

			return
		}

		next(p.Post(ctx, fr, true))
	}
}
