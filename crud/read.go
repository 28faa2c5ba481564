package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SocketCluster/sc-crud-rethink/concurrency"
	"github.com/SocketCluster/sc-crud-rethink/resourcecache"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/store"
)

// ReadResult is the shape returned for a view read: one page of ids, plus
// isLastPage and an optional total count.
type ReadResult struct {
	Data       []string
	IsLastPage bool
	Count      *int
}

// Read serves either a single resource (q.ID set) or a view page (q.View
// set). See spec §4.6 for the full read-path behavior.
func (o *Orchestrator) Read(ctx context.Context, q Query) (any, error) {
	if err := o.validateQuery(q); err != nil {
		return nil, err
	}

	if err := o.pipeline.Pre(ctx, schema.FilterRequest{
		Type: q.Type, ID: q.ID, Field: q.Field, AuthToken: q.AuthToken,
	}); err != nil {
		return nil, err
	}

	if q.ID == "" {
		return o.readView(ctx, q)
	}

	return o.readByID(ctx, q)
}

func (o *Orchestrator) readView(ctx context.Context, q Query) (*ReadResult, error) {
	if q.View == "" {
		return nil, fmt.Errorf("%w: read requires either id or view", ErrInvalidParams)
	}

	v, _ := o.registry.ViewSchema(q.Type, q.View)
	params := sanitizeViewParams(v.ParamFields, q.ViewParams)

	vq := store.ViewQuery{
		Type:      q.Type,
		View:      q.View,
		Transform: v.Transform,
		Params:    params,
		Offset:    q.Offset,
		PageSize:  o.pageSize(q),
	}

	var ids []string
	var count int
	var listErr, countErr error

	if q.GetCount {
		// spec §5: the page-rows-plus-count double fetch runs concurrently
		// (RunGroup shape). Its own first-error-wins return is ignored here
		// because a count failure must not block the primary list result
		// (spec §7); listErr/countErr, captured individually, drive that.
		_ = concurrency.RunGroup(ctx,
			func(ctx context.Context) error { ids, listErr = o.adapter.ListView(ctx, vq); return listErr },
			func(ctx context.Context) error { count, countErr = o.adapter.CountView(ctx, vq); return countErr },
		)
	} else {
		ids, listErr = o.adapter.ListView(ctx, vq)
	}

	if listErr != nil {
		slog.ErrorContext(ctx, "crud: store error listing view", "type", q.Type, "view", q.View, "error", listErr)

		return nil, newStoreError("read", listErr)
	}

	result := &ReadResult{IsLastPage: len(ids) <= vq.PageSize}
	if !result.IsLastPage {
		ids = ids[:vq.PageSize]
	}
	result.Data = ids

	if q.GetCount {
		if countErr != nil {
			// Spec §7: errors during view-offset/count computation do not
			// block primary acknowledgement; they are logged.
			slog.ErrorContext(ctx, "crud: store error counting view", "type", q.Type, "view", q.View, "error", countErr)
		} else {
			result.Count = &count
		}
	}

	if err := o.pipeline.Post(ctx, schema.FilterRequest{Type: q.Type, Query: q.ViewParams}, false); err != nil {
		return nil, err
	}

	return result, nil
}

func (o *Orchestrator) readByID(ctx context.Context, q Query) (schema.Document, error) {
	key := resourcecache.Key{Type: q.Type, ID: q.ID}

	type outcome struct {
		doc schema.Document
		err error
	}
	done := make(chan outcome, 1)
	cb := func(doc schema.Document, err error) { done <- outcome{doc, err} }

	switch o.subs.onRead(key, cb) {
	case actionDrainNow:
		o.cache.Pass(ctx, key, o.providerFor(ctx, key), cb)
	case actionSubscribe:
		o.startSubscribe(ctx, key)
	case actionNone:
		// Buffered; the in-flight subscribe attempt will drain it.
	}

	out := <-done

	return out.doc, out.err
}

// startSubscribe implements the Subscribing row's exit transitions: on
// broker subscribe success, wire the change-event watch handler and drain
// every buffered reader through the cache; on failure, flush the buffer
// with ErrFailedToSubscribe.
func (o *Orchestrator) startSubscribe(ctx context.Context, key resourcecache.Key) {
	ch, err := o.brk.Subscribe(ctx, resourceChannelName(key))
	if err != nil {
		for _, cb := range o.subs.failSubscribe(key) {
			cb(nil, fmt.Errorf("%w: %v", ErrFailedToSubscribe, err))
		}

		return
	}

	ch.Watch(func(any) {
		// Any observed change on the resource channel invalidates the
		// cache entry so the next read refetches; per spec §3 this also
		// tears down the subscription (the cache's clear event fires
		// teardownSubscription), so the very next read starts fresh.
		o.cache.Clear(key)
	})

	provider := o.providerFor(ctx, key)
	for _, cb := range o.subs.confirmSubscribed(key) {
		o.cache.Pass(ctx, key, provider, cb)
	}
}

func (o *Orchestrator) providerFor(ctx context.Context, key resourcecache.Key) resourcecache.DataProvider {
	return func(cb resourcecache.Callback) {
		doc, err := o.adapter.Get(ctx, key.Type, key.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "crud: store error fetching resource", "type", key.Type, "id", key.ID, "error", err)
			err = newStoreError("read", err)
		}
		cb(doc, err)
	}
}
