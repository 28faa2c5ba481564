package crud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SocketCluster/sc-crud-rethink/channelnamer"
	"github.com/SocketCluster/sc-crud-rethink/resourcecache"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/viewanalyzer"
)

// Delete removes a field or an entire document, and publishes the matching
// deletion notifications (spec §4.6).
func (o *Orchestrator) Delete(ctx context.Context, q Query) error {
	if err := o.validateModelType(q); err != nil {
		return err
	}
	if q.ID == "" {
		return fmt.Errorf("%w: delete requires id", ErrInvalidParams)
	}

	if err := o.pipeline.Pre(ctx, schema.FilterRequest{
		Type: q.Type, ID: q.ID, Field: q.Field, AuthToken: q.AuthToken,
	}); err != nil {
		return err
	}

	current, err := o.adapter.Get(ctx, q.Type, q.ID)
	if err != nil {
		slog.ErrorContext(ctx, "crud: store error loading document for delete", "type", q.Type, "id", q.ID, "error", err)

		return newStoreError("delete", err)
	}

	if q.Field != "" {
		return o.deleteField(ctx, q, current)
	}

	return o.deleteResource(ctx, q, current)
}

func (o *Orchestrator) deleteField(ctx context.Context, q Query, current schema.Document) error {
	if err := o.adapter.DeleteField(ctx, q.Type, q.ID, q.Field); err != nil {
		slog.ErrorContext(ctx, "crud: store error deleting field", "type", q.Type, "id", q.ID, "field", q.Field, "error", err)

		return newStoreError("delete", err)
	}

	if err := o.brk.Publish(ctx, channelnamer.Field(q.Type, q.ID, q.Field), map[string]any{"type": "delete"}); err != nil {
		o.warn(ctx, fmt.Errorf("crud: publish field channel after field delete: %w", err))
	}

	return nil
}

func (o *Orchestrator) deleteResource(ctx context.Context, q Query, current schema.Document) error {
	// Computed before the document is gone: affected views are derived
	// from the last-known resource, matching create's symmetric use of
	// Fields=nil ("assume all fields changed").
	affected := o.analyzer.Affected(viewanalyzer.Mutation{Type: q.Type, Resource: current})

	if err := o.adapter.Delete(ctx, q.Type, q.ID); err != nil {
		slog.ErrorContext(ctx, "crud: store error deleting document", "type", q.Type, "id", q.ID, "error", err)

		return newStoreError("delete", err)
	}

	// Spec's literal delete scenario (§8 S5) publishes no resource-channel
	// message, only field and view deletions; the cache entry is cleared
	// directly here instead of relying on a resource-channel watch event.
	o.cache.Clear(resourcecache.Key{Type: q.Type, ID: q.ID})

	fields := o.registry.FieldsOf(q.Type)
	if len(fields) == 0 {
		fields = fieldNames(current)
	}
	for _, f := range fields {
		if err := o.brk.Publish(ctx, channelnamer.Field(q.Type, q.ID, f), map[string]any{"type": "delete"}); err != nil {
			o.warn(ctx, fmt.Errorf("crud: publish field channel after delete: %w", err))
		}
	}

	for _, a := range affected {
		channelName := channelnamer.View(q.Type, a.View, a.Params)
		if err := o.brk.Publish(ctx, channelName, map[string]any{"type": "delete", "id": q.ID}); err != nil {
			o.warn(ctx, fmt.Errorf("crud: publish view channel after delete: %w", err))
		}
	}

	return nil
}
