package crud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SocketCluster/sc-crud-rethink/channelnamer"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/viewanalyzer"
)

// Update applies a single-field or whole-document patch to an existing
// resource and publishes the resource channel, per-field update messages,
// and whatever view move/remove/add messages the delta produces (spec
// §4.6).
func (o *Orchestrator) Update(ctx context.Context, q Query) error {
	if err := o.validateModelType(q); err != nil {
		return err
	}
	if q.ID == "" {
		return fmt.Errorf("%w: update requires id", ErrInvalidParams)
	}

	changed, changedFields, err := updateDelta(q)
	if err != nil {
		return err
	}

	if err := o.pipeline.Pre(ctx, schema.FilterRequest{
		Type: q.Type, ID: q.ID, Field: q.Field, AuthToken: q.AuthToken, Query: changed,
	}); err != nil {
		return err
	}

	current, err := o.adapter.Get(ctx, q.Type, q.ID)
	if err != nil {
		slog.ErrorContext(ctx, "crud: store error loading document for update", "type", q.Type, "id", q.ID, "error", err)

		return newStoreError("update", err)
	}

	oldAffected := o.analyzer.Affected(viewanalyzer.Mutation{Type: q.Type, Resource: current, Fields: changedFields})

	if err := o.adapter.Save(ctx, q.Type, q.ID, changed); err != nil {
		slog.ErrorContext(ctx, "crud: store error saving update", "type", q.Type, "id", q.ID, "error", err)

		return newStoreError("update", err)
	}

	newDoc := mergeDoc(current, changed)
	newAffected := o.analyzer.Affected(viewanalyzer.Mutation{Type: q.Type, Resource: newDoc, Fields: changedFields})

	// Publishing the resource channel reaches the Watch handler installed
	// in startSubscribe, which clears the cache entry for any process
	// (including this one) currently holding it.
	if err := o.brk.Publish(ctx, channelnamer.Resource(q.Type, q.ID), nil); err != nil {
		o.warn(ctx, fmt.Errorf("crud: publish resource channel after update: %w", err))
	}

	for _, f := range changedFields {
		msg := map[string]any{"type": "update", "value": changed[f]}
		if err := o.brk.Publish(ctx, channelnamer.Field(q.Type, q.ID, f), msg); err != nil {
			o.warn(ctx, fmt.Errorf("crud: publish field channel after update: %w", err))
		}
	}

	o.publishViewDelta(ctx, q.Type, q.ID, oldAffected, newAffected)

	return nil
}

// updateDelta validates q against the two shapes update accepts (spec
// §4.6: "either field (not id) plus a scalar value, or value as an
// object") and returns the patch document plus the list of field names
// that changed.
func updateDelta(q Query) (schema.Document, []string, error) {
	if q.Field != "" {
		if q.Field == "id" {
			return nil, nil, fmt.Errorf("%w: the id field cannot be modified", ErrInvalidOperation)
		}
		if _, isObj := asDocument(q.Value); isObj {
			return nil, nil, fmt.Errorf("%w: a field update's value must be a scalar", ErrInvalidParams)
		}

		return schema.Document{q.Field: q.Value}, []string{q.Field}, nil
	}

	value, ok := asDocument(q.Value)
	if !ok {
		return nil, nil, fmt.Errorf("%w: update requires either field+value or an object value", ErrInvalidParams)
	}
	if _, hasID := value["id"]; hasID {
		return nil, nil, fmt.Errorf("%w: the id field cannot be modified", ErrInvalidOperation)
	}

	return value, fieldNames(value), nil
}

func fieldNames(doc schema.Document) []string {
	out := make([]string, 0, len(doc))
	for f := range doc {
		out = append(out, f)
	}

	return out
}

func mergeDoc(base, patch schema.Document) schema.Document {
	out := make(schema.Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}

	return out
}

// publishViewDelta implements the online update path's move/remove+add
// decision (spec §4.6), distinct from notifyUpdate's coarser rule (spec
// §9): old and new always report the same set of view names for a given
// changedFields list (the decision only depends on field names, not their
// values), so this zips the two lists by view name.
//
// The view channel name is built from the full paramFields set (Affected.Params),
// not just the subset forming the view's primary key: channel identity is
// defined to be stable under paramFields values alone, and a view's primary
// keys are always a subset of its paramFields, so this is equivalent and
// avoids tracking a second, narrower parameter map per view.
func (o *Orchestrator) publishViewDelta(ctx context.Context, typeName, id string, oldAffected, newAffected []viewanalyzer.Affected) {
	newByView := make(map[string]viewanalyzer.Affected, len(newAffected))
	for _, a := range newAffected {
		newByView[a.View] = a
	}

	for _, oldA := range oldAffected {
		newA, ok := newByView[oldA.View]
		if !ok {
			continue
		}

		paramsEqual := channelnamer.CanonicalJSON(oldA.Params) == channelnamer.CanonicalJSON(newA.Params)
		dataEqual := channelnamer.CanonicalJSON(oldA.AffectingData) == channelnamer.CanonicalJSON(newA.AffectingData)

		switch {
		case paramsEqual && dataEqual:
			// No view-level publish: neither membership nor ordering data changed.
		case paramsEqual:
			o.publishView(ctx, channelnamer.View(typeName, oldA.View, oldA.Params), map[string]any{"type": "update", "action": "move", "id": id})
		default:
			o.publishView(ctx, channelnamer.View(typeName, oldA.View, oldA.Params), map[string]any{"type": "update", "action": "remove", "id": id})
			o.publishView(ctx, channelnamer.View(typeName, newA.View, newA.Params), map[string]any{"type": "update", "action": "add", "id": id})
		}
	}
}

func (o *Orchestrator) publishView(ctx context.Context, channelName string, message any) {
	if err := o.brk.Publish(ctx, channelName, message); err != nil {
		o.warn(ctx, fmt.Errorf("crud: publish view channel: %w", err))
	}
}
