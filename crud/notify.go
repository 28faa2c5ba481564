package crud

import (
	"context"
	"fmt"
	"reflect"

	"github.com/SocketCluster/sc-crud-rethink/channelnamer"
	"github.com/SocketCluster/sc-crud-rethink/resourcecache"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/viewanalyzer"
)

// NotifyResourceUpdate is the out-of-band counterpart to Update's
// resource/field publishing, for a writer that mutated the store directly
// (bypassing Create/Update/Delete). It clears this process's cache entry
// for (typeName, id) and publishes a field update message for every entry
// in changedFields.
func (o *Orchestrator) NotifyResourceUpdate(ctx context.Context, typeName, id string, changedFields schema.Document) error {
	if err := o.brk.Publish(ctx, channelnamer.Resource(typeName, id), nil); err != nil {
		return fmt.Errorf("crud: notifyResourceUpdate publish: %w", err)
	}
	o.cache.Clear(resourcecache.Key{Type: typeName, ID: id})

	for field, value := range changedFields {
		msg := map[string]any{"type": "update", "value": value}
		if err := o.brk.Publish(ctx, channelnamer.Field(typeName, id, field), msg); err != nil {
			o.warn(ctx, fmt.Errorf("crud: notifyResourceUpdate field publish: %w", err))
		}
	}

	return nil
}

// NotifyViewUpdate publishes a single, caller-assembled message directly to
// a view channel, for a writer that already knows which view instance and
// action applies.
func (o *Orchestrator) NotifyViewUpdate(ctx context.Context, typeName, view string, params map[string]any, message any) error {
	return o.brk.Publish(ctx, channelnamer.View(typeName, view, params), message)
}

// NotifyUpdate is the out-of-band counterpart to Update, for an external
// writer that already has both the old and new document in hand (spec
// §4.6). Per the design note in spec §9, it deliberately does not
// distinguish move from remove+add the way the online Update path does:
// it publishes one coarse "update" message per distinct (view, params)
// pair found across either side.
func (o *Orchestrator) NotifyUpdate(ctx context.Context, typeName, id string, oldResource, newResource schema.Document) error {
	changed := modifiedFields(oldResource, newResource)

	if err := o.NotifyResourceUpdate(ctx, typeName, id, projectFields(newResource, changed)); err != nil {
		o.warn(ctx, err)
	}

	oldAffected, newAffected := o.analyzer.AnalyzeUpdate(typeName, oldResource, newResource, changed)

	seen := make(map[string]struct{})
	for _, a := range oldAffected {
		publishDistinctView(ctx, o, typeName, id, a, seen)
	}
	for _, a := range newAffected {
		publishDistinctView(ctx, o, typeName, id, a, seen)
	}

	return nil
}

func publishDistinctView(ctx context.Context, o *Orchestrator, typeName, id string, a viewanalyzer.Affected, seen map[string]struct{}) {
	key := a.View + "|" + channelnamer.CanonicalJSON(a.Params)
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}

	msg := map[string]any{"type": "update", "id": id}
	if err := o.NotifyViewUpdate(ctx, typeName, a.View, a.Params, msg); err != nil {
		o.warn(ctx, fmt.Errorf("crud: notifyUpdate view publish: %w", err))
	}
}

// modifiedFields is the set difference by field inequality in either
// direction: every field present in only one of old/new, or present in
// both with unequal values.
func modifiedFields(old, new schema.Document) []string {
	keys := make(map[string]struct{}, len(old)+len(new))
	for k := range old {
		keys[k] = struct{}{}
	}
	for k := range new {
		keys[k] = struct{}{}
	}

	out := make([]string, 0, len(keys))
	for k := range keys {
		ov, oOk := old[k]
		nv, nOk := new[k]
		if oOk != nOk || !reflect.DeepEqual(ov, nv) {
			out = append(out, k)
		}
	}

	return out
}

func projectFields(doc schema.Document, fields []string) schema.Document {
	out := make(schema.Document, len(fields))
	for _, f := range fields {
		out[f] = doc[f]
	}

	return out
}
