package crud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SocketCluster/sc-crud-rethink/channelnamer"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/viewanalyzer"
)

// Create inserts a new document and publishes its resource channel plus a
// "create" message on every view it lands in. It returns the new document's
// id (spec §4.6).
func (o *Orchestrator) Create(ctx context.Context, q Query) (string, error) {
	if err := o.validateModelType(q); err != nil {
		return "", err
	}

	value, ok := asDocument(q.Value)
	if !ok {
		return "", fmt.Errorf("%w: create requires value to be an object", ErrInvalidParams)
	}

	if err := o.pipeline.Pre(ctx, schema.FilterRequest{Type: q.Type, AuthToken: q.AuthToken, Query: value}); err != nil {
		return "", err
	}

	id, err := o.adapter.Insert(ctx, q.Type, value)
	if err != nil {
		slog.ErrorContext(ctx, "crud: store error inserting document", "type", q.Type, "error", err)

		return "", newStoreError("create", err)
	}

	inserted := cloneWithID(value, id)

	if err := o.brk.Publish(ctx, channelnamer.Resource(q.Type, id), nil); err != nil {
		o.warn(ctx, fmt.Errorf("crud: publish resource channel after create: %w", err))
	}

	for _, affected := range o.analyzer.Affected(viewanalyzer.Mutation{Type: q.Type, Resource: inserted}) {
		channelName := channelnamer.View(q.Type, affected.View, affected.Params)
		if err := o.brk.Publish(ctx, channelName, map[string]any{"type": "create", "id": id}); err != nil {
			o.warn(ctx, fmt.Errorf("crud: publish view channel after create: %w", err))
		}
	}

	return id, nil
}

func cloneWithID(doc schema.Document, id string) schema.Document {
	out := make(schema.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["id"] = id

	return out
}
