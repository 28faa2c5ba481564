// Package memory is a reference store.Adapter implementation backed by an
// in-memory map, sufficient to run the core's test suite and the example
// cmd/server binary without a real document database. It also defines the
// concrete query/DSL types that a model's view Transform closures operate
// on, standing in for the StoreAdapter's query DSL named in spec §6.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/store"
)

// Query is the base-query / intermediate-query type threaded through a
// view's Transform. It's intentionally minimal: Filter narrows by predicate,
// OrderBy sorts, and the adapter slices the result for paging.
type Query struct {
	docs []schema.Document
}

func newQuery(docs []schema.Document) *Query {
	return &Query{docs: docs}
}

// Filter returns a new Query containing only documents matching pred.
func (q *Query) Filter(pred func(schema.Document) bool) *Query {
	out := make([]schema.Document, 0, len(q.docs))
	for _, d := range q.docs {
		if pred(d) {
			out = append(out, d)
		}
	}

	return &Query{docs: out}
}

// OrderBy returns a new Query sorted by less.
func (q *Query) OrderBy(less func(a, b schema.Document) bool) *Query {
	sorted := make([]schema.Document, len(q.docs))
	copy(sorted, q.docs)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	return &Query{docs: sorted}
}

// DSL is the handle passed to Transform alongside the base Query; it exposes
// small predicate builders so model authors don't have to hand-write
// equality comparisons against untyped document values.
type DSL struct{}

// FieldEquals returns a predicate matching documents whose field stringifies
// equal to value.
func (DSL) FieldEquals(field string, value any) func(schema.Document) bool {
	return func(d schema.Document) bool {
		return fmt.Sprint(d[field]) == fmt.Sprint(value)
	}
}

// Adapter is an in-memory store.Adapter.
type Adapter struct {
	mu   sync.RWMutex
	data map[string]map[string]schema.Document
}

// New creates an empty Adapter.
func New() *Adapter {
	return &Adapter{data: make(map[string]map[string]schema.Document)}
}

// collection returns (creating if absent) the map backing typeName. Callers
// must hold a.mu for writing.
func (a *Adapter) collection(typeName string) map[string]schema.Document {
	c, ok := a.data[typeName]
	if !ok {
		c = make(map[string]schema.Document)
		a.data[typeName] = c
	}

	return c
}

// readCollection returns the map backing typeName without mutating a.data.
// Callers must hold a.mu for reading.
func (a *Adapter) readCollection(typeName string) map[string]schema.Document {
	return a.data[typeName]
}

func cloneDoc(d schema.Document) schema.Document {
	out := make(schema.Document, len(d))
	for k, v := range d {
		out[k] = v
	}

	return out
}

// Insert implements store.Adapter.
func (a *Adapter) Insert(_ context.Context, typeName string, doc schema.Document) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	stored := cloneDoc(doc)
	stored["id"] = id
	a.collection(typeName)[id] = stored

	return id, nil
}

// Get implements store.Adapter.
func (a *Adapter) Get(_ context.Context, typeName, id string) (schema.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	doc, ok := a.readCollection(typeName)[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return cloneDoc(doc), nil
}

// Save implements store.Adapter.
func (a *Adapter) Save(_ context.Context, typeName, id string, patch schema.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	col := a.collection(typeName)
	doc, ok := col[id]
	if !ok {
		return store.ErrNotFound
	}
	merged := cloneDoc(doc)
	for k, v := range patch {
		merged[k] = v
	}
	col[id] = merged

	return nil
}

// DeleteField implements store.Adapter.
func (a *Adapter) DeleteField(_ context.Context, typeName, id, field string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	col := a.collection(typeName)
	doc, ok := col[id]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := doc[field]; !ok {
		return store.ErrFieldNotFound
	}
	delete(doc, field)

	return nil
}

// Delete implements store.Adapter.
func (a *Adapter) Delete(_ context.Context, typeName, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	col := a.collection(typeName)
	if _, ok := col[id]; !ok {
		return store.ErrNotFound
	}
	delete(col, id)

	return nil
}

// ListView implements store.Adapter. It runs q.Transform against a Query
// seeded with every document of q.Type, then slices [offset, offset+pageSize+1)
// so the orchestrator can compute isLastPage without a second round trip.
func (a *Adapter) ListView(_ context.Context, q store.ViewQuery) ([]string, error) {
	a.mu.RLock()
	docs := make([]schema.Document, 0, len(a.readCollection(q.Type)))
	for _, d := range a.readCollection(q.Type) {
		docs = append(docs, cloneDoc(d))
	}
	a.mu.RUnlock()

	result := q.Transform(newQuery(docs), DSL{}, q.Params)
	mq, ok := result.(*Query)
	if !ok {
		return nil, fmt.Errorf("store/memory: view %q transform returned %T, want *Query", q.View, result)
	}

	start := q.Offset
	if start > len(mq.docs) {
		start = len(mq.docs)
	}
	end := start + q.PageSize + 1
	if end > len(mq.docs) {
		end = len(mq.docs)
	}

	ids := make([]string, 0, end-start)
	for _, d := range mq.docs[start:end] {
		if id, ok := d["id"].(string); ok {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// CountView implements store.Adapter.
func (a *Adapter) CountView(_ context.Context, q store.ViewQuery) (int, error) {
	a.mu.RLock()
	docs := make([]schema.Document, 0, len(a.readCollection(q.Type)))
	for _, d := range a.readCollection(q.Type) {
		docs = append(docs, cloneDoc(d))
	}
	a.mu.RUnlock()

	result := q.Transform(newQuery(docs), DSL{}, q.Params)
	mq, ok := result.(*Query)
	if !ok {
		return 0, fmt.Errorf("store/memory: view %q transform returned %T, want *Query", q.View, result)
	}

	return len(mq.docs), nil
}
