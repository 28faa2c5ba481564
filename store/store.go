// Package store declares the StoreAdapter boundary the orchestrator
// delegates document I/O and view materialization to. The concrete
// document database and its query DSL are external collaborators (spec §1);
// this package only names the narrow interface the orchestrator consumes,
// following the shape of lib/gcpspanner/spanneradapters.BackendSpannerClient
// in the teacher codebase: one method per operation, context-first,
// synchronous return values.
package store

import (
	"context"
	"errors"

	"github.com/SocketCluster/sc-crud-rethink/schema"
)

// ErrNotFound indicates the requested (type, id) has no document.
var ErrNotFound = errors.New("store: resource not found")

// ErrFieldNotFound indicates the requested field does not exist on the document.
var ErrFieldNotFound = errors.New("store: field not found")

// ViewQuery carries everything a StoreAdapter needs to materialize a page of
// a view: the view's transform, the sanitized parameter map (only declared
// paramFields survive sanitization, with undefined values mapped to nil),
// and the requested page window.
type ViewQuery struct {
	Type      string
	View      string
	Transform schema.Transform
	Params    map[string]any
	Offset    int
	PageSize  int
}

// Adapter is the StoreAdapter boundary. Implementations must be safe for
// concurrent use; the orchestrator calls through it from many goroutines.
type Adapter interface {
	// Insert stores a new document and returns its id. If doc already
	// carries an "id" field, implementations should use it rather than
	// generating one.
	Insert(ctx context.Context, typeName string, doc schema.Document) (id string, err error)

	// Get fetches a single document, or ErrNotFound.
	Get(ctx context.Context, typeName, id string) (schema.Document, error)

	// Save applies a partial or full update to an existing document.
	// Implementations must merge patch into the stored document rather than
	// replacing it outright.
	Save(ctx context.Context, typeName, id string, patch schema.Document) error

	// DeleteField removes a single field from a document.
	DeleteField(ctx context.Context, typeName, id, field string) error

	// Delete removes an entire document.
	Delete(ctx context.Context, typeName, id string) error

	// ListView returns one page of document ids for a view, requesting
	// pageSize+1 rows so the caller can compute isLastPage without a
	// second round trip.
	ListView(ctx context.Context, q ViewQuery) (ids []string, err error)

	// CountView returns the total row count for a view, ignoring paging.
	CountView(ctx context.Context, q ViewQuery) (int, error)
}
