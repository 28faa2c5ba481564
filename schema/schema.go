// Package schema provides the read-only index of model types, fields, and
// view declarations consumed by the rest of the CRUD core. Once built by
// New, a Registry is immutable and safe for concurrent use without locking.
package schema

import "context"

// Document is a single resource: a map from field name to value.
type Document = map[string]any

// FilterPhase names the two FilterPipeline phases a model may hook into.
type FilterPhase string

const (
	PhasePre  FilterPhase = "pre"
	PhasePost FilterPhase = "post"
)

// FilterHook is an opaque per-model policy hook. It admits the request by
// returning a nil error; any non-nil error is a denial.
type FilterHook func(ctx context.Context, req FilterRequest) error

// FilterRequest carries what's known at the phase the hook runs in.
// Resource is nil during the pre phase (no document has been loaded yet).
type FilterRequest struct {
	Type      string
	ID        string
	Field     string
	AuthToken string
	Query     map[string]any
	Resource  Document
}

// AccessControlHook is a per-model hook separate from the pre/post filter
// hooks; it receives the same request shape. Registry.AccessControlHook
// exposes it; FilterPipeline does not call it.
type AccessControlHook func(ctx context.Context, req FilterRequest) error

// Transform builds a filtered/ordered collection query from the model's base
// query, the store's DSL handle, and the view's sanitized parameter map.
// query and dsl are opaque to the schema; only the StoreAdapter and the
// transform itself understand their concrete types.
type Transform func(baseQuery any, dsl any, sanitizedParams map[string]any) any

// View is an ordered, optionally-filtered projection of a model.
type View struct {
	Name string

	// ParamFields is the subset of document fields that parameterize the
	// view and enter the view channel name.
	ParamFields []string

	// AffectingFields is the subset of document fields that can change
	// view membership or ordering without appearing in the channel name.
	AffectingFields []string

	// PrimaryKeys is the subset of ParamFields that uniquely identifies a
	// subscribable view instance. Defaults to ParamFields when empty.
	PrimaryKeys []string

	Transform Transform
}

// primaryKeysOrDefault returns PrimaryKeys, defaulting to ParamFields.
func (v View) primaryKeysOrDefault() []string {
	if len(v.PrimaryKeys) > 0 {
		return v.PrimaryKeys
	}

	return v.ParamFields
}

// Model is a named collection of documents.
type Model struct {
	Name   string
	Fields []string
	Views  map[string]View

	AccessControl AccessControlHook
	PreFilter     FilterHook
	PostFilter    FilterHook
}

// Registry is the immutable, read-only index over a set of models.
type Registry struct {
	models map[string]Model
}

// New builds a Registry from a set of model declarations. The field and view
// lookup tables are precomputed so that every Registry method below is O(1).
func New(models map[string]Model) *Registry {
	copied := make(map[string]Model, len(models))
	for name, m := range models {
		m.Name = name
		if m.Views == nil {
			m.Views = map[string]View{}
		}
		copied[name] = m
	}

	return &Registry{models: copied}
}

// HasType reports whether typeName is a declared model.
func (r *Registry) HasType(typeName string) bool {
	_, ok := r.models[typeName]

	return ok
}

// FieldsOf returns the declared fields of typeName, or nil if undeclared.
func (r *Registry) FieldsOf(typeName string) []string {
	m, ok := r.models[typeName]
	if !ok {
		return nil
	}

	return m.Fields
}

// ViewsOf returns every view declared on typeName.
func (r *Registry) ViewsOf(typeName string) map[string]View {
	m, ok := r.models[typeName]
	if !ok {
		return nil
	}

	return m.Views
}

// ViewSchema returns a single view declaration, and whether it exists.
func (r *Registry) ViewSchema(typeName, viewName string) (View, bool) {
	m, ok := r.models[typeName]
	if !ok {
		return View{}, false
	}
	v, ok := m.Views[viewName]

	return v, ok
}

// FilterHook returns the model's hook for the given phase, and whether one
// is declared.
func (r *Registry) FilterHook(typeName string, phase FilterPhase) (FilterHook, bool) {
	m, ok := r.models[typeName]
	if !ok {
		return nil, false
	}
	switch phase {
	case PhasePre:
		if m.PreFilter == nil {
			return nil, false
		}

		return m.PreFilter, true
	case PhasePost:
		if m.PostFilter == nil {
			return nil, false
		}

		return m.PostFilter, true
	default:
		return nil, false
	}
}

// AccessControlHook returns the model's access control hook, if declared.
func (r *Registry) AccessControlHook(typeName string) (AccessControlHook, bool) {
	m, ok := r.models[typeName]
	if !ok || m.AccessControl == nil {
		return nil, false
	}

	return m.AccessControl, true
}

// PrimaryKeysOf returns the effective primary keys of a view (defaulting to
// its paramFields), or nil if the view is undeclared.
func (r *Registry) PrimaryKeysOf(typeName, viewName string) []string {
	v, ok := r.ViewSchema(typeName, viewName)
	if !ok {
		return nil
	}

	return v.primaryKeysOrDefault()
}
