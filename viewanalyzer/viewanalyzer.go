// Package viewanalyzer derives which named views of a model are affected by
// a document mutation, from field-level deltas.
package viewanalyzer

import (
	"github.com/SocketCluster/sc-crud-rethink/schema"
)

// Mutation describes a change to resolve affected views for.
//
// Fields lists the field names whose values changed; a nil Fields means
// "assume all fields changed" (used for create/delete; updates pass the
// names of the fields they change).
type Mutation struct {
	Type     string
	Resource schema.Document
	Fields   []string
}

// Affected describes one view instance impacted by a mutation.
type Affected struct {
	View string
	Type string

	// Params holds the paramField values read from the mutated resource.
	Params map[string]any

	// AffectingData holds both paramFields and affectingFields values; it's
	// what distinguishes a "move" from a no-op when params are unchanged.
	AffectingData map[string]any
}

// Analyzer enumerates affected views against a schema.Registry.
type Analyzer struct {
	registry *schema.Registry
}

// New builds an Analyzer bound to the given registry.
func New(registry *schema.Registry) *Analyzer {
	return &Analyzer{registry: registry}
}

// Affected returns every view of m.Type affected by the mutation, per the
// decision rule in isAffected.
func (a *Analyzer) Affected(m Mutation) []Affected {
	views := a.registry.ViewsOf(m.Type)
	if len(views) == 0 {
		return nil
	}

	out := make([]Affected, 0, len(views))
	for name, v := range views {
		if !isAffected(m.Fields, v.ParamFields, v.AffectingFields) {
			continue
		}
		out = append(out, Affected{
			View:          name,
			Type:          m.Type,
			Params:        project(m.Resource, v.ParamFields),
			AffectingData: project(m.Resource, append(append([]string{}, v.ParamFields...), v.AffectingFields...)),
		})
	}

	return out
}

// isAffected is the view-affect decision rule: a view is affected iff
// fields is nil (assume all fields changed), or at least one changed field
// belongs to {id} ∪ paramFields ∪ affectingFields. The id field is always
// treated as affecting, since it drives membership on create/delete.
func isAffected(changedFields, paramFields, affectingFields []string) bool {
	if changedFields == nil {
		return true
	}

	relevant := make(map[string]struct{}, 1+len(paramFields)+len(affectingFields))
	relevant["id"] = struct{}{}
	for _, f := range paramFields {
		relevant[f] = struct{}{}
	}
	for _, f := range affectingFields {
		relevant[f] = struct{}{}
	}

	for _, f := range changedFields {
		if _, ok := relevant[f]; ok {
			return true
		}
	}

	return false
}

func project(doc schema.Document, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := doc[f]
		if !ok {
			out[f] = nil

			continue
		}
		out[f] = v
	}

	return out
}

// AnalyzeUpdate computes the affected views of both sides of an update for
// the same changedFields, as used by Orchestrator.NotifyUpdate. The two
// lists are returned separately; they are neither merged nor deduplicated.
func (a *Analyzer) AnalyzeUpdate(typeName string, oldResource, newResource schema.Document, changedFields []string) (oldAffected, newAffected []Affected) {
	oldAffected = a.Affected(Mutation{Type: typeName, Resource: oldResource, Fields: changedFields})
	newAffected = a.Affected(Mutation{Type: typeName, Resource: newResource, Fields: changedFields})

	return oldAffected, newAffected
}
