package crud

import (
	"fmt"

	"github.com/SocketCluster/sc-crud-rethink/schema"
)

// Query is the inbound request envelope described in spec §3.
type Query struct {
	Type      string
	ID        string
	Field     string
	Value     any
	AuthToken string

	View       string
	ViewParams map[string]any
	PageSize   int
	Offset     int
	GetCount   bool
}

// validateModelType checks only that q.Type is declared; callers that don't
// need the full validate (e.g. delete, which allows Field without a
// compound Value) call this directly.
func (o *Orchestrator) validateModelType(q Query) error {
	if q.Type == "" || !o.registry.HasType(q.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidModelType, q.Type)
	}

	return nil
}

// validateQuery checks the structural rules from spec §3: type must be
// declared; a field reference requires an id; a view reference must name a
// declared view and supply every paramField and primaryKey the view needs.
func (o *Orchestrator) validateQuery(q Query) error {
	if err := o.validateModelType(q); err != nil {
		return err
	}

	if q.Field != "" && q.ID == "" {
		return fmt.Errorf("%w: field reference requires an id", ErrInvalidParams)
	}

	if q.View != "" {
		v, ok := o.registry.ViewSchema(q.Type, q.View)
		if !ok {
			return fmt.Errorf("%w: unknown view %q on type %q", ErrInvalidParams, q.View, q.Type)
		}
		for _, f := range v.ParamFields {
			if _, ok := q.ViewParams[f]; !ok {
				return fmt.Errorf("%w: view %q missing paramField %q", ErrInvalidParams, q.View, f)
			}
		}
		for _, f := range o.registry.PrimaryKeysOf(q.Type, q.View) {
			if _, ok := q.ViewParams[f]; !ok {
				return fmt.Errorf("%w: view %q missing primary key %q", ErrInvalidParams, q.View, f)
			}
		}
	}

	return nil
}

// sanitizeViewParams keeps only declared paramFields, mapping any that are
// absent from raw to nil (spec §4.6: "only declared paramFields survive;
// undefined→null").
func sanitizeViewParams(paramFields []string, raw map[string]any) map[string]any {
	out := make(map[string]any, len(paramFields))
	for _, f := range paramFields {
		v, ok := raw[f]
		if !ok {
			out[f] = nil

			continue
		}
		out[f] = v
	}

	return out
}

// asDocument requires v to be a map (the "object" shape spec §4.6 demands
// for create's value and update's whole-document value).
func asDocument(v any) (schema.Document, bool) {
	doc, ok := v.(schema.Document)
	if ok {
		return doc, true
	}
	m, ok := v.(map[string]any)

	return schema.Document(m), ok
}
