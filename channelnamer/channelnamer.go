// Package channelnamer encodes and decodes the broker channel names used to
// carry resource, field, and view change notifications.
//
// Encoding is pure and bidirectional: every name produced by Resource,
// Field, or View round-trips through Parse to a descriptor that compares
// equal (up to canonical parameter equality) to the one that produced it.
package channelnamer

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

const prefix = "crud>"

// ErrNotACRUDChannel indicates the given name does not carry the "crud>" prefix.
var ErrNotACRUDChannel = errors.New("channelnamer: not a crud channel")

// Kind discriminates the two channel shapes a parsed name can take.
type Kind int

const (
	// KindModel covers resource and field channels: crud>type/id[/field].
	KindModel Kind = iota
	// KindView covers view channels: crud>view(params):type.
	KindView
)

// Descriptor is the discriminated result of Parse.
type Descriptor struct {
	Kind Kind

	// Populated when Kind == KindModel.
	Type  string
	ID    string
	Field string // empty if this is a resource channel rather than a field channel.

	// Populated when Kind == KindView.
	View   string
	Params map[string]any
}

// Resource returns the channel name for change notifications on an entire document.
func Resource(typeName, id string) string {
	return prefix + typeName + "/" + id
}

// Field returns the channel name for change notifications on a single field of a document.
func Field(typeName, id, field string) string {
	return prefix + typeName + "/" + id + "/" + field
}

// View returns the channel name for a named, parameterized view instance.
//
// The name is stable under primaryParams values alone: two calls with maps
// that canonicalize to the same JSON produce the identical channel name,
// regardless of Go map iteration order. Every key of primaryParams enters the
// name, so maps with different key sets produce different names.
func View(typeName, viewName string, primaryParams map[string]any) string {
	return prefix + viewName + "(" + CanonicalJSON(primaryParams) + "):" + typeName
}

// CanonicalJSON serializes v (expected to be a map[string]any) with object
// keys sorted lexicographically and undefined (nil/missing) values encoded
// as null, so that equal parameter sets always produce byte-identical output.
func CanonicalJSON(v map[string]any) string {
	if v == nil {
		v = map[string]any{}
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		val := v[k]
		if val == nil {
			b.WriteString("null")

			continue
		}
		vb, err := json.Marshal(val)
		if err != nil {
			b.WriteString("null")

			continue
		}
		b.Write(vb)
	}
	b.WriteByte('}')

	return b.String()
}

// Parse recognizes the "crud>" prefix and returns a discriminated descriptor.
// It returns ErrNotACRUDChannel for any name lacking the prefix.
//
// Ambiguity rule: if the segment immediately after "crud>" contains a ':',
// the name is a view channel; otherwise it's the slash-separated
// type[/id[/field]] form.
func Parse(name string) (Descriptor, error) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return Descriptor{}, ErrNotACRUDChannel
	}

	if strings.IndexByte(rest, ':') >= 0 {
		closeParen, ok := matchingCloseParen(rest)
		if !ok {
			return Descriptor{}, ErrNotACRUDChannel
		}
		viewName := rest[:strings.IndexByte(rest, '(')]
		paramsJSON := rest[strings.IndexByte(rest, '(')+1 : closeParen]
		typeName, ok := strings.CutPrefix(rest[closeParen+1:], ":")
		if !ok {
			return Descriptor{}, ErrNotACRUDChannel
		}

		var params map[string]any
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return Descriptor{}, errors.Join(ErrNotACRUDChannel, err)
		}

		return Descriptor{
			Kind:   KindView,
			View:   viewName,
			Type:   typeName,
			Params: params,
		}, nil
	}

	segments := strings.SplitN(rest, "/", 3)
	desc := Descriptor{Kind: KindModel, Type: segments[0]}
	if len(segments) > 1 {
		desc.ID = segments[1]
	}
	if len(segments) > 2 {
		desc.Field = segments[2]
	}

	return desc, nil
}

// matchingCloseParen reports whether rest opens with "name(" and contains a
// balanced closing ')' for it, returning that ')' index. Matching on paren
// balance (rather than the first literal ':') keeps a ':' inside the JSON
// parameter blob from being mistaken for the view/type delimiter.
func matchingCloseParen(rest string) (int, bool) {
	open := strings.IndexByte(rest, '(')
	if open < 0 {
		return 0, false
	}
	depth := 0
	for i := open; i < len(rest); i++ {
		switch rest[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}

	return 0, false
}
