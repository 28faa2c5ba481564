package schema

import "errors"

// ErrUnknownType indicates the requested model type is not in the registry.
var ErrUnknownType = errors.New("schema: unknown type")

// ErrUnknownView indicates the requested view is not declared on its model.
var ErrUnknownView = errors.New("schema: unknown view")
