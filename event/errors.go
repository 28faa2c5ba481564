package event

import "errors"

// ErrInvalidEnvelope indicates the message structure is malformed.
var ErrInvalidEnvelope = errors.New("event: invalid envelope")

// ErrNoHandler indicates no registered route matched the message's kind and
// apiVersion.
var ErrNoHandler = errors.New("event: no handler registered")

// ErrSchemaValidation indicates the envelope's data did not match the
// target type.
var ErrSchemaValidation = errors.New("event: schema validation failed")

// ErrUnprocessableEntity wraps every error HandleMessage returns for a
// message it cannot decode or route, so callers can distinguish a
// malformed/unroutable message (retry is pointless) from a handler's own
// error, which HandleMessage returns unwrapped.
var ErrUnprocessableEntity = errors.New("event: unprocessable entity")
