package engine

import "errors"

// Sentinel errors making up the engine's error taxonomy. Callers test
// them with errors.Is; anything else is an internal/store failure.
var (
	// ErrNotFound signals a missing project, dataset item, markup
	// record, or ontology label. Detected before any mutation.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a relabel that would collide with an existing
	// markup signature.
	ErrConflict = errors.New("conflict")

	// ErrInvalidRequest signals a self-referential relation, an
	// unsupported classification, or an out-of-range span.
	ErrInvalidRequest = errors.New("invalid request")
)
