package shared

import "errors"

// Sentinel errors used across services. Domain packages wrap these
// with fmt.Errorf("...: %w", ...) so handlers can map them to HTTP
// status codes without knowing domain specifics.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrConcurrency = errors.New("concurrency conflict")
)
