package storage

import "errors"

// Error kinds from spec.md §7. The schema error is record.ErrInvalidSchema
// and the query error is query.ErrInvalidQuery; the kinds below are the
// storage engine's own, for its file and frame handling.
var (
	ErrSchemaMismatch  = errors.New("storage: existing metadata incompatible with supplied schema")
	ErrTooBigRow       = errors.New("storage: row or metadata exceeds allowed bounds")
	ErrOutOfRange      = errors.New("storage: index or offset out of range")
	ErrNotFound        = errors.New("storage: predicate matched no row")
	ErrInvalidArgument = errors.New("storage: invalid argument")
	ErrCorruption      = errors.New("storage: corrupted metadata or strings heap")
)
