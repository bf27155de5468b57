package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrVersionConflict is returned when an optimistic compare-and-swap update
// matched the row id but not the expected version.
var ErrVersionConflict = errors.New("storage: version conflict")
