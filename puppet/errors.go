package puppet

import "errors"

var (
	// ErrNotFound is returned when a payload lookup misses.
	ErrNotFound = errors.New("puppet: not found")

	// ErrUnsupported is returned by puppets that cannot perform an
	// operation on their platform (e.g. sending from a read-only puppet).
	ErrUnsupported = errors.New("puppet: operation not supported")

	// ErrNotStarted is returned when an operation requires a running puppet.
	ErrNotStarted = errors.New("puppet: not started")
)
