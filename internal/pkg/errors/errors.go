package errors

import "errors"

var (
	// ErrNotFound covers both a missing record and a record owned by
	// someone other than the caller; the two are indistinguishable on
	// purpose.
	ErrNotFound = errors.New("not found")

	// ErrSessionNotReady rejects chat against a session whose document is
	// still being chunked and embedded.
	ErrSessionNotReady = errors.New("session is still preparing")

	// ErrUpstream marks an embedding or generation provider failure. The
	// core never retries past the transport layer; callers decide.
	ErrUpstream = errors.New("upstream provider failure")

	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
