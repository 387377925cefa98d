// internal/models/errors.go
package models

import "errors"

// Domain-level rejection reasons. Handlers map these to transport responses;
// everything else bubbling out of the core is a collaborator failure.
var (
	// ErrInvalidRequest covers malformed game types and unknown identities.
	// The request is rejected at the boundary with no state change.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSessionNotFound means the referenced game is stale or already
	// terminated. Callers treat this as "nothing to do", not a fault.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnauthorized means the caller's identity does not match the color it
	// claims for the match, or it acted on someone else's draw offer.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMoveRejected means an illegal move, or a move attempted while the
	// mover's own clock was not running.
	ErrMoveRejected = errors.New("move rejected")
)
