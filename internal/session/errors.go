package session

import "github.com/pkg/errors"

var (
	// ErrInvalidPolicy rejects session creation with a malformed threshold
	// policy or authorized-key set.
	ErrInvalidPolicy = errors.New("invalid session policy")

	// ErrNotFound is returned for an unknown session identifier.
	ErrNotFound = errors.New("session not found")

	// ErrUnauthorizedKey rejects a share from a key outside the session's
	// authorized set.
	ErrUnauthorizedKey = errors.New("key not in authorized set")

	// ErrInvalidSignature rejects a share that fails verification.
	ErrInvalidSignature = errors.New("signature rejected")

	// ErrInvalidState rejects an operation on a session that is no longer
	// open.
	ErrInvalidState = errors.New("session is not open")
)
