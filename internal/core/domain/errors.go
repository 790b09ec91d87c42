package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotReady indicates a model operation was attempted before
	// Initialize completed successfully.
	ErrNotReady = errors.New("model not ready")

	// ErrNotFound indicates a requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a write or delete carried a stale revision token.
	ErrConflict = errors.New("revision conflict")

	// ErrValidation indicates malformed input: a missing title or an
	// unsupported document type.
	ErrValidation = errors.New("validation failed")

	// ErrInit indicates the store or its indexes could not be created.
	ErrInit = errors.New("store initialisation failed")

	// ErrSync indicates a transport-level replication failure, during
	// either the catch-up or the continuous phase.
	ErrSync = errors.New("sync failed")
)
