package services

import "errors"

// Storage-level errors returned by the SessionStore. Handlers map these to
// HTTP statuses; the orchestrator uses them to decide whether a turn can
// proceed at all.
var (
	// ErrStorageUnavailable wraps any backend failure that is not a caller
	// mistake (connection refused, transaction failure, etc.)
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSessionNotFound is returned when a session id does not exist or does
	// not belong to the requesting user
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionArchived is returned when appending to an archived session
	ErrSessionArchived = errors.New("session is archived")

	// ErrMessageNotFound is returned when a message id does not exist
	ErrMessageNotFound = errors.New("message not found")

	// ErrReplyAlreadySet is returned when FillReply is called twice for the
	// same message. This should never happen in the normal turn flow, so
	// callers treat it as a bug signal and log loudly.
	ErrReplyAlreadySet = errors.New("reply already set")
)
