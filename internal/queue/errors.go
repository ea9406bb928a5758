package queue

import "errors"

var (
	// ErrAlreadyQueued is returned when a visit already has an entry for the service
	ErrAlreadyQueued = errors.New("visit already queued for service")

	// ErrEntryNotFound is returned when an entry id is unknown
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrInvalidTransition is returned for a disallowed status change
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus is returned when a status value is not part of the enumeration
	ErrInvalidStatus = errors.New("unknown status")

	// ErrForbidden is returned when the caller's role does not permit the operation
	ErrForbidden = errors.New("operation requires admin role")

	// ErrEntryNotDeletable is returned when single-entry deletion targets a
	// non-prerequisite entry; de-queueing other services goes through selection edits
	ErrEntryNotDeletable = errors.New("only prerequisite entries can be deleted individually")

	// ErrVisitNotFound is returned when a visit id is unknown
	ErrVisitNotFound = errors.New("visit not found")
)
