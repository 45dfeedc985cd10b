package workitem

import "errors"

var (
	// ErrNotFound is returned when no work item exists for the given id.
	ErrNotFound = errors.New("work item not found")

	// ErrClaimConflict is returned when a claim loses the compare-and-set
	// race: the item was already claimed, cancelled or is not yet due.
	// Callers skip the item; this is not a failure.
	ErrClaimConflict = errors.New("work item claim conflict")

	// ErrConfirmationRequired is returned when an item gated on explicit
	// confirmation is claimed before the confirmation event arrived.
	ErrConfirmationRequired = errors.New("work item requires confirmation")

	// ErrNotCancellable is returned when cancelling an item that is not
	// pending. Running items cannot be cancelled.
	ErrNotCancellable = errors.New("only pending work items can be cancelled")

	// ErrNotPending is returned when confirming an item that already left
	// the pending state.
	ErrNotPending = errors.New("work item is no longer pending")

	// ErrVersionConflict is returned when an optimistic update lost against
	// a concurrent writer. The caller decides whether to reload and retry.
	ErrVersionConflict = errors.New("work item version conflict")
)
