package pal

import (
	"errors"
	"fmt"
)

// Recording and registry errors. All of these are user-facing and
// recoverable: they are returned at declaration time, before any GPU
// work is issued.
var (
	// ErrConflictingAccess is returned when two declarations within one
	// operation request incompatible image layouts for the same resource.
	ErrConflictingAccess = errors.New("pal: conflicting layout declarations within operation")

	// ErrResourceInUse is returned when unregistering a resource that is
	// still referenced by a sealed but not yet flushed operation.
	ErrResourceInUse = errors.New("pal: resource referenced by pending operations")

	// ErrUnknownResource is returned when a declaration references a
	// handle that was never registered (or was unregistered).
	ErrUnknownResource = errors.New("pal: resource not registered")

	// ErrAlreadyRegistered is returned when registering a resource whose
	// native handle is already tracked by the registry.
	ErrAlreadyRegistered = errors.New("pal: resource already registered")

	// ErrUnknownOperation is returned when an operation ID does not refer
	// to an operation begun on this epoch.
	ErrUnknownOperation = errors.New("pal: unknown operation")

	// ErrOperationSealed is returned when declaring accesses on an
	// operation after End has been called on it.
	ErrOperationSealed = errors.New("pal: operation already sealed")

	// ErrOperationOpen is returned by Flush when an operation was begun
	// but never sealed. Unsealed operations have an incomplete declared
	// access set, so sequencing them could under-synchronize.
	ErrOperationOpen = errors.New("pal: operation not sealed at flush")

	// ErrEpochFlushed is returned when recording into an epoch that has
	// already been flushed or discarded.
	ErrEpochFlushed = errors.New("pal: epoch already flushed")
)

// SequencingError reports an internal invariant violation: a planned
// cross-queue wait has no corresponding prior signal. This indicates a
// defect in the hazard builder or planner, not a user error. The epoch
// is aborted rather than submitted partially synchronized, since GPU
// hazards downgraded to best effort would produce silent data corruption.
type SequencingError struct {
	// Queue is the source queue the orphaned wait referenced.
	Queue QueueID
	// Value is the timeline value the wait expected to be signaled.
	Value uint64
	// Detail describes where in sequencing the violation was detected.
	Detail string
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("pal: sequencing invariant violated: wait on %s timeline value %d has no prior signal (%s)",
		e.Queue, e.Value, e.Detail)
}
