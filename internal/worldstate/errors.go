package worldstate

import "errors"

// Sentinel errors for the World Store and its collaborators, in the style
// of pkg/state/errors.go's grouped sentinel declarations.
var (
	// ErrLockTimeout indicates the cross-process lock file could not be
	// acquired within the retry schedule (spec.md §4.B step 2).
	ErrLockTimeout = errors.New("MEMORY_LOCK_TIMEOUT: timed out acquiring world store lock")

	// ErrLockFailed indicates an I/O error other than "already exists"
	// while acquiring the lock.
	ErrLockFailed = errors.New("MEMORY_LOCK_FAILED: could not acquire world store lock")

	// ErrWriteFailed indicates the temp-file write or the atomic rename
	// failed; the previously committed snapshot is preserved.
	ErrWriteFailed = errors.New("MEMORY_WRITE_FAILED: could not persist world snapshot")

	// ErrSimulatedCrash is a test-only fault injected via the
	// --simulate-crash hook; it has the same cleanup contract as
	// ErrWriteFailed.
	ErrSimulatedCrash = errors.New("SIMULATED_CRASH: injected test fault mid-transaction")

	// ErrInvalidInput indicates a caller-supplied value could not be used
	// (spec.md §7 INVALID_MEMORY_INPUT). Recoverable: no mutation occurs.
	ErrInvalidInput = errors.New("INVALID_MEMORY_INPUT: invalid memory input")

	// ErrClosed indicates an operation was attempted after the store was
	// closed.
	ErrClosed = errors.New("world store is closed")
)
