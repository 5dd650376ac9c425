package escrow

import "errors"

// Invalid-state family: ordering and terminal-state violations. These map to
// HTTP 409 at the edge and are never retried automatically.
var (
	// ErrOutOfOrder is returned when checkpoint i is submitted before
	// checkpoint i-1 has been approved.
	ErrOutOfOrder = errors.New("escrow: checkpoint out of order")
	// ErrAlreadyCompleted is returned on submit when the slot already holds an
	// unrejected submission.
	ErrAlreadyCompleted = errors.New("escrow: checkpoint already completed")
	// ErrAlreadyApproved is returned on approve/reject of a paid checkpoint.
	ErrAlreadyApproved = errors.New("escrow: checkpoint already approved")
	// ErrNotSubmitted is returned on approve/reject of an empty slot.
	ErrNotSubmitted = errors.New("escrow: checkpoint not submitted")
	// ErrJobCancelled is returned for any checkpoint operation after the unit
	// entered its terminal cancelled state.
	ErrJobCancelled = errors.New("escrow: job cancelled")
	// ErrWindowNotElapsed is returned on cancel before cancellationWindowDays
	// have passed since deposit.
	ErrWindowNotElapsed = errors.New("escrow: cancellation window not elapsed")
	// ErrInvalidCheckpoint is returned for indexes outside 0..2.
	ErrInvalidCheckpoint = errors.New("escrow: invalid checkpoint index")
)

// ErrUnauthorized is returned when the acting party does not match the role
// the operation requires on the unit.
var ErrUnauthorized = errors.New("escrow: caller not authorized")

// ErrDuplicateEscrow is returned by the pre-creation existence guard when an
// escrow unit already exists for the job.
var ErrDuplicateEscrow = errors.New("escrow: unit already exists for job")

// IsInvalidState reports whether err belongs to the invalid-state family.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrOutOfOrder) ||
		errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrAlreadyApproved) ||
		errors.Is(err, ErrNotSubmitted) ||
		errors.Is(err, ErrJobCancelled) ||
		errors.Is(err, ErrWindowNotElapsed) ||
		errors.Is(err, ErrInvalidCheckpoint)
}
