package escrow

import (
	"math/big"
	"strings"
	"time"
)

// NumCheckpoints is fixed by the escrow contract: three milestones per job.
const NumCheckpoints = 3

// CheckpointShares are the per-checkpoint payout percentages of the deposited
// amount. The final share is never computed directly; the last checkpoint
// releases whatever remains so the three payouts sum to the deposit exactly.
var CheckpointShares = [NumCheckpoints]int64{10, 35, 55}

// Checkpoint is one of the three milestone slots on a unit.
type Checkpoint struct {
	Completed   bool
	Approved    bool
	Deliverable string // composite "<originalCID>:<previewCID>" reference
	SubmittedAt time.Time
	ApprovedAt  time.Time
}

// Unit is the authoritative escrow state machine for one approved job. It is a
// plain value: the chain serializes concurrent mutations, so the engine only
// validates and computes; callers load fresh state, apply an operation here to
// check guards and amounts, then submit the matching chain transaction.
type Unit struct {
	JobID                  uint64
	Client                 string // lowercased hex address
	Freelancer             string
	FinalPriceUSD          *big.Int
	Asset                  string
	Deposited              *big.Int // asset units, fixed at deposit time
	TotalReleased          *big.Int
	CancellationWindowDays int
	EstimatedDeliveryAt    time.Time
	DepositedAt            time.Time
	Cancelled              bool
	Checkpoints            [NumCheckpoints]Checkpoint
}

// Clone returns a deep copy so guard dry-runs never mutate shared state.
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	clone := *u
	if u.FinalPriceUSD != nil {
		clone.FinalPriceUSD = new(big.Int).Set(u.FinalPriceUSD)
	}
	if u.Deposited != nil {
		clone.Deposited = new(big.Int).Set(u.Deposited)
	}
	if u.TotalReleased != nil {
		clone.TotalReleased = new(big.Int).Set(u.TotalReleased)
	}
	return &clone
}

// IsClient reports whether addr is the unit's client role.
func (u *Unit) IsClient(addr string) bool {
	return strings.EqualFold(u.Client, addr)
}

// IsFreelancer reports whether addr is the unit's freelancer role.
func (u *Unit) IsFreelancer(addr string) bool {
	return strings.EqualFold(u.Freelancer, addr)
}

// Remaining returns the undistributed escrowed balance.
func (u *Unit) Remaining() *big.Int {
	return new(big.Int).Sub(u.Deposited, u.TotalReleased)
}

// FullyReleased reports whether every checkpoint has been approved and paid.
func (u *Unit) FullyReleased() bool {
	for i := range u.Checkpoints {
		if !u.Checkpoints[i].Approved {
			return false
		}
	}
	return true
}

// ReleaseAmount computes the payout for approving checkpoint index, given the
// deposit and the amount already released. Indexes 0 and 1 pay their fixed
// share; the final index pays the remainder, absorbing integer rounding dust.
func ReleaseAmount(index int, deposited, released *big.Int) *big.Int {
	if index == NumCheckpoints-1 {
		return new(big.Int).Sub(deposited, released)
	}
	amount := new(big.Int).Mul(deposited, big.NewInt(CheckpointShares[index]))
	return amount.Div(amount, big.NewInt(100))
}

// Submit records a deliverable in slot index. Checkpoint i requires i-1 to be
// approved; a rejected slot is empty again and may be resubmitted.
func (u *Unit) Submit(index int, deliverable string, now time.Time) error {
	if index < 0 || index >= NumCheckpoints {
		return ErrInvalidCheckpoint
	}
	if u.Cancelled {
		return ErrJobCancelled
	}
	if u.Checkpoints[index].Completed {
		return ErrAlreadyCompleted
	}
	if index > 0 && !u.Checkpoints[index-1].Approved {
		return ErrOutOfOrder
	}
	u.Checkpoints[index] = Checkpoint{
		Completed:   true,
		Deliverable: deliverable,
		SubmittedAt: now,
	}
	return nil
}

// Approve marks slot index approved and returns the amount to release. The
// amount comes from the fixed shares, never from a live price re-quote.
func (u *Unit) Approve(index int, now time.Time) (*big.Int, error) {
	if index < 0 || index >= NumCheckpoints {
		return nil, ErrInvalidCheckpoint
	}
	if u.Cancelled {
		return nil, ErrJobCancelled
	}
	cp := &u.Checkpoints[index]
	if !cp.Completed {
		return nil, ErrNotSubmitted
	}
	if cp.Approved {
		return nil, ErrAlreadyApproved
	}
	amount := ReleaseAmount(index, u.Deposited, u.TotalReleased)
	cp.Approved = true
	cp.ApprovedAt = now
	u.TotalReleased = new(big.Int).Add(u.TotalReleased, amount)
	return amount, nil
}

// Reject clears slot index back to empty so the freelancer can resubmit. The
// old deliverable reference is discarded, not merged. No funds move.
func (u *Unit) Reject(index int) error {
	if index < 0 || index >= NumCheckpoints {
		return ErrInvalidCheckpoint
	}
	if u.Cancelled {
		return ErrJobCancelled
	}
	cp := &u.Checkpoints[index]
	if !cp.Completed {
		return ErrNotSubmitted
	}
	if cp.Approved {
		return ErrAlreadyApproved
	}
	u.Checkpoints[index] = Checkpoint{}
	return nil
}

// CanCancel reports whether the cancellation window has elapsed. The window is
// a core invariant here, not a client-side nicety.
func (u *Unit) CanCancel(now time.Time) bool {
	window := time.Duration(u.CancellationWindowDays) * 24 * time.Hour
	return !now.Before(u.DepositedAt.Add(window))
}

// Cancel terminates the unit and returns the amount refunded to the depositor.
// Already-approved checkpoints keep their payouts; only the remaining balance
// moves. After Cancel no checkpoint operation succeeds.
func (u *Unit) Cancel(now time.Time) (*big.Int, error) {
	if u.Cancelled {
		return nil, ErrJobCancelled
	}
	if !u.CanCancel(now) {
		return nil, ErrWindowNotElapsed
	}
	u.Cancelled = true
	return u.Remaining(), nil
}
