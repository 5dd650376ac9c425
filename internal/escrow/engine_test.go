package escrow

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func newTestUnit(deposited int64) *Unit {
	return &Unit{
		JobID:                  1,
		Client:                 "0xclient",
		Freelancer:             "0xfreelancer",
		FinalPriceUSD:          big.NewInt(deposited),
		Asset:                  "testUSDT",
		Deposited:              big.NewInt(deposited),
		TotalReleased:          big.NewInt(0),
		CancellationWindowDays: 7,
		DepositedAt:            time.Now().Add(-8 * 24 * time.Hour),
	}
}

func mustSubmit(t *testing.T, u *Unit, index int, ref string) {
	t.Helper()
	if err := u.Submit(index, ref, time.Now()); err != nil {
		t.Fatalf("submit(%d): %v", index, err)
	}
}

func mustApprove(t *testing.T, u *Unit, index int) *big.Int {
	t.Helper()
	amount, err := u.Approve(index, time.Now())
	if err != nil {
		t.Fatalf("approve(%d): %v", index, err)
	}
	return amount
}

func TestSubmitOrdering(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(u *Unit)
		index   int
		wantErr error
	}{
		{"first checkpoint needs nothing", func(u *Unit) {}, 0, nil},
		{"second before first approved", func(u *Unit) {}, 1, ErrOutOfOrder},
		{"third before second approved", func(u *Unit) {}, 2, ErrOutOfOrder},
		{
			"second after first submitted but not approved",
			func(u *Unit) { mustSubmit(t, u, 0, "a:a") },
			1, ErrOutOfOrder,
		},
		{
			"second after first approved",
			func(u *Unit) {
				mustSubmit(t, u, 0, "a:a")
				mustApprove(t, u, 0)
			},
			1, nil,
		},
		{
			"third after second approved",
			func(u *Unit) {
				mustSubmit(t, u, 0, "a:a")
				mustApprove(t, u, 0)
				mustSubmit(t, u, 1, "b:b")
				mustApprove(t, u, 1)
			},
			2, nil,
		},
		{
			"resubmit over pending submission",
			func(u *Unit) { mustSubmit(t, u, 0, "a:a") },
			0, ErrAlreadyCompleted,
		},
		{"negative index", func(u *Unit) {}, -1, ErrInvalidCheckpoint},
		{"index past last slot", func(u *Unit) {}, 3, ErrInvalidCheckpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newTestUnit(300)
			tt.prepare(u)
			err := u.Submit(tt.index, "cid:cid", time.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit(%d) = %v, want %v", tt.index, err, tt.wantErr)
			}
		})
	}
}

func TestApproveGuards(t *testing.T) {
	u := newTestUnit(300)

	if _, err := u.Approve(0, time.Now()); !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("approve of empty slot = %v, want ErrNotSubmitted", err)
	}

	mustSubmit(t, u, 0, "a:a")
	mustApprove(t, u, 0)

	if _, err := u.Approve(0, time.Now()); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("double approve = %v, want ErrAlreadyApproved", err)
	}
	if err := u.Reject(0); !errors.Is(err, ErrAlreadyApproved) {
		t.Errorf("reject of approved = %v, want ErrAlreadyApproved", err)
	}
}

// Spec example: $300 at a stablecoin 1:1 rate releases 30, 105, 165 and the
// unit ends exactly drained.
func TestReleaseSchedule(t *testing.T) {
	u := newTestUnit(300)

	want := []int64{30, 105, 165}
	for i := 0; i < NumCheckpoints; i++ {
		mustSubmit(t, u, i, "cid:cid")
		got := mustApprove(t, u, i)
		if got.Int64() != want[i] {
			t.Errorf("checkpoint %d released %v, want %d", i, got, want[i])
		}
	}

	if u.TotalReleased.Int64() != 300 {
		t.Errorf("totalReleased = %v, want 300", u.TotalReleased)
	}
	if u.Remaining().Sign() != 0 {
		t.Errorf("remaining = %v, want 0", u.Remaining())
	}
	if !u.FullyReleased() {
		t.Error("unit should be fully released")
	}
}

// Rounding remainder goes to the final checkpoint: the three payouts always
// sum to the deposit exactly, whatever the deposit.
func TestReleaseRemainderPolicy(t *testing.T) {
	for _, deposited := range []int64{1, 3, 7, 99, 101, 1000000000000000003} {
		u := newTestUnit(deposited)
		sum := big.NewInt(0)
		for i := 0; i < NumCheckpoints; i++ {
			mustSubmit(t, u, i, "cid:cid")
			sum.Add(sum, mustApprove(t, u, i))
		}
		if sum.Cmp(big.NewInt(deposited)) != 0 {
			t.Errorf("deposited %d: payouts sum to %v", deposited, sum)
		}
		if u.Remaining().Sign() != 0 {
			t.Errorf("deposited %d: remaining %v after full approval", deposited, u.Remaining())
		}
	}
}

func TestRejectResetsSlot(t *testing.T) {
	u := newTestUnit(300)
	mustSubmit(t, u, 0, "old-original:old-preview")

	if err := u.Reject(0); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if u.Checkpoints[0].Completed {
		t.Error("rejected checkpoint should not stay completed")
	}
	if u.Checkpoints[0].Deliverable != "" {
		t.Errorf("rejected deliverable should be cleared, got %q", u.Checkpoints[0].Deliverable)
	}
	if u.TotalReleased.Sign() != 0 {
		t.Error("reject must not move funds")
	}

	// Resubmission replaces, never merges, the reference.
	mustSubmit(t, u, 0, "new-original:new-preview")
	if got := u.Checkpoints[0].Deliverable; got != "new-original:new-preview" {
		t.Errorf("resubmitted deliverable = %q", got)
	}
	if err := u.Reject(0); err != nil {
		t.Fatalf("reject after resubmit: %v", err)
	}
	if err := u.Reject(0); !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("reject of empty slot = %v, want ErrNotSubmitted", err)
	}
}

func TestCancelWindow(t *testing.T) {
	u := newTestUnit(300)
	u.DepositedAt = time.Now().Add(-2 * 24 * time.Hour) // window is 7 days

	if _, err := u.Cancel(time.Now()); !errors.Is(err, ErrWindowNotElapsed) {
		t.Fatalf("cancel inside window = %v, want ErrWindowNotElapsed", err)
	}
	if u.Cancelled {
		t.Fatal("failed cancel must not flip the terminal flag")
	}

	u.DepositedAt = time.Now().Add(-7*24*time.Hour - time.Minute)
	if _, err := u.Cancel(time.Now()); err != nil {
		t.Fatalf("cancel after window: %v", err)
	}
}

func TestCancelAfterPartialApproval(t *testing.T) {
	u := newTestUnit(300)
	mustSubmit(t, u, 0, "cid:cid")
	released := mustApprove(t, u, 0)
	if released.Int64() != 30 {
		t.Fatalf("checkpoint 0 released %v, want 30", released)
	}

	refund, err := u.Cancel(time.Now())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund.Int64() != 270 {
		t.Errorf("refund = %v, want 270 (90%%)", refund)
	}

	// Terminal: no further checkpoint operation succeeds.
	if err := u.Submit(1, "cid:cid", time.Now()); !errors.Is(err, ErrJobCancelled) {
		t.Errorf("submit after cancel = %v, want ErrJobCancelled", err)
	}
	if _, err := u.Approve(0, time.Now()); !errors.Is(err, ErrJobCancelled) {
		t.Errorf("approve after cancel = %v, want ErrJobCancelled", err)
	}
	if err := u.Reject(0); !errors.Is(err, ErrJobCancelled) {
		t.Errorf("reject after cancel = %v, want ErrJobCancelled", err)
	}
	if _, err := u.Cancel(time.Now()); !errors.Is(err, ErrJobCancelled) {
		t.Errorf("double cancel = %v, want ErrJobCancelled", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	u := newTestUnit(300)
	clone := u.Clone()
	clone.TotalReleased.SetInt64(999)
	clone.Checkpoints[0].Completed = true

	if u.TotalReleased.Sign() != 0 {
		t.Error("clone shares TotalReleased with original")
	}
	if u.Checkpoints[0].Completed {
		t.Error("clone shares checkpoint array with original")
	}
}

func TestRoleHelpers(t *testing.T) {
	u := newTestUnit(300)
	u.Client = "0xAbCd"
	u.Freelancer = "0x1234"

	if !u.IsClient("0xabcd") || !u.IsClient("0xABCD") {
		t.Error("IsClient should compare case-insensitively")
	}
	if u.IsClient("0x1234") || !u.IsFreelancer("0x1234") {
		t.Error("role helpers mixed up client and freelancer")
	}
}
