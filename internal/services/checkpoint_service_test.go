package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/escrow"
	"github.com/chainlance/backend/internal/models"
)

type checkpointFixture struct {
	svc     *CheckpointService
	ledger  *fakeLedger
	escrows *fakeEscrows
	bus     *fakePublisher
	addr    string
}

// newCheckpointFixture funds a 300-unit escrow with a 7 day cancellation
// window.
func newCheckpointFixture(t *testing.T) *checkpointFixture {
	t.Helper()
	ledger := newFakeLedger()
	addr, err := ledger.CreateAndFundEscrow(context.Background(), FundEscrowParams{
		JobID:               1,
		Client:              testClient,
		Freelancer:          testFreelancer,
		FinalPriceUSD:       usd(300),
		DepositAmount:       big.NewInt(300),
		Asset:               "USDT",
		EstimatedDeliveryAt: time.Now().Add(21 * 24 * time.Hour),
		CancellationDays:    7,
	})
	if err != nil {
		t.Fatal(err)
	}
	escrows := newFakeEscrows()
	bus := &fakePublisher{}
	svc := NewCheckpointService(ledger, escrows, &fakeAudit{}, bus, zap.NewNop())
	return &checkpointFixture{svc: svc, ledger: ledger, escrows: escrows, bus: bus, addr: addr}
}

func ref(n string) models.DeliverableRef {
	return models.DeliverableRef{OriginalCID: "Qm" + n, PreviewCID: "Qm" + n + "wm"}
}

func (f *checkpointFixture) mustSubmit(t *testing.T, index int, r models.DeliverableRef) {
	t.Helper()
	if _, err := f.svc.Submit(context.Background(), f.addr, index, r, testFreelancer); err != nil {
		t.Fatalf("submit %d: %v", index, err)
	}
}

func (f *checkpointFixture) mustApprove(t *testing.T, index int) {
	t.Helper()
	if _, err := f.svc.Approve(context.Background(), f.addr, index, testClient); err != nil {
		t.Fatalf("approve %d: %v", index, err)
	}
}

func TestSubmitRequiresFreelancer(t *testing.T) {
	f := newCheckpointFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, f.addr, 0, ref("a"), testClient); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Errorf("client submit: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.Submit(ctx, f.addr, 0, ref("a"), "0xdddddddddddddddddddddddddddddddddddddddd"); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Errorf("stranger submit: err = %v, want ErrUnauthorized", err)
	}
}

func TestSubmitOutOfOrderRejected(t *testing.T) {
	f := newCheckpointFixture(t)

	_, err := f.svc.Submit(context.Background(), f.addr, 1, ref("a"), testFreelancer)
	if !errors.Is(err, escrow.ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
}

func TestApproveRequiresSubmission(t *testing.T) {
	f := newCheckpointFixture(t)

	_, err := f.svc.Approve(context.Background(), f.addr, 0, testClient)
	if !errors.Is(err, escrow.ErrNotSubmitted) {
		t.Fatalf("err = %v, want ErrNotSubmitted", err)
	}
}

func TestCheckpointApproveRequiresClient(t *testing.T) {
	f := newCheckpointFixture(t)
	f.mustSubmit(t, 0, ref("a"))

	_, err := f.svc.Approve(context.Background(), f.addr, 0, testFreelancer)
	if !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestFullWorkflowReleasesSchedule(t *testing.T) {
	f := newCheckpointFixture(t)
	ctx := context.Background()

	// 10/35/55 of 300: 30, 105, 165.
	wantReleases := []string{"30", "105", "165"}
	for i := 0; i < escrow.NumCheckpoints; i++ {
		f.mustSubmit(t, i, ref(string(rune('a'+i))))
		f.mustApprove(t, i)

		rec, ok := f.escrows.checkpoints[cpKey(f.addr, i)]
		if !ok {
			t.Fatalf("checkpoint %d not projected", i)
		}
		if rec.ReleasedAmount == nil || *rec.ReleasedAmount != wantReleases[i] {
			t.Errorf("checkpoint %d released = %v, want %s", i, rec.ReleasedAmount, wantReleases[i])
		}
	}

	unit, err := f.ledger.GetEscrowUnit(ctx, f.addr)
	if err != nil {
		t.Fatal(err)
	}
	if unit.TotalReleased.Cmp(unit.Deposited) != 0 {
		t.Errorf("total released = %s, deposit = %s", unit.TotalReleased, unit.Deposited)
	}
	proj := f.escrows.units[f.addr]
	if proj.Status != models.EscrowStatusReleased {
		t.Errorf("projection status = %s, want released", proj.Status)
	}
	if got := len(f.bus.byType("checkpoint_approved")); got != 3 {
		t.Errorf("checkpoint_approved events = %d, want 3", got)
	}
}

func TestRejectClearsSlotForResubmission(t *testing.T) {
	f := newCheckpointFixture(t)
	ctx := context.Background()
	f.mustSubmit(t, 0, ref("draft"))

	if _, err := f.svc.Reject(ctx, f.addr, 0, testClient); err != nil {
		t.Fatalf("reject: %v", err)
	}

	rec := f.escrows.checkpoints[cpKey(f.addr, 0)]
	if rec.IsCompleted || rec.DeliverableRef != "" {
		t.Errorf("projection slot not cleared: %+v", rec)
	}

	// The old reference is discarded, the new submission replaces it.
	f.mustSubmit(t, 0, ref("final"))
	unit, _ := f.ledger.GetEscrowUnit(ctx, f.addr)
	if unit.Checkpoints[0].Deliverable != ref("final").Encode() {
		t.Errorf("deliverable = %q, want %q", unit.Checkpoints[0].Deliverable, ref("final").Encode())
	}
}

func TestRejectOnlyByClient(t *testing.T) {
	f := newCheckpointFixture(t)
	f.mustSubmit(t, 0, ref("a"))

	_, err := f.svc.Reject(context.Background(), f.addr, 0, testFreelancer)
	if !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCancelBeforeWindow(t *testing.T) {
	f := newCheckpointFixture(t)

	_, err := f.svc.Cancel(context.Background(), f.addr, testClient)
	if !errors.Is(err, escrow.ErrWindowNotElapsed) {
		t.Fatalf("err = %v, want ErrWindowNotElapsed", err)
	}
}

func TestCancelAfterWindowTerminatesUnit(t *testing.T) {
	f := newCheckpointFixture(t)
	ctx := context.Background()

	// Pay out the first checkpoint, then age the unit past its window.
	f.mustSubmit(t, 0, ref("a"))
	f.mustApprove(t, 0)
	f.ledger.units[f.addr].DepositedAt = time.Now().Add(-8 * 24 * time.Hour)

	if _, err := f.svc.Cancel(ctx, f.addr, testFreelancer); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	proj := f.escrows.units[f.addr]
	if proj.Status != models.EscrowStatusCancelled {
		t.Errorf("projection status = %s, want cancelled", proj.Status)
	}
	cancelled := f.bus.byType("job_cancelled")
	if len(cancelled) != 1 {
		t.Fatalf("job_cancelled events = %d, want 1", len(cancelled))
	}
	// 30 of 300 was already paid out; only the remainder refunds.
	if got := cancelled[0].Payload["refund"]; got != "270" {
		t.Errorf("refund = %v, want 270", got)
	}

	// The unit is terminal: nothing else may run.
	if _, err := f.svc.Submit(ctx, f.addr, 1, ref("b"), testFreelancer); !errors.Is(err, escrow.ErrJobCancelled) {
		t.Errorf("submit after cancel: err = %v, want ErrJobCancelled", err)
	}
	if _, err := f.svc.Approve(ctx, f.addr, 0, testClient); !errors.Is(err, escrow.ErrJobCancelled) {
		t.Errorf("approve after cancel: err = %v, want ErrJobCancelled", err)
	}
}

func TestStatusProjectsFreshState(t *testing.T) {
	f := newCheckpointFixture(t)
	ctx := context.Background()
	f.mustSubmit(t, 0, ref("a"))
	f.mustApprove(t, 0)

	proj, checkpoints, err := f.svc.Status(ctx, f.addr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if proj.TotalReleased != "30" {
		t.Errorf("total released = %s, want 30", proj.TotalReleased)
	}
	if len(checkpoints) != escrow.NumCheckpoints {
		t.Fatalf("checkpoint rows = %d, want %d", len(checkpoints), escrow.NumCheckpoints)
	}
	if !checkpoints[0].IsApproved || checkpoints[1].IsCompleted {
		t.Errorf("unexpected checkpoint state: %+v", checkpoints[:2])
	}
}
