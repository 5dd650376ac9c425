package services

import (
	"context"
	"math/big"
	"time"

	"github.com/chainlance/backend/internal/escrow"
	"github.com/chainlance/backend/internal/models"
)

// escrowStore is the projection surface for escrow units and checkpoints.
// Satisfied by repositories.EscrowRepo.
type escrowStore interface {
	Upsert(ctx context.Context, e *models.EscrowUnit) error
	GetByAddress(ctx context.Context, address string) (*models.EscrowUnit, error)
	GetByJobID(ctx context.Context, jobID uint64) (*models.EscrowUnit, error)
	ListByParty(ctx context.Context, address string) ([]models.EscrowUnit, error)
	UpdateReleased(ctx context.Context, address, totalReleased, status string) error
	MarkCancelled(ctx context.Context, address string, at time.Time) error
	UpsertCheckpoint(ctx context.Context, c *models.CheckpointRecord) error
	GetCheckpoints(ctx context.Context, escrowAddress string) ([]models.CheckpointRecord, error)
}

// projectUnit flattens engine state into projection rows. Status is derived:
// the contract only knows cancelled/not-cancelled.
func projectUnit(address, asset string, u *escrow.Unit, now time.Time) (*models.EscrowUnit, []models.CheckpointRecord) {
	status := models.EscrowStatusActive
	var cancelledAt *time.Time
	switch {
	case u.Cancelled:
		status = models.EscrowStatusCancelled
		t := now
		cancelledAt = &t
	case u.FullyReleased():
		status = models.EscrowStatusReleased
	}

	proj := &models.EscrowUnit{
		Address:                address,
		JobID:                  u.JobID,
		ClientAddress:          u.Client,
		FreelancerAddress:      u.Freelancer,
		FinalPriceUSD:          u.FinalPriceUSD.String(),
		SettlementAsset:        asset,
		DepositedAmount:        u.Deposited.String(),
		TotalReleased:          u.TotalReleased.String(),
		CancellationWindowDays: u.CancellationWindowDays,
		EstimatedDeliveryAt:    u.EstimatedDeliveryAt,
		DepositedAt:            u.DepositedAt,
		Status:                 status,
		CancelledAt:            cancelledAt,
	}

	records := make([]models.CheckpointRecord, 0, escrow.NumCheckpoints)
	running := big.NewInt(0)
	for i := 0; i < escrow.NumCheckpoints; i++ {
		cp := u.Checkpoints[i]
		rec := models.CheckpointRecord{
			EscrowAddress:  address,
			Index:          i,
			IsCompleted:    cp.Completed,
			IsApproved:     cp.Approved,
			DeliverableRef: cp.Deliverable,
		}
		if !cp.SubmittedAt.IsZero() {
			t := cp.SubmittedAt
			rec.SubmittedAt = &t
		}
		if !cp.ApprovedAt.IsZero() {
			t := cp.ApprovedAt
			rec.ApprovedAt = &t
		}
		// Approvals are strictly ordered, so per-slot payouts can be
		// reconstructed from the shares alone.
		if cp.Approved {
			amount := escrow.ReleaseAmount(i, u.Deposited, running)
			running = new(big.Int).Add(running, amount)
			s := amount.String()
			rec.ReleasedAmount = &s
		}
		records = append(records, rec)
	}
	return proj, records
}
