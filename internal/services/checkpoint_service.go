package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/escrow"
	"github.com/chainlance/backend/internal/events"
	"github.com/chainlance/backend/internal/models"
	"github.com/chainlance/backend/internal/rbac"
)

// CheckpointService coordinates the milestone workflow on a funded escrow
// unit. Every mutation is dry-run against fresh chain state in the engine
// before the transaction is sent, so guard violations cost nothing.
type CheckpointService struct {
	ledger    Ledger
	escrows   escrowStore
	audit     auditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewCheckpointService(ledger Ledger, escrows escrowStore, audit auditLogger, publisher events.Publisher, log *zap.Logger) *CheckpointService {
	return &CheckpointService{
		ledger:    ledger,
		escrows:   escrows,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

// authorize resolves the caller's role on the unit and checks the permission.
func authorize(u *escrow.Unit, caller, permission string) error {
	var role string
	switch {
	case u.IsClient(caller):
		role = rbac.RoleClient
	case u.IsFreelancer(caller):
		role = rbac.RoleFreelancer
	default:
		return fmt.Errorf("%s is not a party to this job: %w", caller, escrow.ErrUnauthorized)
	}
	if !rbac.HasPermission(role, permission) {
		return fmt.Errorf("%s may not %s: %w", role, permission, escrow.ErrUnauthorized)
	}
	return nil
}

func (s *CheckpointService) load(ctx context.Context, escrowAddr string) (*escrow.Unit, error) {
	unit, err := s.ledger.GetEscrowUnit(ctx, escrowAddr)
	if err != nil {
		return nil, &CollaboratorError{Op: "load escrow", Err: err}
	}
	return unit, nil
}

// Submit records a deliverable for checkpoint index. Freelancer only; the
// deliverable must already be in the content store.
func (s *CheckpointService) Submit(ctx context.Context, escrowAddr string, index int, ref models.DeliverableRef, caller string) (string, error) {
	if ref.OriginalCID == "" {
		return "", fmt.Errorf("deliverable is required")
	}
	unit, err := s.load(ctx, escrowAddr)
	if err != nil {
		return "", err
	}
	if err := authorize(unit, caller, rbac.PermSubmitCheckpoint); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	encoded := ref.Encode()
	if err := unit.Clone().Submit(index, encoded, now); err != nil {
		return "", err
	}

	txHash, err := s.ledger.SubmitCheckpoint(ctx, escrowAddr, index, encoded)
	if err != nil {
		return "", &CollaboratorError{Op: "submit checkpoint", JobID: unit.JobID, Err: err}
	}

	if err := s.escrows.UpsertCheckpoint(ctx, &models.CheckpointRecord{
		EscrowAddress:  escrowAddr,
		Index:          index,
		IsCompleted:    true,
		DeliverableRef: encoded,
		SubmittedAt:    &now,
	}); err != nil {
		s.log.Warn("checkpoint projection write failed", zap.String("escrow", escrowAddr), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorRef:   &caller,
		ActorType:  models.ActorTypeUser,
		Action:     "checkpoint_submitted",
		EntityType: "escrow",
		EntityRef:  escrowAddr,
		Meta:       map[string]any{"index": index, "tx_hash": txHash},
	})
	_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
		Type: events.EventCheckpointSubmitted,
		Payload: map[string]any{
			"job_id": unit.JobID,
			"escrow": escrowAddr,
			"index":  index,
		},
	})
	return txHash, nil
}

// Approve accepts the deliverable at index and releases its share. Client only.
func (s *CheckpointService) Approve(ctx context.Context, escrowAddr string, index int, caller string) (string, error) {
	unit, err := s.load(ctx, escrowAddr)
	if err != nil {
		return "", err
	}
	if err := authorize(unit, caller, rbac.PermApproveCheckpoint); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	dry := unit.Clone()
	amount, err := dry.Approve(index, now)
	if err != nil {
		return "", err
	}

	txHash, err := s.ledger.ApproveCheckpoint(ctx, escrowAddr, index)
	if err != nil {
		return "", &CollaboratorError{Op: "approve checkpoint", JobID: unit.JobID, Err: err}
	}

	amountStr := amount.String()
	if err := s.escrows.UpsertCheckpoint(ctx, &models.CheckpointRecord{
		EscrowAddress:  escrowAddr,
		Index:          index,
		IsCompleted:    true,
		IsApproved:     true,
		DeliverableRef: unit.Checkpoints[index].Deliverable,
		SubmittedAt:    nonZeroTime(unit.Checkpoints[index].SubmittedAt),
		ApprovedAt:     &now,
		ReleasedAmount: &amountStr,
	}); err != nil {
		s.log.Warn("checkpoint projection write failed", zap.String("escrow", escrowAddr), zap.Error(err))
	}
	status := models.EscrowStatusActive
	if dry.FullyReleased() {
		status = models.EscrowStatusReleased
	}
	if err := s.escrows.UpdateReleased(ctx, escrowAddr, dry.TotalReleased.String(), status); err != nil {
		s.log.Warn("escrow projection update failed", zap.String("escrow", escrowAddr), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorRef:   &caller,
		ActorType:  models.ActorTypeUser,
		Action:     "checkpoint_approved",
		EntityType: "escrow",
		EntityRef:  escrowAddr,
		Meta:       map[string]any{"index": index, "released": amountStr, "tx_hash": txHash},
	})
	_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
		Type: events.EventCheckpointApproved,
		Payload: map[string]any{
			"job_id":   unit.JobID,
			"escrow":   escrowAddr,
			"index":    index,
			"released": amountStr,
		},
	})
	return txHash, nil
}

// Reject clears the slot so the freelancer can resubmit. Client only, no funds
// move.
func (s *CheckpointService) Reject(ctx context.Context, escrowAddr string, index int, caller string) (string, error) {
	unit, err := s.load(ctx, escrowAddr)
	if err != nil {
		return "", err
	}
	if err := authorize(unit, caller, rbac.PermRejectCheckpoint); err != nil {
		return "", err
	}
	if err := unit.Clone().Reject(index); err != nil {
		return "", err
	}

	txHash, err := s.ledger.RejectCheckpoint(ctx, escrowAddr, index)
	if err != nil {
		return "", &CollaboratorError{Op: "reject checkpoint", JobID: unit.JobID, Err: err}
	}

	if err := s.escrows.UpsertCheckpoint(ctx, &models.CheckpointRecord{
		EscrowAddress: escrowAddr,
		Index:         index,
	}); err != nil {
		s.log.Warn("checkpoint projection write failed", zap.String("escrow", escrowAddr), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorRef:   &caller,
		ActorType:  models.ActorTypeUser,
		Action:     "checkpoint_rejected",
		EntityType: "escrow",
		EntityRef:  escrowAddr,
		Meta:       map[string]any{"index": index, "tx_hash": txHash},
	})
	_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
		Type: events.EventCheckpointRejected,
		Payload: map[string]any{
			"job_id": unit.JobID,
			"escrow": escrowAddr,
			"index":  index,
		},
	})
	return txHash, nil
}

// Cancel terminates the unit and refunds the remaining balance to the client.
// Either party may cancel once the window has elapsed.
func (s *CheckpointService) Cancel(ctx context.Context, escrowAddr string, caller string) (string, error) {
	unit, err := s.load(ctx, escrowAddr)
	if err != nil {
		return "", err
	}
	if err := authorize(unit, caller, rbac.PermCancelJob); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	dry := unit.Clone()
	refund, err := dry.Cancel(now)
	if err != nil {
		return "", err
	}

	txHash, err := s.ledger.CancelJob(ctx, escrowAddr)
	if err != nil {
		return "", &CollaboratorError{Op: "cancel job", JobID: unit.JobID, Err: err}
	}

	if err := s.escrows.MarkCancelled(ctx, escrowAddr, now); err != nil {
		s.log.Warn("escrow projection update failed", zap.String("escrow", escrowAddr), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorRef:   &caller,
		ActorType:  models.ActorTypeUser,
		Action:     "job_cancelled",
		EntityType: "escrow",
		EntityRef:  escrowAddr,
		Meta:       map[string]any{"refund": refund.String(), "tx_hash": txHash},
	})
	_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
		Type: events.EventJobCancelled,
		Payload: map[string]any{
			"job_id": unit.JobID,
			"escrow": escrowAddr,
			"refund": refund.String(),
		},
	})
	return txHash, nil
}

// Status returns the unit projection refreshed from the chain, with its
// checkpoint rows.
func (s *CheckpointService) Status(ctx context.Context, escrowAddr string) (*models.EscrowUnit, []models.CheckpointRecord, error) {
	unit, err := s.load(ctx, escrowAddr)
	if err != nil {
		return nil, nil, err
	}

	prior, priorErr := s.escrows.GetByAddress(ctx, escrowAddr)
	if priorErr == nil {
		unit.JobID = prior.JobID
		unit.Asset = prior.SettlementAsset
	}

	proj, checkpoints := projectUnit(escrowAddr, unit.Asset, unit, time.Now().UTC())
	if priorErr == nil && prior.CancelledAt != nil {
		proj.CancelledAt = prior.CancelledAt
	}
	if err := s.escrows.Upsert(ctx, proj); err != nil {
		s.log.Warn("escrow projection refresh failed", zap.String("escrow", escrowAddr), zap.Error(err))
	}
	for i := range checkpoints {
		if err := s.escrows.UpsertCheckpoint(ctx, &checkpoints[i]); err != nil {
			s.log.Warn("checkpoint projection refresh failed", zap.String("escrow", escrowAddr), zap.Error(err))
		}
	}
	return proj, checkpoints, nil
}

// ListByParty returns every unit the address participates in, from the
// projection.
func (s *CheckpointService) ListByParty(ctx context.Context, address string) ([]models.EscrowUnit, error) {
	return s.escrows.ListByParty(ctx, address)
}

func nonZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
