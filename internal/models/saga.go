package models

import "time"

// Approval saga steps, in strict order. Each step is one chain transaction and
// individually retryable; Step records the last step that fully succeeded.
const (
	SagaStepNone          = 0
	SagaStepAuthorize     = 1 // ERC20 approve; skipped for the native asset
	SagaStepCreateAndFund = 2 // instantiate escrow unit and move funds in
	SagaStepMarkApproved  = 3 // flip application.isApproved (irreversible)
	SagaStepBindEscrow    = 4 // set listing.escrowAddress
)

const (
	SagaStatusRunning   = "running"
	SagaStatusFailed    = "failed"
	SagaStatusCompleted = "completed"
)

// SagaStepName returns a human label for logs and errors.
func SagaStepName(step int) string {
	switch step {
	case SagaStepAuthorize:
		return "authorize spend"
	case SagaStepCreateAndFund:
		return "create and fund escrow"
	case SagaStepMarkApproved:
		return "mark application approved"
	case SagaStepBindEscrow:
		return "bind escrow to listing"
	}
	return "unknown"
}

// ApprovalSaga is the persisted step record for one job activation. It is a
// hint, not the truth: on resume the orchestrator re-derives progress from
// chain state (escrow existence, application.isApproved, listing binding) so a
// crash between a transaction confirming and the record updating cannot cause
// a duplicate deposit.
type ApprovalSaga struct {
	JobID            uint64    `json:"job_id"`
	ApplicationIndex int       `json:"application_index"`
	Step             int       `json:"step"` // last completed step
	Status           string    `json:"status"`
	EscrowAddress    *string   `json:"escrow_address,omitempty"`
	LastError        *string   `json:"last_error,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
