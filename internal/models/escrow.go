package models

import "time"

// Escrow unit statuses as kept in the projection. The contract itself only
// distinguishes cancelled/not-cancelled; "released" is derived when all three
// checkpoints are approved.
const (
	EscrowStatusActive    = "active"
	EscrowStatusReleased  = "released"
	EscrowStatusCancelled = "cancelled"
)

// EscrowUnit is the projection of one funded escrow contract instance.
// depositedAmount is fixed at deposit time; later price moves never rescale it.
type EscrowUnit struct {
	Address                string     `json:"address"`
	JobID                  uint64     `json:"job_id"`
	ClientAddress          string     `json:"client_address"`
	FreelancerAddress      string     `json:"freelancer_address"`
	FinalPriceUSD          string     `json:"final_price_usd"`
	SettlementAsset        string     `json:"settlement_asset"`
	DepositedAmount        string     `json:"deposited_amount"` // asset units, numeric as string
	TotalReleased          string     `json:"total_released"`
	CancellationWindowDays int        `json:"cancellation_window_days"`
	EstimatedDeliveryAt    time.Time  `json:"estimated_delivery_at"`
	DepositedAt            time.Time  `json:"deposited_at"`
	Status                 string     `json:"status"`
	CancelledAt            *time.Time `json:"cancelled_at,omitempty"`
}

// CheckpointRecord is the projection of one of the three checkpoint slots.
type CheckpointRecord struct {
	EscrowAddress  string     `json:"escrow_address"`
	Index          int        `json:"index"`
	IsCompleted    bool       `json:"is_completed"`
	IsApproved     bool       `json:"is_approved"`
	DeliverableRef string     `json:"deliverable_ref,omitempty"` // composite "<original>:<preview>"
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	ReleasedAmount *string    `json:"released_amount,omitempty"`
}
