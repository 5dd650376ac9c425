package repositories

import (
	"context"
	"time"

	"github.com/chainlance/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EscrowRepo projects funded escrow contracts and their checkpoint slots.
type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `address, job_id, client_address, freelancer_address, final_price_usd,
	settlement_asset, deposited_amount, total_released, cancellation_window_days,
	estimated_delivery_at, deposited_at, status, cancelled_at`

func scanEscrow(row interface{ Scan(...any) error }) (*models.EscrowUnit, error) {
	var e models.EscrowUnit
	err := row.Scan(
		&e.Address, &e.JobID, &e.ClientAddress, &e.FreelancerAddress, &e.FinalPriceUSD,
		&e.SettlementAsset, &e.DepositedAmount, &e.TotalReleased, &e.CancellationWindowDays,
		&e.EstimatedDeliveryAt, &e.DepositedAt, &e.Status, &e.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) Upsert(ctx context.Context, e *models.EscrowUnit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO escrow_units (address, job_id, client_address, freelancer_address, final_price_usd,
			settlement_asset, deposited_amount, total_released, cancellation_window_days,
			estimated_delivery_at, deposited_at, status, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (address) DO UPDATE SET
			total_released = EXCLUDED.total_released,
			status = EXCLUDED.status,
			cancelled_at = EXCLUDED.cancelled_at
	`, e.Address, e.JobID, e.ClientAddress, e.FreelancerAddress, e.FinalPriceUSD,
		e.SettlementAsset, e.DepositedAmount, e.TotalReleased, e.CancellationWindowDays,
		e.EstimatedDeliveryAt, e.DepositedAt, e.Status, e.CancelledAt)
	return err
}

func (r *EscrowRepo) GetByAddress(ctx context.Context, address string) (*models.EscrowUnit, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_units WHERE address = $1`, address)
	return scanEscrow(row)
}

func (r *EscrowRepo) GetByJobID(ctx context.Context, jobID uint64) (*models.EscrowUnit, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_units WHERE job_id = $1`, jobID)
	return scanEscrow(row)
}

func (r *EscrowRepo) ListByParty(ctx context.Context, address string) ([]models.EscrowUnit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+` FROM escrow_units
		WHERE client_address = $1 OR freelancer_address = $1
		ORDER BY deposited_at DESC
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []models.EscrowUnit
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *e)
	}
	return units, rows.Err()
}

func (r *EscrowRepo) UpdateReleased(ctx context.Context, address, totalReleased, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_units SET total_released = $1, status = $2 WHERE address = $3
	`, totalReleased, status, address)
	return err
}

func (r *EscrowRepo) MarkCancelled(ctx context.Context, address string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_units SET status = $1, cancelled_at = $2 WHERE address = $3
	`, models.EscrowStatusCancelled, at, address)
	return err
}

// --- checkpoints ---

func (r *EscrowRepo) UpsertCheckpoint(ctx context.Context, c *models.CheckpointRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO checkpoints (escrow_address, cp_index, is_completed, is_approved,
			deliverable_ref, submitted_at, approved_at, released_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (escrow_address, cp_index) DO UPDATE SET
			is_completed = EXCLUDED.is_completed,
			is_approved = EXCLUDED.is_approved,
			deliverable_ref = EXCLUDED.deliverable_ref,
			submitted_at = EXCLUDED.submitted_at,
			approved_at = EXCLUDED.approved_at,
			released_amount = COALESCE(EXCLUDED.released_amount, checkpoints.released_amount)
	`, c.EscrowAddress, c.Index, c.IsCompleted, c.IsApproved,
		c.DeliverableRef, c.SubmittedAt, c.ApprovedAt, c.ReleasedAmount)
	return err
}

func (r *EscrowRepo) GetCheckpoints(ctx context.Context, escrowAddress string) ([]models.CheckpointRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT escrow_address, cp_index, is_completed, is_approved,
			deliverable_ref, submitted_at, approved_at, released_amount
		FROM checkpoints WHERE escrow_address = $1 ORDER BY cp_index
	`, escrowAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cps []models.CheckpointRecord
	for rows.Next() {
		var c models.CheckpointRecord
		err := rows.Scan(&c.EscrowAddress, &c.Index, &c.IsCompleted, &c.IsApproved,
			&c.DeliverableRef, &c.SubmittedAt, &c.ApprovedAt, &c.ReleasedAmount)
		if err != nil {
			return nil, err
		}
		cps = append(cps, c)
	}
	return cps, rows.Err()
}
