package repositories

import (
	"context"

	"github.com/chainlance/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SagaRepo persists approval progress so an interrupted approval can resume
// from its last completed step instead of replaying funded transactions.
type SagaRepo struct {
	pool *pgxpool.Pool
}

func NewSagaRepo(pool *pgxpool.Pool) *SagaRepo {
	return &SagaRepo{pool: pool}
}

const sagaColumns = `job_id, application_index, step, status, escrow_address, last_error, started_at, updated_at`

func scanSaga(row interface{ Scan(...any) error }) (*models.ApprovalSaga, error) {
	var s models.ApprovalSaga
	err := row.Scan(&s.JobID, &s.ApplicationIndex, &s.Step, &s.Status,
		&s.EscrowAddress, &s.LastError, &s.StartedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Begin inserts a running saga row. A second insert for the same job fails on
// the primary key, which is the duplicate-approval guard.
func (r *SagaRepo) Begin(ctx context.Context, jobID uint64, appIndex int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO approval_sagas (job_id, application_index, step, status)
		VALUES ($1, $2, $3, $4)
	`, jobID, appIndex, models.SagaStepNone, models.SagaStatusRunning)
	return err
}

func (r *SagaRepo) Get(ctx context.Context, jobID uint64) (*models.ApprovalSaga, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sagaColumns+` FROM approval_sagas WHERE job_id = $1`, jobID)
	return scanSaga(row)
}

func (r *SagaRepo) RecordStep(ctx context.Context, jobID uint64, step int, escrowAddress *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE approval_sagas
		SET step = $1, status = $2, escrow_address = COALESCE($3, escrow_address),
			last_error = NULL, updated_at = now()
		WHERE job_id = $4
	`, step, models.SagaStatusRunning, escrowAddress, jobID)
	return err
}

func (r *SagaRepo) MarkFailed(ctx context.Context, jobID uint64, stepErr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE approval_sagas SET status = $1, last_error = $2, updated_at = now() WHERE job_id = $3
	`, models.SagaStatusFailed, stepErr, jobID)
	return err
}

func (r *SagaRepo) MarkCompleted(ctx context.Context, jobID uint64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE approval_sagas SET status = $1, last_error = NULL, updated_at = now() WHERE job_id = $2
	`, models.SagaStatusCompleted, jobID)
	return err
}

func (r *SagaRepo) ListIncomplete(ctx context.Context, limit int) ([]models.ApprovalSaga, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sagaColumns+` FROM approval_sagas
		WHERE status != $1 ORDER BY updated_at LIMIT $2
	`, models.SagaStatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sagas []models.ApprovalSaga
	for rows.Next() {
		s, err := scanSaga(rows)
		if err != nil {
			return nil, err
		}
		sagas = append(sagas, *s)
	}
	return sagas, rows.Err()
}
