package repositories

import (
	"context"
	"strconv"
	"time"

	"github.com/chainlance/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListingRepo is the read-through projection of the job board contract.
// Rows mirror chain state and are overwritten on every sync.
type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

const listingColumns = `job_id, client_address, title, description, job_type, deadline,
	min_price_usd, max_price_usd, settlement_asset, metadata_uri, created_at, is_active,
	escrow_address, synced_at`

func scanListing(row interface{ Scan(...any) error }) (*models.JobListing, error) {
	var l models.JobListing
	err := row.Scan(
		&l.JobID, &l.ClientAddress, &l.Title, &l.Description, &l.JobType, &l.Deadline,
		&l.MinPriceUSD, &l.MaxPriceUSD, &l.SettlementAsset, &l.MetadataURI, &l.CreatedAt, &l.IsActive,
		&l.EscrowAddress, &l.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ListingRepo) Upsert(ctx context.Context, l *models.JobListing) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO listings (job_id, client_address, title, description, job_type, deadline,
			min_price_usd, max_price_usd, settlement_asset, metadata_uri, created_at, is_active,
			escrow_address, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (job_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			job_type = EXCLUDED.job_type,
			deadline = EXCLUDED.deadline,
			min_price_usd = EXCLUDED.min_price_usd,
			max_price_usd = EXCLUDED.max_price_usd,
			settlement_asset = EXCLUDED.settlement_asset,
			metadata_uri = EXCLUDED.metadata_uri,
			is_active = EXCLUDED.is_active,
			escrow_address = COALESCE(EXCLUDED.escrow_address, listings.escrow_address),
			synced_at = now()
	`, l.JobID, l.ClientAddress, l.Title, l.Description, l.JobType, l.Deadline,
		l.MinPriceUSD, l.MaxPriceUSD, l.SettlementAsset, l.MetadataURI, l.CreatedAt, l.IsActive,
		l.EscrowAddress)
	return err
}

func (r *ListingRepo) GetByJobID(ctx context.Context, jobID uint64) (*models.JobListing, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE job_id = $1`, jobID)
	return scanListing(row)
}

func (r *ListingRepo) List(ctx context.Context, activeOnly bool, jobType string, limit, offset int) ([]models.JobListing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	args := []any{}
	if activeOnly {
		query += ` AND is_active AND deadline > now()`
	}
	if jobType != "" {
		args = append(args, jobType)
		query += ` AND job_type = $1`
	}
	args = append(args, limit, offset)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.JobListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (r *ListingRepo) ListByClient(ctx context.Context, clientAddress string) ([]models.JobListing, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE client_address = $1 ORDER BY created_at DESC`,
		clientAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.JobListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (r *ListingRepo) SetActive(ctx context.Context, jobID uint64, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE listings SET is_active = $1, synced_at = now() WHERE job_id = $2`, active, jobID)
	return err
}

func (r *ListingRepo) SetEscrowAddress(ctx context.Context, jobID uint64, escrowAddress string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE listings SET escrow_address = $1, synced_at = now() WHERE job_id = $2`, escrowAddress, jobID)
	return err
}

func (r *ListingRepo) StaleSince(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT job_id FROM listings WHERE synced_at < $1 ORDER BY synced_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- applications ---

func (r *ListingRepo) UpsertApplication(ctx context.Context, a *models.Application) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO applications (job_id, app_index, freelancer_address, proposed_price_usd,
			cancellation_window_days, estimated_delivery, portfolio_link, applied_at, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id, app_index) DO UPDATE SET
			is_approved = EXCLUDED.is_approved
	`, a.JobID, a.Index, a.FreelancerAddress, a.ProposedPriceUSD,
		a.CancellationWindowDays, a.EstimatedDelivery, a.PortfolioLink, a.AppliedAt, a.IsApproved)
	return err
}

func (r *ListingRepo) GetApplications(ctx context.Context, jobID uint64) ([]models.Application, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT job_id, app_index, freelancer_address, proposed_price_usd,
			cancellation_window_days, estimated_delivery, portfolio_link, applied_at, is_approved
		FROM applications WHERE job_id = $1 ORDER BY app_index
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []models.Application
	for rows.Next() {
		var a models.Application
		err := rows.Scan(&a.JobID, &a.Index, &a.FreelancerAddress, &a.ProposedPriceUSD,
			&a.CancellationWindowDays, &a.EstimatedDelivery, &a.PortfolioLink, &a.AppliedAt, &a.IsApproved)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (r *ListingRepo) GetApplication(ctx context.Context, jobID uint64, index int) (*models.Application, error) {
	var a models.Application
	err := r.pool.QueryRow(ctx, `
		SELECT job_id, app_index, freelancer_address, proposed_price_usd,
			cancellation_window_days, estimated_delivery, portfolio_link, applied_at, is_approved
		FROM applications WHERE job_id = $1 AND app_index = $2
	`, jobID, index).Scan(&a.JobID, &a.Index, &a.FreelancerAddress, &a.ProposedPriceUSD,
		&a.CancellationWindowDays, &a.EstimatedDelivery, &a.PortfolioLink, &a.AppliedAt, &a.IsApproved)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
