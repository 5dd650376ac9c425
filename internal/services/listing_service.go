package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/events"
	"github.com/chainlance/backend/internal/models"
)

// listingStore is the projection surface the listing service needs. Satisfied
// by repositories.ListingRepo.
type listingStore interface {
	Upsert(ctx context.Context, l *models.JobListing) error
	GetByJobID(ctx context.Context, jobID uint64) (*models.JobListing, error)
	List(ctx context.Context, activeOnly bool, jobType string, limit, offset int) ([]models.JobListing, error)
	ListByClient(ctx context.Context, clientAddress string) ([]models.JobListing, error)
	SetActive(ctx context.Context, jobID uint64, active bool) error
	SetEscrowAddress(ctx context.Context, jobID uint64, escrowAddress string) error
	StaleSince(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
	UpsertApplication(ctx context.Context, a *models.Application) error
	GetApplications(ctx context.Context, jobID uint64) ([]models.Application, error)
	GetApplication(ctx context.Context, jobID uint64, index int) (*models.Application, error)
}

type auditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type ListingService struct {
	ledger    Ledger
	listings  listingStore
	audit     auditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewListingService(ledger Ledger, listings listingStore, audit auditLogger, publisher events.Publisher, log *zap.Logger) *ListingService {
	return &ListingService{
		ledger:    ledger,
		listings:  listings,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

// CreateListing validates and posts a new job listing on chain, then projects
// it. USD bounds are 18-decimal fixed point.
func (s *ListingService) CreateListing(ctx context.Context, p CreateListingParams) (*models.JobListing, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if p.MinPriceUSD == nil || p.MaxPriceUSD == nil || p.MinPriceUSD.Sign() <= 0 {
		return nil, fmt.Errorf("price bounds are required")
	}
	if p.MinPriceUSD.Cmp(p.MaxPriceUSD) > 0 {
		return nil, fmt.Errorf("min price exceeds max price")
	}
	if !p.Deadline.After(time.Now()) {
		return nil, fmt.Errorf("deadline must be in the future")
	}
	if p.Asset == "" {
		return nil, fmt.Errorf("settlement asset is required")
	}

	jobID, txHash, err := s.ledger.CreateListing(ctx, p)
	if err != nil {
		return nil, &CollaboratorError{Op: "create listing", Err: err}
	}

	listing := &models.JobListing{
		JobID:           jobID,
		ClientAddress:   p.Client,
		Title:           p.Title,
		Description:     p.Description,
		JobType:         p.JobType,
		Deadline:        p.Deadline,
		MinPriceUSD:     p.MinPriceUSD.String(),
		MaxPriceUSD:     p.MaxPriceUSD.String(),
		SettlementAsset: p.Asset,
		MetadataURI:     p.MetadataURI,
		CreatedAt:       time.Now().UTC(),
		IsActive:        true,
	}
	if err := s.listings.Upsert(ctx, listing); err != nil {
		// The listing exists on chain; projection catches up on next sync.
		s.log.Warn("listing projection write failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorRef:   &p.Client,
		ActorType:  models.ActorTypeUser,
		Action:     "listing_created",
		EntityType: "listing",
		EntityRef:  fmt.Sprintf("%d", jobID),
		Meta:       map[string]any{"tx_hash": txHash, "asset": p.Asset},
	})
	_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
		Type: events.EventListingCreated,
		Payload: map[string]any{
			"job_id": jobID,
			"client": p.Client,
			"title":  p.Title,
		},
	})

	return listing, nil
}

// Apply submits an application to an open listing.
func (s *ListingService) Apply(ctx context.Context, jobID uint64, p ApplyParams) (*models.Application, error) {
	listing, err := s.GetListing(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !listing.IsActive {
		return nil, fmt.Errorf("job %d is not accepting applications", jobID)
	}
	if listing.IsExpired(time.Now()) {
		return nil, fmt.Errorf("job %d deadline has passed", jobID)
	}
	if p.ProposedPriceUSD == nil || p.ProposedPriceUSD.Sign() <= 0 {
		return nil, fmt.Errorf("proposed price is required")
	}
	minP, okMin := new(big.Int).SetString(listing.MinPriceUSD, 10)
	maxP, okMax := new(big.Int).SetString(listing.MaxPriceUSD, 10)
	if okMin && okMax && (p.ProposedPriceUSD.Cmp(minP) < 0 || p.ProposedPriceUSD.Cmp(maxP) > 0) {
		return nil, fmt.Errorf("proposed price outside listing bounds [%s, %s]", listing.MinPriceUSD, listing.MaxPriceUSD)
	}
	if p.CancellationWindowDays <= 0 {
		return nil, fmt.Errorf("cancellation window must be at least one day")
	}

	txHash, err := s.ledger.Apply(ctx, jobID, p)
	if err != nil {
		return nil, &CollaboratorError{Op: "apply", JobID: jobID, Err: err}
	}

	// The chain assigns the index; refetch rather than guessing under races.
	apps, err := s.ledger.GetApplications(ctx, jobID)
	if err != nil || len(apps) == 0 {
		s.log.Warn("application refetch failed", zap.Uint64("job_id", jobID), zap.Error(err))
		return &models.Application{JobID: jobID, FreelancerAddress: p.Freelancer}, nil
	}
	app := apps[len(apps)-1]
	if err := s.listings.UpsertApplication(ctx, &app); err != nil {
		s.log.Warn("application projection write failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorRef:   &p.Freelancer,
		ActorType:  models.ActorTypeUser,
		Action:     "application_submitted",
		EntityType: "listing",
		EntityRef:  fmt.Sprintf("%d", jobID),
		Meta:       map[string]any{"tx_hash": txHash, "app_index": app.Index},
	})
	_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
		Type: events.EventApplicationSubmitted,
		Payload: map[string]any{
			"job_id":     jobID,
			"freelancer": p.Freelancer,
			"app_index":  app.Index,
		},
	})

	return &app, nil
}

// Deactivate hides the listing from further applications. Client only.
func (s *ListingService) Deactivate(ctx context.Context, jobID uint64, caller string) error {
	listing, err := s.GetListing(ctx, jobID)
	if err != nil {
		return err
	}
	if !addressEqual(listing.ClientAddress, caller) {
		return fmt.Errorf("only the listing client can deactivate it")
	}
	if err := s.ledger.SetListingActive(ctx, jobID, false); err != nil {
		return &CollaboratorError{Op: "deactivate listing", JobID: jobID, Err: err}
	}
	if err := s.listings.SetActive(ctx, jobID, false); err != nil {
		s.log.Warn("listing projection update failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorRef:   &caller,
		ActorType:  models.ActorTypeUser,
		Action:     "listing_deactivated",
		EntityType: "listing",
		EntityRef:  fmt.Sprintf("%d", jobID),
	})
	_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
		Type:    events.EventListingDeactivated,
		Payload: map[string]any{"job_id": jobID},
	})
	return nil
}

// GetListing reads through the projection: a miss falls back to the chain and
// backfills the row.
func (s *ListingService) GetListing(ctx context.Context, jobID uint64) (*models.JobListing, error) {
	listing, err := s.listings.GetByJobID(ctx, jobID)
	if err == nil {
		return listing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	listing, err = s.ledger.GetJob(ctx, jobID)
	if err != nil {
		return nil, ErrNotFound
	}
	if err := s.listings.Upsert(ctx, listing); err != nil {
		s.log.Warn("listing backfill failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}
	return listing, nil
}

func (s *ListingService) ListListings(ctx context.Context, activeOnly bool, jobType string, limit, offset int) ([]models.JobListing, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.listings.List(ctx, activeOnly, jobType, limit, offset)
}

func (s *ListingService) ListByClient(ctx context.Context, clientAddress string) ([]models.JobListing, error) {
	return s.listings.ListByClient(ctx, clientAddress)
}

func (s *ListingService) GetApplications(ctx context.Context, jobID uint64) ([]models.Application, error) {
	apps, err := s.listings.GetApplications(ctx, jobID)
	if err == nil && len(apps) > 0 {
		return apps, nil
	}
	return s.ledger.GetApplications(ctx, jobID)
}

// SyncAll reprojects every listing from the chain. Used by the worker on a
// slow interval as a safety net under the event indexer.
func (s *ListingService) SyncAll(ctx context.Context) error {
	jobs, err := s.ledger.GetJobs(ctx)
	if err != nil {
		return &CollaboratorError{Op: "sync listings", Err: err}
	}
	for i := range jobs {
		if err := s.listings.Upsert(ctx, &jobs[i]); err != nil {
			return err
		}
		apps, err := s.ledger.GetApplications(ctx, jobs[i].JobID)
		if err != nil {
			s.log.Warn("application sync failed", zap.Uint64("job_id", jobs[i].JobID), zap.Error(err))
			continue
		}
		for j := range apps {
			if err := s.listings.UpsertApplication(ctx, &apps[j]); err != nil {
				return err
			}
		}
	}
	s.log.Info("listing projection synced", zap.Int("count", len(jobs)))
	return nil
}
