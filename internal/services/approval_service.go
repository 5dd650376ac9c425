package services

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/events"
	"github.com/chainlance/backend/internal/models"
	"github.com/chainlance/backend/internal/oracle"
)

// sagaStore persists approval progress. Satisfied by repositories.SagaRepo.
type sagaStore interface {
	Begin(ctx context.Context, jobID uint64, appIndex int) error
	Get(ctx context.Context, jobID uint64) (*models.ApprovalSaga, error)
	RecordStep(ctx context.Context, jobID uint64, step int, escrowAddress *string) error
	MarkFailed(ctx context.Context, jobID uint64, stepErr string) error
	MarkCompleted(ctx context.Context, jobID uint64) error
	ListIncomplete(ctx context.Context, limit int) ([]models.ApprovalSaga, error)
}

// ApprovalService runs the four-step activation saga that turns an accepted
// application into a funded escrow unit. Each step is one chain transaction;
// progress is persisted between steps and re-derived from chain state on
// resume, so a crash after a confirmed transaction never repeats it.
type ApprovalService struct {
	ledger    Ledger
	rates     *oracle.Normalizer
	sagas     sagaStore
	listings  listingStore
	escrows   escrowStore
	audit     auditLogger
	publisher events.Publisher
	native    string // chain-native settlement asset, needs no allowance
	log       *zap.Logger
}

func NewApprovalService(
	ledger Ledger,
	rates *oracle.Normalizer,
	sagas sagaStore,
	listings listingStore,
	escrows escrowStore,
	audit auditLogger,
	publisher events.Publisher,
	nativeSymbol string,
	log *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		ledger:    ledger,
		rates:     rates,
		sagas:     sagas,
		listings:  listings,
		escrows:   escrows,
		audit:     audit,
		publisher: publisher,
		native:    nativeSymbol,
		log:       log,
	}
}

// Approve activates application appIndex on jobID. Only the listing client may
// call it, and only one application per job can ever be approved.
func (s *ApprovalService) Approve(ctx context.Context, jobID uint64, appIndex int, caller string) (*models.EscrowUnit, error) {
	job, err := s.ledger.GetJob(ctx, jobID)
	if err != nil {
		return nil, &CollaboratorError{Op: "get job", JobID: jobID, Err: err}
	}
	if !addressEqual(job.ClientAddress, caller) {
		return nil, fmt.Errorf("only the listing client can approve applications")
	}

	apps, err := s.ledger.GetApplications(ctx, jobID)
	if err != nil {
		return nil, &CollaboratorError{Op: "get applications", JobID: jobID, Err: err}
	}
	if appIndex < 0 || appIndex >= len(apps) {
		return nil, fmt.Errorf("job %d has no application %d: %w", jobID, appIndex, ErrNotFound)
	}
	for i := range apps {
		if apps[i].IsApproved && i != appIndex {
			return nil, fmt.Errorf("job %d already has an approved application (%d)", jobID, i)
		}
	}

	if err := s.sagas.Begin(ctx, jobID, appIndex); err != nil {
		// The row already exists: either a finished approval or an earlier
		// attempt to resume.
		prior, getErr := s.sagas.Get(ctx, jobID)
		if getErr != nil {
			return nil, fmt.Errorf("job %d approval already in progress: %w", jobID, err)
		}
		if prior.Status == models.SagaStatusCompleted {
			return nil, fmt.Errorf("job %d application already approved", jobID)
		}
		if prior.ApplicationIndex != appIndex {
			return nil, fmt.Errorf("job %d approval already started for application %d", jobID, prior.ApplicationIndex)
		}
	}

	return s.run(ctx, jobID, appIndex, &caller)
}

// ResumeIncomplete retries every running or failed saga from wherever chain
// state says it stopped. Called by the worker on a timer.
func (s *ApprovalService) ResumeIncomplete(ctx context.Context) {
	sagas, err := s.sagas.ListIncomplete(ctx, 50)
	if err != nil {
		s.log.Error("list incomplete sagas failed", zap.Error(err))
		return
	}
	for _, saga := range sagas {
		if _, err := s.run(ctx, saga.JobID, saga.ApplicationIndex, nil); err != nil {
			s.log.Warn("saga resume failed",
				zap.Uint64("job_id", saga.JobID),
				zap.Error(err),
			)
			_ = s.audit.Log(ctx, models.AuditLog{
				ActorType:  models.ActorTypeSystem,
				Action:     "saga_resume_failed",
				EntityType: "saga",
				EntityRef:  strconv.FormatUint(saga.JobID, 10),
				Meta:       map[string]any{"step": saga.Step, "error": err.Error()},
			})
		}
	}
}

func (s *ApprovalService) fail(ctx context.Context, jobID uint64, step int, err error) error {
	stepErr := &StepError{JobID: jobID, Step: step, Err: err}
	if mErr := s.sagas.MarkFailed(ctx, jobID, stepErr.Error()); mErr != nil {
		s.log.Error("mark saga failed errored", zap.Uint64("job_id", jobID), zap.Error(mErr))
	}
	return stepErr
}

// run executes the saga from wherever chain state says it currently is. The
// persisted step record is a hint only; every skip decision below re-derives
// progress from the chain, so replaying a completed step is impossible even if
// the record is stale.
func (s *ApprovalService) run(ctx context.Context, jobID uint64, appIndex int, actor *string) (*models.EscrowUnit, error) {
	now := time.Now().UTC()

	job, err := s.ledger.GetJob(ctx, jobID)
	if err != nil {
		return nil, &CollaboratorError{Op: "get job", JobID: jobID, Err: err}
	}
	apps, err := s.ledger.GetApplications(ctx, jobID)
	if err != nil {
		return nil, &CollaboratorError{Op: "get applications", JobID: jobID, Err: err}
	}
	if appIndex < 0 || appIndex >= len(apps) {
		return nil, fmt.Errorf("job %d has no application %d: %w", jobID, appIndex, ErrNotFound)
	}
	app := apps[appIndex]

	priceUSD, ok := new(big.Int).SetString(app.ProposedPriceUSD, 10)
	if !ok || priceUSD.Sign() <= 0 {
		return nil, fmt.Errorf("job %d application %d has invalid price %q", jobID, appIndex, app.ProposedPriceUSD)
	}

	// Steps 1 and 2: the factory binding is the ground truth for whether the
	// deposit already happened.
	escrowAddr, err := s.ledger.EscrowFor(ctx, jobID)
	if err != nil {
		return nil, &CollaboratorError{Op: "escrow lookup", JobID: jobID, Err: err}
	}
	if escrowAddr == "" {
		// The deposit is quoted exactly once, here. Later price moves never
		// rescale an existing deposit.
		deposit, err := s.rates.Convert(ctx, priceUSD, job.SettlementAsset)
		if err != nil {
			return nil, s.fail(ctx, jobID, models.SagaStepCreateAndFund, err)
		}

		if job.SettlementAsset != s.native {
			if err := s.ledger.AuthorizeSpend(ctx, job.SettlementAsset, deposit); err != nil {
				return nil, s.fail(ctx, jobID, models.SagaStepAuthorize, err)
			}
		}
		if err := s.sagas.RecordStep(ctx, jobID, models.SagaStepAuthorize, nil); err != nil {
			s.log.Error("record step failed", zap.Uint64("job_id", jobID), zap.Error(err))
		}

		escrowAddr, err = s.ledger.CreateAndFundEscrow(ctx, FundEscrowParams{
			JobID:               jobID,
			Client:              job.ClientAddress,
			Freelancer:          app.FreelancerAddress,
			FinalPriceUSD:       priceUSD,
			DepositAmount:       deposit,
			Asset:               job.SettlementAsset,
			EstimatedDeliveryAt: models.ParseEstimatedDelivery(app.EstimatedDelivery, now),
			CancellationDays:    app.CancellationWindowDays,
		})
		if err != nil {
			return nil, s.fail(ctx, jobID, models.SagaStepCreateAndFund, err)
		}

		_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
			Type: events.EventEscrowFunded,
			Payload: map[string]any{
				"job_id":  jobID,
				"escrow":  escrowAddr,
				"deposit": deposit.String(),
				"asset":   job.SettlementAsset,
			},
		})
	}
	if err := s.sagas.RecordStep(ctx, jobID, models.SagaStepCreateAndFund, &escrowAddr); err != nil {
		s.log.Error("record step failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}

	// Step 3: application flag on the board.
	if !app.IsApproved {
		if err := s.ledger.MarkApproved(ctx, jobID, appIndex); err != nil {
			return nil, s.fail(ctx, jobID, models.SagaStepMarkApproved, err)
		}
	}
	if err := s.sagas.RecordStep(ctx, jobID, models.SagaStepMarkApproved, nil); err != nil {
		s.log.Error("record step failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}

	// Step 4: bind the escrow address on the listing.
	if job.EscrowAddress == nil || *job.EscrowAddress == "" {
		if err := s.ledger.BindEscrow(ctx, jobID, escrowAddr); err != nil {
			return nil, s.fail(ctx, jobID, models.SagaStepBindEscrow, err)
		}
	}
	if err := s.sagas.RecordStep(ctx, jobID, models.SagaStepBindEscrow, nil); err != nil {
		s.log.Error("record step failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}
	if err := s.sagas.MarkCompleted(ctx, jobID); err != nil {
		s.log.Error("mark saga completed failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}

	proj := s.project(ctx, jobID, escrowAddr, job.SettlementAsset, now)

	app.IsApproved = true
	if err := s.listings.UpsertApplication(ctx, &app); err != nil {
		s.log.Warn("application projection update failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}
	if err := s.listings.SetEscrowAddress(ctx, jobID, escrowAddr); err != nil {
		s.log.Warn("listing projection update failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}

	actorType := models.ActorTypeSystem
	if actor != nil {
		actorType = models.ActorTypeUser
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorRef:   actor,
		ActorType:  actorType,
		Action:     "application_approved",
		EntityType: "listing",
		EntityRef:  fmt.Sprintf("%d", jobID),
		Meta:       map[string]any{"app_index": appIndex, "escrow": escrowAddr},
	})
	_ = s.publisher.Publish(ctx, events.StreamJobs, events.Event{
		Type: events.EventApplicationApproved,
		Payload: map[string]any{
			"job_id":     jobID,
			"app_index":  appIndex,
			"freelancer": app.FreelancerAddress,
			"escrow":     escrowAddr,
		},
	})

	s.log.Info("approval saga completed",
		zap.Uint64("job_id", jobID),
		zap.Int("app_index", appIndex),
		zap.String("escrow", escrowAddr),
	)
	return proj, nil
}

// project pulls the freshly funded unit and writes its projection rows. Best
// effort: the chain state is already final.
func (s *ApprovalService) project(ctx context.Context, jobID uint64, escrowAddr, asset string, now time.Time) *models.EscrowUnit {
	unit, err := s.ledger.GetEscrowUnit(ctx, escrowAddr)
	if err != nil {
		s.log.Warn("escrow read-back failed", zap.String("escrow", escrowAddr), zap.Error(err))
		return &models.EscrowUnit{Address: escrowAddr, JobID: jobID, SettlementAsset: asset}
	}
	unit.JobID = jobID
	unit.Asset = asset

	proj, checkpoints := projectUnit(escrowAddr, asset, unit, now)
	if err := s.escrows.Upsert(ctx, proj); err != nil {
		s.log.Warn("escrow projection write failed", zap.String("escrow", escrowAddr), zap.Error(err))
		return proj
	}
	for i := range checkpoints {
		if err := s.escrows.UpsertCheckpoint(ctx, &checkpoints[i]); err != nil {
			s.log.Warn("checkpoint projection write failed", zap.String("escrow", escrowAddr), zap.Error(err))
		}
	}
	return proj
}
