package services

import (
	"context"
	"math/big"
	"time"

	"github.com/chainlance/backend/internal/escrow"
	"github.com/chainlance/backend/internal/models"
)

type CreateListingParams struct {
	Client      string
	Title       string
	Description string
	JobType     string
	Deadline    time.Time
	MinPriceUSD *big.Int
	MaxPriceUSD *big.Int
	Asset       string
	MetadataURI string
}

type ApplyParams struct {
	Freelancer             string
	ProposedPriceUSD       *big.Int
	CancellationWindowDays int
	EstimatedDelivery      string
	PortfolioLink          string
}

type FundEscrowParams struct {
	JobID               uint64
	Client              string
	Freelancer          string
	FinalPriceUSD       *big.Int
	DepositAmount       *big.Int // asset units, from the price normalizer
	Asset               string
	EstimatedDeliveryAt time.Time
	CancellationDays    int
}

// Ledger is the external contract collaborator. Every mutating call submits
// one transaction and blocks until it is confirmed; the chain serializes
// operations per escrow unit, so a call may fail because a racing call was
// applied first. The core never retries these; retries cost fees and belong
// to the caller.
type Ledger interface {
	CreateListing(ctx context.Context, p CreateListingParams) (jobID uint64, txHash string, err error)
	Apply(ctx context.Context, jobID uint64, p ApplyParams) (txHash string, err error)
	SetListingActive(ctx context.Context, jobID uint64, active bool) error

	// AuthorizeSpend grants the factory permission to pull the deposit.
	// Idempotent: an existing sufficient allowance is a no-op.
	AuthorizeSpend(ctx context.Context, asset string, amount *big.Int) error
	// EscrowFor returns the unit address bound in the factory for the job, or
	// "" if none exists. This is the pre-creation existence check that keeps
	// a saga retry from double-depositing.
	EscrowFor(ctx context.Context, jobID uint64) (string, error)
	CreateAndFundEscrow(ctx context.Context, p FundEscrowParams) (escrowAddr string, err error)
	MarkApproved(ctx context.Context, jobID uint64, appIndex int) error
	BindEscrow(ctx context.Context, jobID uint64, escrowAddr string) error

	SubmitCheckpoint(ctx context.Context, escrowAddr string, index int, deliverableRef string) (txHash string, err error)
	ApproveCheckpoint(ctx context.Context, escrowAddr string, index int) (txHash string, err error)
	RejectCheckpoint(ctx context.Context, escrowAddr string, index int) (txHash string, err error)
	CancelJob(ctx context.Context, escrowAddr string) (txHash string, err error)

	GetJob(ctx context.Context, jobID uint64) (*models.JobListing, error)
	GetJobs(ctx context.Context) ([]models.JobListing, error)
	GetActiveJobs(ctx context.Context) ([]models.JobListing, error)
	GetApplications(ctx context.Context, jobID uint64) ([]models.Application, error)
	GetEscrowUnit(ctx context.Context, escrowAddr string) (*escrow.Unit, error)
}
