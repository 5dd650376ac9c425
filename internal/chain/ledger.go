package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/escrow"
	"github.com/chainlance/backend/internal/models"
	"github.com/chainlance/backend/internal/services"
)

// Ledger drives the job board, escrow factory and per-job escrow contracts on
// behalf of the operator key. It satisfies services.Ledger.
type Ledger struct {
	client      *Client
	boardABI    abi.ABI
	factoryABI  abi.ABI
	escrowABI   abi.ABI
	tokenABI    abi.ABI
	board       *bind.BoundContract
	factory     *bind.BoundContract
	boardAddr   common.Address
	factoryAddr common.Address
	tokens      map[string]common.Address // settlement asset symbol -> ERC20
	native      string
	log         *zap.Logger
}

func NewLedger(client *Client, boardAddr, factoryAddr string, tokens map[string]string, nativeSymbol string, log *zap.Logger) (*Ledger, error) {
	l := &Ledger{
		client:      client,
		boardAddr:   common.HexToAddress(boardAddr),
		factoryAddr: common.HexToAddress(factoryAddr),
		tokens:      make(map[string]common.Address, len(tokens)),
		native:      nativeSymbol,
		log:         log,
	}

	var err error
	if l.boardABI, err = abi.JSON(strings.NewReader(jobBoardABI)); err != nil {
		return nil, fmt.Errorf("parse job board abi: %w", err)
	}
	if l.factoryABI, err = abi.JSON(strings.NewReader(escrowFactoryABI)); err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	if l.escrowABI, err = abi.JSON(strings.NewReader(escrowUnitABI)); err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	if l.tokenABI, err = abi.JSON(strings.NewReader(erc20ABI)); err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	l.board = bind.NewBoundContract(l.boardAddr, l.boardABI, client.eth, client.eth, client.eth)
	l.factory = bind.NewBoundContract(l.factoryAddr, l.factoryABI, client.eth, client.eth, client.eth)

	for symbol, addr := range tokens {
		l.tokens[symbol] = common.HexToAddress(addr)
	}
	return l, nil
}

// BoardABI exposes the parsed board ABI for the event indexer.
func (l *Ledger) BoardABI() abi.ABI { return l.boardABI }

// FactoryABI exposes the parsed factory ABI for the event indexer.
func (l *Ledger) FactoryABI() abi.ABI { return l.factoryABI }

// EscrowABI exposes the parsed escrow unit ABI for the event indexer.
func (l *Ledger) EscrowABI() abi.ABI { return l.escrowABI }

// BoardAddress returns the job board contract address.
func (l *Ledger) BoardAddress() common.Address { return l.boardAddr }

// FactoryAddress returns the escrow factory contract address.
func (l *Ledger) FactoryAddress() common.Address { return l.factoryAddr }

func (l *Ledger) tokenFor(asset string) (common.Address, error) {
	if addr, ok := l.tokens[asset]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("no token configured for asset %q", asset)
}

func (l *Ledger) boundEscrow(addr string) *bind.BoundContract {
	return bind.NewBoundContract(common.HexToAddress(addr), l.escrowABI, l.client.eth, l.client.eth, l.client.eth)
}

func (l *Ledger) boundToken(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, l.tokenABI, l.client.eth, l.client.eth, l.client.eth)
}

func (l *Ledger) transact(ctx context.Context, bc *bind.BoundContract, method string, value *big.Int, args ...any) (*types.Receipt, error) {
	opts, err := l.client.txOpts(ctx)
	if err != nil {
		return nil, err
	}
	if value != nil {
		opts.Value = value
	}
	tx, err := bc.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	receipt, err := l.client.waitMined(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return receipt, nil
}

// --- job board ---

// boardJob mirrors the getJob tuple. Field names must match the ABI component
// names for abi.ConvertType.
type boardJob struct {
	JobId         *big.Int
	Title         string
	Description   string
	JobType       string
	Deadline      *big.Int
	MinPrice      *big.Int
	MaxPrice      *big.Int
	ClientAddress common.Address
	CreatedAt     *big.Int
	IsActive      bool
	PaymentAsset  string
	MetadataURI   string
}

type boardApplication struct {
	FreelancerAddress    common.Address
	ProposedPrice        *big.Int
	CancellationTimeDays *big.Int
	EstimatedDelivery    string
	PortfolioLink        string
	AppliedAt            *big.Int
	IsApproved           bool
}

func (j *boardJob) toModel() models.JobListing {
	return models.JobListing{
		JobID:           j.JobId.Uint64(),
		ClientAddress:   strings.ToLower(j.ClientAddress.Hex()),
		Title:           j.Title,
		Description:     j.Description,
		JobType:         j.JobType,
		Deadline:        time.Unix(j.Deadline.Int64(), 0).UTC(),
		MinPriceUSD:     j.MinPrice.String(),
		MaxPriceUSD:     j.MaxPrice.String(),
		SettlementAsset: j.PaymentAsset,
		MetadataURI:     j.MetadataURI,
		CreatedAt:       time.Unix(j.CreatedAt.Int64(), 0).UTC(),
		IsActive:        j.IsActive,
	}
}

func (l *Ledger) CreateListing(ctx context.Context, p services.CreateListingParams) (uint64, string, error) {
	receipt, err := l.transact(ctx, l.board, "createJobListing", nil,
		p.Title, p.Description, p.JobType,
		big.NewInt(p.Deadline.Unix()), p.MinPriceUSD, p.MaxPriceUSD,
		p.Asset, p.MetadataURI,
	)
	if err != nil {
		return 0, "", err
	}

	created := l.boardABI.Events["JobListingCreated"]
	for _, lg := range receipt.Logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != created.ID {
			continue
		}
		jobID := new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64()
		return jobID, receipt.TxHash.Hex(), nil
	}
	return 0, "", fmt.Errorf("createJobListing: no JobListingCreated event in receipt %s", receipt.TxHash.Hex())
}

func (l *Ledger) Apply(ctx context.Context, jobID uint64, p services.ApplyParams) (string, error) {
	receipt, err := l.transact(ctx, l.board, "applyForJob", nil,
		new(big.Int).SetUint64(jobID), p.ProposedPriceUSD,
		big.NewInt(int64(p.CancellationWindowDays)),
		p.EstimatedDelivery, p.PortfolioLink,
	)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (l *Ledger) SetListingActive(ctx context.Context, jobID uint64, active bool) error {
	_, err := l.transact(ctx, l.board, "setJobActive", nil, new(big.Int).SetUint64(jobID), active)
	return err
}

func (l *Ledger) MarkApproved(ctx context.Context, jobID uint64, appIndex int) error {
	_, err := l.transact(ctx, l.board, "approveApplication", nil,
		new(big.Int).SetUint64(jobID), big.NewInt(int64(appIndex)))
	return err
}

func (l *Ledger) BindEscrow(ctx context.Context, jobID uint64, escrowAddr string) error {
	_, err := l.transact(ctx, l.board, "setEscrow", nil,
		new(big.Int).SetUint64(jobID), common.HexToAddress(escrowAddr))
	return err
}

func (l *Ledger) GetJob(ctx context.Context, jobID uint64) (*models.JobListing, error) {
	var out []any
	err := l.board.Call(&bind.CallOpts{Context: ctx}, &out, "getJob", new(big.Int).SetUint64(jobID))
	if err != nil {
		return nil, fmt.Errorf("getJob %d: %w", jobID, err)
	}
	job := abi.ConvertType(out[0], new(boardJob)).(*boardJob)
	m := job.toModel()

	// The board stores the binding separately from the listing tuple.
	if addr, err := l.boardEscrow(ctx, jobID); err == nil && addr != "" {
		m.EscrowAddress = &addr
	}
	return &m, nil
}

func (l *Ledger) boardEscrow(ctx context.Context, jobID uint64) (string, error) {
	var out []any
	err := l.board.Call(&bind.CallOpts{Context: ctx}, &out, "getEscrow", new(big.Int).SetUint64(jobID))
	if err != nil {
		return "", fmt.Errorf("board getEscrow %d: %w", jobID, err)
	}
	addr := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if addr == (common.Address{}) {
		return "", nil
	}
	return strings.ToLower(addr.Hex()), nil
}

func (l *Ledger) getJobList(ctx context.Context, method string) ([]models.JobListing, error) {
	var out []any
	err := l.board.Call(&bind.CallOpts{Context: ctx}, &out, method)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	jobs := *abi.ConvertType(out[0], new([]boardJob)).(*[]boardJob)
	result := make([]models.JobListing, 0, len(jobs))
	for i := range jobs {
		result = append(result, jobs[i].toModel())
	}
	return result, nil
}

func (l *Ledger) GetJobs(ctx context.Context) ([]models.JobListing, error) {
	return l.getJobList(ctx, "getAllJobs")
}

func (l *Ledger) GetActiveJobs(ctx context.Context) ([]models.JobListing, error) {
	return l.getJobList(ctx, "getActiveJobs")
}

func (l *Ledger) GetApplications(ctx context.Context, jobID uint64) ([]models.Application, error) {
	var out []any
	err := l.board.Call(&bind.CallOpts{Context: ctx}, &out, "getJobApplications", new(big.Int).SetUint64(jobID))
	if err != nil {
		return nil, fmt.Errorf("getJobApplications %d: %w", jobID, err)
	}
	apps := *abi.ConvertType(out[0], new([]boardApplication)).(*[]boardApplication)
	result := make([]models.Application, 0, len(apps))
	for i, a := range apps {
		result = append(result, models.Application{
			JobID:                  jobID,
			Index:                  i,
			FreelancerAddress:      strings.ToLower(a.FreelancerAddress.Hex()),
			ProposedPriceUSD:       a.ProposedPrice.String(),
			CancellationWindowDays: int(a.CancellationTimeDays.Int64()),
			EstimatedDelivery:      a.EstimatedDelivery,
			PortfolioLink:          a.PortfolioLink,
			AppliedAt:              time.Unix(a.AppliedAt.Int64(), 0).UTC(),
			IsApproved:             a.IsApproved,
		})
	}
	return result, nil
}

// --- escrow factory ---

func (l *Ledger) EscrowFor(ctx context.Context, jobID uint64) (string, error) {
	var out []any
	err := l.factory.Call(&bind.CallOpts{Context: ctx}, &out, "getEscrow", new(big.Int).SetUint64(jobID))
	if err != nil {
		return "", fmt.Errorf("factory getEscrow %d: %w", jobID, err)
	}
	addr := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if addr == (common.Address{}) {
		return "", nil
	}
	return strings.ToLower(addr.Hex()), nil
}

// AuthorizeSpend approves the factory for amount of the asset's token. Native
// deposits never call this. Re-running is idempotent: a sufficient existing
// allowance short-circuits before any transaction is sent.
func (l *Ledger) AuthorizeSpend(ctx context.Context, asset string, amount *big.Int) error {
	if asset == l.native {
		return nil
	}
	tokenAddr, err := l.tokenFor(asset)
	if err != nil {
		return err
	}
	token := l.boundToken(tokenAddr)

	var out []any
	err = token.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", l.client.from, l.factoryAddr)
	if err != nil {
		return fmt.Errorf("allowance %s: %w", asset, err)
	}
	allowance := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if allowance.Cmp(amount) >= 0 {
		l.log.Debug("spend already authorized",
			zap.String("asset", asset),
			zap.String("allowance", allowance.String()),
		)
		return nil
	}

	_, err = l.transact(ctx, token, "approve", nil, l.factoryAddr, amount)
	return err
}

func (l *Ledger) CreateAndFundEscrow(ctx context.Context, p services.FundEscrowParams) (string, error) {
	// Existence guard: a saga retry that raced a confirmed deposit must not
	// create and fund a second unit for the same job.
	if existing, err := l.EscrowFor(ctx, p.JobID); err != nil {
		return "", err
	} else if existing != "" {
		return "", fmt.Errorf("job %d: %w", p.JobID, escrow.ErrDuplicateEscrow)
	}

	var value *big.Int
	tokenAddr := common.Address{} // zero address means the native asset
	if p.Asset == l.native {
		value = p.DepositAmount
	} else {
		var err error
		if tokenAddr, err = l.tokenFor(p.Asset); err != nil {
			return "", err
		}
	}

	receipt, err := l.transact(ctx, l.factory, "createEscrowAndDeposit", value,
		new(big.Int).SetUint64(p.JobID),
		common.HexToAddress(p.Client),
		common.HexToAddress(p.Freelancer),
		p.FinalPriceUSD,
		p.DepositAmount,
		big.NewInt(p.EstimatedDeliveryAt.Unix()),
		big.NewInt(int64(p.CancellationDays)),
		tokenAddr,
	)
	if err != nil {
		return "", err
	}

	created := l.factoryABI.Events["EscrowCreated"]
	for _, lg := range receipt.Logs {
		if len(lg.Topics) < 3 || lg.Topics[0] != created.ID {
			continue
		}
		addr := common.BytesToAddress(lg.Topics[2].Bytes())
		return strings.ToLower(addr.Hex()), nil
	}
	return "", fmt.Errorf("createEscrowAndDeposit: no EscrowCreated event in receipt %s", receipt.TxHash.Hex())
}

// --- escrow unit ---

type escrowCheckpoint struct {
	IsCompleted    bool
	IsApproved     bool
	DeliverableRef string
	SubmittedAt    *big.Int
	ApprovedAt     *big.Int
}

func (l *Ledger) SubmitCheckpoint(ctx context.Context, escrowAddr string, index int, deliverableRef string) (string, error) {
	receipt, err := l.transact(ctx, l.boundEscrow(escrowAddr), "submitCheckpoint", nil,
		big.NewInt(int64(index)), deliverableRef)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (l *Ledger) ApproveCheckpoint(ctx context.Context, escrowAddr string, index int) (string, error) {
	receipt, err := l.transact(ctx, l.boundEscrow(escrowAddr), "approveCheckpoint", nil, big.NewInt(int64(index)))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (l *Ledger) RejectCheckpoint(ctx context.Context, escrowAddr string, index int) (string, error) {
	receipt, err := l.transact(ctx, l.boundEscrow(escrowAddr), "rejectCheckpoint", nil, big.NewInt(int64(index)))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (l *Ledger) CancelJob(ctx context.Context, escrowAddr string) (string, error) {
	receipt, err := l.transact(ctx, l.boundEscrow(escrowAddr), "cancelJob", nil)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// GetEscrowUnit reads the full unit state in one pass so workflow guards are
// always evaluated against fresh chain state.
func (l *Ledger) GetEscrowUnit(ctx context.Context, escrowAddr string) (*escrow.Unit, error) {
	bc := l.boundEscrow(escrowAddr)
	opts := &bind.CallOpts{Context: ctx}

	unit := &escrow.Unit{TotalReleased: big.NewInt(0)}

	var out []any
	if err := bc.Call(opts, &out, "clientAddress"); err != nil {
		return nil, fmt.Errorf("clientAddress: %w", err)
	}
	unit.Client = strings.ToLower((*abi.ConvertType(out[0], new(common.Address)).(*common.Address)).Hex())

	out = nil
	if err := bc.Call(opts, &out, "freelancerAddress"); err != nil {
		return nil, fmt.Errorf("freelancerAddress: %w", err)
	}
	unit.Freelancer = strings.ToLower((*abi.ConvertType(out[0], new(common.Address)).(*common.Address)).Hex())

	out = nil
	if err := bc.Call(opts, &out, "finalPrice"); err != nil {
		return nil, fmt.Errorf("finalPrice: %w", err)
	}
	unit.FinalPriceUSD = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)

	out = nil
	if err := bc.Call(opts, &out, "depositedAmount"); err != nil {
		return nil, fmt.Errorf("depositedAmount: %w", err)
	}
	unit.Deposited = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)

	out = nil
	if err := bc.Call(opts, &out, "depositedAt"); err != nil {
		return nil, fmt.Errorf("depositedAt: %w", err)
	}
	unit.DepositedAt = time.Unix((*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Int64(), 0).UTC()

	out = nil
	if err := bc.Call(opts, &out, "cancellationTimeDays"); err != nil {
		return nil, fmt.Errorf("cancellationTimeDays: %w", err)
	}
	unit.CancellationWindowDays = int((*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Int64())

	out = nil
	if err := bc.Call(opts, &out, "estimatedDeliveryTimestamp"); err != nil {
		return nil, fmt.Errorf("estimatedDeliveryTimestamp: %w", err)
	}
	unit.EstimatedDeliveryAt = time.Unix((*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Int64(), 0).UTC()

	out = nil
	if err := bc.Call(opts, &out, "getJobStatus"); err != nil {
		return nil, fmt.Errorf("getJobStatus: %w", err)
	}
	unit.Cancelled = *abi.ConvertType(out[0], new(bool)).(*bool)
	unit.TotalReleased = *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)

	for i := 0; i < escrow.NumCheckpoints; i++ {
		out = nil
		if err := bc.Call(opts, &out, "getCheckpoint", big.NewInt(int64(i))); err != nil {
			return nil, fmt.Errorf("getCheckpoint %d: %w", i, err)
		}
		cp := abi.ConvertType(out[0], new(escrowCheckpoint)).(*escrowCheckpoint)
		unit.Checkpoints[i] = escrow.Checkpoint{
			Completed:   cp.IsCompleted,
			Approved:    cp.IsApproved,
			Deliverable: cp.DeliverableRef,
		}
		if cp.SubmittedAt.Sign() > 0 {
			unit.Checkpoints[i].SubmittedAt = time.Unix(cp.SubmittedAt.Int64(), 0).UTC()
		}
		if cp.ApprovedAt.Sign() > 0 {
			unit.Checkpoints[i].ApprovedAt = time.Unix(cp.ApprovedAt.Int64(), 0).UTC()
		}
	}

	return unit, nil
}
