package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chainlance/backend/internal/escrow"
	"github.com/chainlance/backend/internal/events"
	"github.com/chainlance/backend/internal/models"
	"github.com/chainlance/backend/internal/oracle"
)

// fakeLedger is an in-memory stand-in for the chain: a job board, a factory
// and live escrow units driven by the real engine. failOn injects one-shot
// failures per method to exercise saga recovery.
type fakeLedger struct {
	mu      sync.Mutex
	nextJob uint64
	jobs    map[uint64]*models.JobListing
	apps    map[uint64][]models.Application
	bound   map[uint64]string // factory binding
	units   map[string]*escrow.Unit

	authorizeCalls  int
	createFundCalls int
	markCalls       int
	bindCalls       int

	failOn map[string]error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		nextJob: 1,
		jobs:    make(map[uint64]*models.JobListing),
		apps:    make(map[uint64][]models.Application),
		bound:   make(map[uint64]string),
		units:   make(map[string]*escrow.Unit),
		failOn:  make(map[string]error),
	}
}

// failNext makes the named method fail exactly once.
func (f *fakeLedger) failNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[method] = err
}

func (f *fakeLedger) maybeFail(method string) error {
	if err, ok := f.failOn[method]; ok {
		delete(f.failOn, method)
		return err
	}
	return nil
}

func (f *fakeLedger) CreateListing(ctx context.Context, p CreateListingParams) (uint64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("CreateListing"); err != nil {
		return 0, "", err
	}
	id := f.nextJob
	f.nextJob++
	f.jobs[id] = &models.JobListing{
		JobID:           id,
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
	return id, "0xtx", nil
}

func (f *fakeLedger) Apply(ctx context.Context, jobID uint64, p ApplyParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("Apply"); err != nil {
		return "", err
	}
	f.apps[jobID] = append(f.apps[jobID], models.Application{
		JobID:                  jobID,
		Index:                  len(f.apps[jobID]),
		FreelancerAddress:      p.Freelancer,
		ProposedPriceUSD:       p.ProposedPriceUSD.String(),
		CancellationWindowDays: p.CancellationWindowDays,
		EstimatedDelivery:      p.EstimatedDelivery,
		PortfolioLink:          p.PortfolioLink,
		AppliedAt:              time.Now().UTC(),
	})
	return "0xtx", nil
}

func (f *fakeLedger) SetListingActive(ctx context.Context, jobID uint64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("SetListingActive"); err != nil {
		return err
	}
	if j, ok := f.jobs[jobID]; ok {
		j.IsActive = active
	}
	return nil
}

func (f *fakeLedger) AuthorizeSpend(ctx context.Context, asset string, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorizeCalls++
	return f.maybeFail("AuthorizeSpend")
}

func (f *fakeLedger) EscrowFor(ctx context.Context, jobID uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("EscrowFor"); err != nil {
		return "", err
	}
	return f.bound[jobID], nil
}

func (f *fakeLedger) CreateAndFundEscrow(ctx context.Context, p FundEscrowParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createFundCalls++
	if err := f.maybeFail("CreateAndFundEscrow"); err != nil {
		return "", err
	}
	if f.bound[p.JobID] != "" {
		return "", fmt.Errorf("escrow already exists for job %d", p.JobID)
	}
	addr := fmt.Sprintf("0xescrow%d", p.JobID)
	f.bound[p.JobID] = addr
	f.units[addr] = &escrow.Unit{
		JobID:                  p.JobID,
		Client:                 p.Client,
		Freelancer:             p.Freelancer,
		FinalPriceUSD:          new(big.Int).Set(p.FinalPriceUSD),
		Asset:                  p.Asset,
		Deposited:              new(big.Int).Set(p.DepositAmount),
		TotalReleased:          big.NewInt(0),
		CancellationWindowDays: p.CancellationDays,
		EstimatedDeliveryAt:    p.EstimatedDeliveryAt,
		DepositedAt:            time.Now().UTC(),
	}
	return addr, nil
}

func (f *fakeLedger) MarkApproved(ctx context.Context, jobID uint64, appIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if err := f.maybeFail("MarkApproved"); err != nil {
		return err
	}
	apps := f.apps[jobID]
	if appIndex < 0 || appIndex >= len(apps) {
		return fmt.Errorf("no such application")
	}
	if apps[appIndex].IsApproved {
		return fmt.Errorf("application already approved")
	}
	apps[appIndex].IsApproved = true
	return nil
}

func (f *fakeLedger) BindEscrow(ctx context.Context, jobID uint64, escrowAddr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindCalls++
	if err := f.maybeFail("BindEscrow"); err != nil {
		return err
	}
	j, ok := f.jobs[jobID]
	if !ok {
		return fmt.Errorf("no such job")
	}
	if j.EscrowAddress != nil {
		return fmt.Errorf("escrow already bound")
	}
	j.EscrowAddress = &escrowAddr
	return nil
}

func (f *fakeLedger) SubmitCheckpoint(ctx context.Context, escrowAddr string, index int, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("SubmitCheckpoint"); err != nil {
		return "", err
	}
	u, ok := f.units[escrowAddr]
	if !ok {
		return "", fmt.Errorf("no such escrow")
	}
	if err := u.Submit(index, ref, time.Now().UTC()); err != nil {
		return "", err
	}
	return "0xtx", nil
}

func (f *fakeLedger) ApproveCheckpoint(ctx context.Context, escrowAddr string, index int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("ApproveCheckpoint"); err != nil {
		return "", err
	}
	u, ok := f.units[escrowAddr]
	if !ok {
		return "", fmt.Errorf("no such escrow")
	}
	if _, err := u.Approve(index, time.Now().UTC()); err != nil {
		return "", err
	}
	return "0xtx", nil
}

func (f *fakeLedger) RejectCheckpoint(ctx context.Context, escrowAddr string, index int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[escrowAddr]
	if !ok {
		return "", fmt.Errorf("no such escrow")
	}
	if err := u.Reject(index); err != nil {
		return "", err
	}
	return "0xtx", nil
}

func (f *fakeLedger) CancelJob(ctx context.Context, escrowAddr string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[escrowAddr]
	if !ok {
		return "", fmt.Errorf("no such escrow")
	}
	if _, err := u.Cancel(time.Now().UTC()); err != nil {
		return "", err
	}
	return "0xtx", nil
}

func (f *fakeLedger) GetJob(ctx context.Context, jobID uint64) (*models.JobListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("no such job")
	}
	copied := *j
	return &copied, nil
}

func (f *fakeLedger) GetJobs(ctx context.Context) ([]models.JobListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.JobListing
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeLedger) GetActiveJobs(ctx context.Context) ([]models.JobListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.JobListing
	for _, j := range f.jobs {
		if j.IsActive {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeLedger) GetApplications(ctx context.Context, jobID uint64) ([]models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Application(nil), f.apps[jobID]...), nil
}

func (f *fakeLedger) GetEscrowUnit(ctx context.Context, escrowAddr string) (*escrow.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[escrowAddr]
	if !ok {
		return nil, fmt.Errorf("no such escrow")
	}
	return u.Clone(), nil
}

// --- projection fakes ---

type fakeSagas struct {
	mu    sync.Mutex
	sagas map[uint64]*models.ApprovalSaga
}

func newFakeSagas() *fakeSagas {
	return &fakeSagas{sagas: make(map[uint64]*models.ApprovalSaga)}
}

func (f *fakeSagas) Begin(ctx context.Context, jobID uint64, appIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sagas[jobID]; ok {
		return fmt.Errorf("duplicate key job %d", jobID)
	}
	f.sagas[jobID] = &models.ApprovalSaga{
		JobID:            jobID,
		ApplicationIndex: appIndex,
		Status:           models.SagaStatusRunning,
		StartedAt:        time.Now().UTC(),
	}
	return nil
}

func (f *fakeSagas) Get(ctx context.Context, jobID uint64) (*models.ApprovalSaga, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sagas[jobID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSagas) RecordStep(ctx context.Context, jobID uint64, step int, escrowAddress *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sagas[jobID]
	if !ok {
		return pgx.ErrNoRows
	}
	s.Step = step
	s.Status = models.SagaStatusRunning
	if escrowAddress != nil {
		s.EscrowAddress = escrowAddress
	}
	s.LastError = nil
	return nil
}

func (f *fakeSagas) MarkFailed(ctx context.Context, jobID uint64, stepErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sagas[jobID]; ok {
		s.Status = models.SagaStatusFailed
		s.LastError = &stepErr
	}
	return nil
}

func (f *fakeSagas) MarkCompleted(ctx context.Context, jobID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sagas[jobID]; ok {
		s.Status = models.SagaStatusCompleted
		s.LastError = nil
	}
	return nil
}

func (f *fakeSagas) ListIncomplete(ctx context.Context, limit int) ([]models.ApprovalSaga, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ApprovalSaga
	for _, s := range f.sagas {
		if s.Status != models.SagaStatusCompleted {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeListings struct {
	mu       sync.Mutex
	listings map[uint64]*models.JobListing
	apps     map[string]*models.Application
}

func newFakeListings() *fakeListings {
	return &fakeListings{
		listings: make(map[uint64]*models.JobListing),
		apps:     make(map[string]*models.Application),
	}
}

func appKey(jobID uint64, index int) string { return fmt.Sprintf("%d/%d", jobID, index) }

func (f *fakeListings) Upsert(ctx context.Context, l *models.JobListing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *l
	f.listings[l.JobID] = &copied
	return nil
}

func (f *fakeListings) GetByJobID(ctx context.Context, jobID uint64) (*models.JobListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[jobID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *l
	return &copied, nil
}

func (f *fakeListings) List(ctx context.Context, activeOnly bool, jobType string, limit, offset int) ([]models.JobListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.JobListing
	for _, l := range f.listings {
		if activeOnly && !l.IsActive {
			continue
		}
		if jobType != "" && l.JobType != jobType {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (f *fakeListings) ListByClient(ctx context.Context, clientAddress string) ([]models.JobListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.JobListing
	for _, l := range f.listings {
		if addressEqual(l.ClientAddress, clientAddress) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeListings) SetActive(ctx context.Context, jobID uint64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.listings[jobID]; ok {
		l.IsActive = active
	}
	return nil
}

func (f *fakeListings) SetEscrowAddress(ctx context.Context, jobID uint64, escrowAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.listings[jobID]; ok {
		l.EscrowAddress = &escrowAddress
	}
	return nil
}

func (f *fakeListings) StaleSince(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	return nil, nil
}

func (f *fakeListings) UpsertApplication(ctx context.Context, a *models.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *a
	f.apps[appKey(a.JobID, a.Index)] = &copied
	return nil
}

func (f *fakeListings) GetApplications(ctx context.Context, jobID uint64) ([]models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Application
	for _, a := range f.apps {
		if a.JobID == jobID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeListings) GetApplication(ctx context.Context, jobID uint64, index int) (*models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[appKey(jobID, index)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

type fakeEscrows struct {
	mu          sync.Mutex
	units       map[string]*models.EscrowUnit
	checkpoints map[string]*models.CheckpointRecord
}

func newFakeEscrows() *fakeEscrows {
	return &fakeEscrows{
		units:       make(map[string]*models.EscrowUnit),
		checkpoints: make(map[string]*models.CheckpointRecord),
	}
}

func cpKey(addr string, index int) string { return fmt.Sprintf("%s/%d", addr, index) }

func (f *fakeEscrows) Upsert(ctx context.Context, e *models.EscrowUnit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *e
	f.units[e.Address] = &copied
	return nil
}

func (f *fakeEscrows) GetByAddress(ctx context.Context, address string) (*models.EscrowUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.units[address]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEscrows) GetByJobID(ctx context.Context, jobID uint64) (*models.EscrowUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.units {
		if e.JobID == jobID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeEscrows) ListByParty(ctx context.Context, address string) ([]models.EscrowUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EscrowUnit
	for _, e := range f.units {
		if addressEqual(e.ClientAddress, address) || addressEqual(e.FreelancerAddress, address) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEscrows) UpdateReleased(ctx context.Context, address, totalReleased, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.units[address]; ok {
		e.TotalReleased = totalReleased
		e.Status = status
	}
	return nil
}

func (f *fakeEscrows) MarkCancelled(ctx context.Context, address string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.units[address]; ok {
		e.Status = models.EscrowStatusCancelled
		e.CancelledAt = &at
	}
	return nil
}

func (f *fakeEscrows) UpsertCheckpoint(ctx context.Context, c *models.CheckpointRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *c
	f.checkpoints[cpKey(c.EscrowAddress, c.Index)] = &copied
	return nil
}

func (f *fakeEscrows) GetCheckpoints(ctx context.Context, escrowAddress string) ([]models.CheckpointRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CheckpointRecord
	for _, c := range f.checkpoints {
		if c.EscrowAddress == escrowAddress {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAudit) Log(ctx context.Context, entry models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, stream string, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) byType(eventType string) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fixedRate is a RateSource pinned at price/decimals.
type fixedRate struct {
	price    *big.Int
	decimals uint8
}

func (s fixedRate) GetRate(ctx context.Context, asset string) (oracle.Rate, error) {
	return oracle.Rate{Price: s.price, Decimals: s.decimals, AsOf: time.Now()}, nil
}
