package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/chain"
	"github.com/chainlance/backend/internal/config"
	"github.com/chainlance/backend/internal/db"
	"github.com/chainlance/backend/internal/events"
	"github.com/chainlance/backend/internal/models"
	"github.com/chainlance/backend/internal/repositories"
	"github.com/chainlance/backend/internal/services"
)

const (
	redisCursorBlock = "chain-indexer:cursor:block"
	maxBlockRange    = 2000
)

// The indexer keeps the Postgres projection honest against activity that did
// not pass through this backend: wallets can call the contracts directly. It
// tails contract logs from the last processed block and resyncs the affected
// rows through the same services the API uses.
type indexer struct {
	client      *chain.Client
	ledger      *chain.Ledger
	checkpoints *services.CheckpointService
	listingRepo *repositories.ListingRepo
	escrowRepo  *repositories.EscrowRepo
	auditRepo   *repositories.AuditRepo
	publisher   events.Publisher
	rdb         *redis.Client
	log         *zap.Logger
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	client, err := chain.Dial(ctx, cfg.ChainRPCURL, cfg.OperatorPrivateKey, cfg.ConfirmTimeout, log)
	if err != nil {
		log.Fatal("failed to connect to chain RPC", zap.Error(err))
	}
	defer client.Close()

	ledger, err := chain.NewLedger(client, cfg.JobBoardAddress, cfg.EscrowFactoryAddress, cfg.AssetTokens, cfg.NativeSymbol, log)
	if err != nil {
		log.Fatal("failed to bind contracts", zap.Error(err))
	}

	listingRepo := repositories.NewListingRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	idx := &indexer{
		client:      client,
		ledger:      ledger,
		checkpoints: services.NewCheckpointService(ledger, escrowRepo, auditRepo, publisher, log),
		listingRepo: listingRepo,
		escrowRepo:  escrowRepo,
		auditRepo:   auditRepo,
		publisher:   publisher,
		rdb:         rdb,
		log:         log,
	}

	log.Info("chain indexer started",
		zap.String("board", ledger.BoardAddress().Hex()),
		zap.String("factory", ledger.FactoryAddress().Hex()),
	)

	idx.initCursor(ctx, cfg.IndexerStartBlock)

	ticker := time.NewTicker(cfg.IndexerPollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := idx.pollAndProcess(ctx); err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down chain indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// initCursor sets the starting block on first run. With no configured start
// block the indexer begins at the current head so that only new activity is
// processed; historical state is covered by the worker's full resync.
func (idx *indexer) initCursor(ctx context.Context, startBlock uint64) {
	existing, _ := idx.rdb.Get(ctx, redisCursorBlock).Result()
	if existing != "" {
		idx.log.Info("resuming from saved cursor", zap.String("block", existing))
		return
	}

	if startBlock == 0 {
		head, err := idx.client.Eth().BlockNumber(ctx)
		if err != nil {
			idx.log.Warn("failed to get head block for cursor init", zap.Error(err))
			head = 0
		}
		startBlock = head
	}

	idx.saveCursor(ctx, startBlock)
	idx.log.Info("cursor initialized", zap.Uint64("block", startBlock))
}

func (idx *indexer) loadCursor(ctx context.Context) uint64 {
	val, err := idx.rdb.Get(ctx, redisCursorBlock).Result()
	if err != nil || val == "" {
		return 0
	}
	block, _ := strconv.ParseUint(val, 10, 64)
	return block
}

func (idx *indexer) saveCursor(ctx context.Context, block uint64) {
	idx.rdb.Set(ctx, redisCursorBlock, strconv.FormatUint(block, 10), 0)
}

// pollAndProcess runs a single cycle: fetch logs from cursor+1 through the
// current head (capped per cycle), dispatch each, advance the cursor. The
// cursor only moves after a fully processed range, so a crash mid-range
// replays it; every handler is an idempotent projection resync.
func (idx *indexer) pollAndProcess(ctx context.Context) error {
	cursor := idx.loadCursor(ctx)

	head, err := idx.client.Eth().BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get head block: %w", err)
	}
	if head <= cursor {
		return nil
	}

	from := cursor + 1
	to := head
	if to-from > maxBlockRange {
		to = from + maxBlockRange
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    [][]common.Hash{idx.watchedTopics()},
	}

	logs, err := idx.client.Eth().FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("filter logs (%d..%d): %w", from, to, err)
	}

	if len(logs) > 0 {
		idx.log.Info("found new contract logs", zap.Int("count", len(logs)), zap.Uint64("from", from), zap.Uint64("to", to))
		for i := range logs {
			idx.processLog(ctx, &logs[i])
		}
	}

	idx.saveCursor(ctx, to)
	return nil
}

// watchedTopics collects the event IDs of every event the projection cares
// about. Escrow units are deployed per job, so the query matches on topic0
// alone and the handler sorts logs by emitting address.
func (idx *indexer) watchedTopics() []common.Hash {
	var ids []common.Hash
	for _, ev := range []string{"JobListingCreated", "ApplicationSubmitted", "ApplicationApproved"} {
		ids = append(ids, idx.ledger.BoardABI().Events[ev].ID)
	}
	ids = append(ids, idx.ledger.FactoryABI().Events["EscrowCreated"].ID)
	for _, ev := range []string{"CheckpointSubmitted", "CheckpointApproved", "CheckpointRejected", "FundsDeposited", "JobCancelled"} {
		ids = append(ids, idx.ledger.EscrowABI().Events[ev].ID)
	}
	return ids
}

func (idx *indexer) processLog(ctx context.Context, lg *types.Log) {
	if len(lg.Topics) == 0 {
		return
	}

	switch lg.Address {
	case idx.ledger.BoardAddress():
		idx.processBoardLog(ctx, lg)
	case idx.ledger.FactoryAddress():
		idx.processFactoryLog(ctx, lg)
	default:
		idx.processEscrowLog(ctx, lg)
	}
}

func (idx *indexer) processBoardLog(ctx context.Context, lg *types.Log) {
	boardABI := idx.ledger.BoardABI()
	topic := lg.Topics[0]

	switch topic {
	case boardABI.Events["JobListingCreated"].ID:
		jobID := lg.Topics[1].Big().Uint64()
		idx.resyncListing(ctx, jobID, events.EventListingCreated)
	case boardABI.Events["ApplicationSubmitted"].ID:
		jobID := lg.Topics[1].Big().Uint64()
		idx.resyncApplications(ctx, jobID)
		idx.audit(ctx, "application_submitted", "job", strconv.FormatUint(jobID, 10), map[string]any{
			"freelancer": strings.ToLower(common.BytesToAddress(lg.Topics[2].Bytes()).Hex()),
			"tx":         lg.TxHash.Hex(),
		})
		idx.publish(ctx, events.EventApplicationSubmitted, map[string]any{
			"job_id":     jobID,
			"freelancer": strings.ToLower(common.BytesToAddress(lg.Topics[2].Bytes()).Hex()),
		})
	case boardABI.Events["ApplicationApproved"].ID:
		jobID := lg.Topics[1].Big().Uint64()
		idx.resyncApplications(ctx, jobID)
		idx.resyncListing(ctx, jobID, "")
	}
}

func (idx *indexer) processFactoryLog(ctx context.Context, lg *types.Log) {
	if lg.Topics[0] != idx.ledger.FactoryABI().Events["EscrowCreated"].ID || len(lg.Topics) < 3 {
		return
	}

	jobID := lg.Topics[1].Big().Uint64()
	escrowAddr := strings.ToLower(common.BytesToAddress(lg.Topics[2].Bytes()).Hex())

	idx.resyncEscrow(ctx, escrowAddr)
	idx.resyncListing(ctx, jobID, "")
	idx.audit(ctx, "escrow_created", "escrow", escrowAddr, map[string]any{
		"job_id": jobID,
		"tx":     lg.TxHash.Hex(),
	})
}

// processEscrowLog handles logs from per-job escrow contracts. The emitting
// address is only trusted if the projection already knows it; anyone can
// deploy a contract that emits matching topics.
func (idx *indexer) processEscrowLog(ctx context.Context, lg *types.Log) {
	addr := strings.ToLower(lg.Address.Hex())
	unit, err := idx.escrowRepo.GetByAddress(ctx, addr)
	if err != nil {
		idx.log.Debug("log from unknown escrow address, skipping", zap.String("address", addr))
		return
	}

	escrowABI := idx.ledger.EscrowABI()
	topic := lg.Topics[0]

	var eventType string
	payload := map[string]any{"escrow_address": addr, "job_id": unit.JobID}

	switch topic {
	case escrowABI.Events["CheckpointSubmitted"].ID:
		eventType = events.EventCheckpointSubmitted
		payload["checkpoint_index"] = lg.Topics[1].Big().Int64()
	case escrowABI.Events["CheckpointApproved"].ID:
		eventType = events.EventCheckpointApproved
		payload["checkpoint_index"] = lg.Topics[1].Big().Int64()
	case escrowABI.Events["CheckpointRejected"].ID:
		eventType = events.EventCheckpointRejected
		payload["checkpoint_index"] = lg.Topics[1].Big().Int64()
	case escrowABI.Events["JobCancelled"].ID:
		eventType = events.EventJobCancelled
	case escrowABI.Events["FundsDeposited"].ID:
		eventType = events.EventEscrowFunded
	default:
		return
	}

	idx.resyncEscrow(ctx, addr)
	idx.audit(ctx, eventType, "escrow", addr, map[string]any{"tx": lg.TxHash.Hex()})
	idx.publish(ctx, eventType, payload)
}

// resyncListing refreshes one listing row from chain state. eventType is
// published only when non-empty so intermediate resyncs stay quiet.
func (idx *indexer) resyncListing(ctx context.Context, jobID uint64, eventType string) {
	listing, err := idx.ledger.GetJob(ctx, jobID)
	if err != nil {
		idx.log.Error("listing resync failed", zap.Uint64("job_id", jobID), zap.Error(err))
		return
	}
	if err := idx.listingRepo.Upsert(ctx, listing); err != nil {
		idx.log.Error("listing projection write failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}
	if eventType != "" {
		idx.publish(ctx, eventType, map[string]any{"job_id": jobID})
	}
}

func (idx *indexer) resyncApplications(ctx context.Context, jobID uint64) {
	apps, err := idx.ledger.GetApplications(ctx, jobID)
	if err != nil {
		idx.log.Error("application resync failed", zap.Uint64("job_id", jobID), zap.Error(err))
		return
	}
	for i := range apps {
		if err := idx.listingRepo.UpsertApplication(ctx, &apps[i]); err != nil {
			idx.log.Error("application projection write failed", zap.Uint64("job_id", jobID), zap.Error(err))
		}
	}
}

func (idx *indexer) resyncEscrow(ctx context.Context, escrowAddr string) {
	if _, _, err := idx.checkpoints.Status(ctx, escrowAddr); err != nil {
		idx.log.Error("escrow resync failed", zap.String("escrow", escrowAddr), zap.Error(err))
	}
}

func (idx *indexer) audit(ctx context.Context, action, entityType, entityRef string, meta map[string]any) {
	if err := idx.auditRepo.Log(ctx, models.AuditLog{
		ActorType:  models.ActorTypeIndexer,
		Action:     action,
		EntityType: entityType,
		EntityRef:  entityRef,
		Meta:       meta,
	}); err != nil {
		idx.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (idx *indexer) publish(ctx context.Context, eventType string, payload map[string]any) {
	if err := idx.publisher.Publish(ctx, events.StreamJobs, events.Event{Type: eventType, Payload: payload}); err != nil {
		idx.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
