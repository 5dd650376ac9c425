package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/chain"
	"github.com/chainlance/backend/internal/config"
	"github.com/chainlance/backend/internal/db"
	"github.com/chainlance/backend/internal/events"
	"github.com/chainlance/backend/internal/oracle"
	"github.com/chainlance/backend/internal/repositories"
	"github.com/chainlance/backend/internal/services"
)

// The worker owns the background jobs that must keep running regardless of
// API traffic: resuming half-finished approval sagas and refreshing the
// listing projection from chain state.
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

	ftso, err := chain.NewFTSOSource(client, cfg.PriceOracleAddress)
	if err != nil {
		log.Fatal("failed to bind price oracle", zap.Error(err))
	}
	rates := oracle.NewNormalizer(ftso)

	// Repos
	listingRepo := repositories.NewListingRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	sagaRepo := repositories.NewSagaRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	listingService := services.NewListingService(ledger, listingRepo, auditRepo, publisher, log)
	approvalService := services.NewApprovalService(ledger, rates, sagaRepo, listingRepo, escrowRepo, auditRepo, publisher, cfg.NativeSymbol, log)

	// Liveness endpoint for the orchestrator
	health := fiber.New(fiber.Config{DisableStartupMessage: true})
	health.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	go func() {
		if err := health.Listen(fmt.Sprintf(":%s", cfg.WorkerPort)); err != nil {
			log.Error("health server error", zap.Error(err))
		}
	}()

	log.Info("worker started",
		zap.Duration("saga_resume_interval", cfg.SagaResumeInterval),
		zap.Duration("projection_sync_interval", cfg.ProjectionSyncInterval),
	)

	sagaTicker := time.NewTicker(cfg.SagaResumeInterval)
	syncTicker := time.NewTicker(cfg.ProjectionSyncInterval)
	defer sagaTicker.Stop()
	defer syncTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sagaTicker.C:
			approvalService.ResumeIncomplete(ctx)
		case <-syncTicker.C:
			if err := listingService.SyncAll(ctx); err != nil {
				log.Error("projection sync failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			_ = health.Shutdown()
			return
		case <-ctx.Done():
			_ = health.Shutdown()
			return
		}
	}
}
