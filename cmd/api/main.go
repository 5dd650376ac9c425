package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/chain"
	"github.com/chainlance/backend/internal/config"
	"github.com/chainlance/backend/internal/db"
	"github.com/chainlance/backend/internal/events"
	apphttp "github.com/chainlance/backend/internal/http"
	"github.com/chainlance/backend/internal/http/handlers"
	"github.com/chainlance/backend/internal/oracle"
	"github.com/chainlance/backend/internal/repositories"
	"github.com/chainlance/backend/internal/services"
	"github.com/chainlance/backend/internal/store"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Chain
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

	// IPFS
	content := store.NewIPFSStore(cfg.IPFSAPIURL, cfg.IPFSGatewayURL)

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	listingRepo := repositories.NewListingRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	sagaRepo := repositories.NewSagaRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	nonceRepo := repositories.NewNonceRepo(rdb, cfg.NonceTTL)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	authService := services.NewAuthService(nonceRepo, userRepo, cfg.JWTSecret, cfg.JWTExpiration, log)
	listingService := services.NewListingService(ledger, listingRepo, auditRepo, publisher, log)
	approvalService := services.NewApprovalService(ledger, rates, sagaRepo, listingRepo, escrowRepo, auditRepo, publisher, cfg.NativeSymbol, log)
	checkpointService := services.NewCheckpointService(ledger, escrowRepo, auditRepo, publisher, log)
	uploadService := services.NewUploadService(content, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, userRepo, log)
	listingHandler := handlers.NewListingHandler(listingService, approvalService, log)
	jobHandler := handlers.NewJobHandler(checkpointService, auditRepo, log)
	uploadHandler := handlers.NewUploadHandler(uploadService, checkpointService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, listingHandler, jobHandler, uploadHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
