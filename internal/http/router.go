package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/config"
	"github.com/chainlance/backend/internal/http/handlers"
	"github.com/chainlance/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	listingHandler *handlers.ListingHandler,
	jobHandler *handlers.JobHandler,
	uploadHandler *handlers.UploadHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/challenge", authHandler.Challenge)
	api.Post("/auth/login", authHandler.Login)

	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	// Public browse
	api.Get("/jobs", listingHandler.List)
	api.Get("/jobs/:jobId", listingHandler.Get)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	protected.Get("/me", authHandler.GetMe)
	protected.Get("/me/jobs", listingHandler.MyListings)
	protected.Get("/me/escrows", jobHandler.MyJobs)

	// Listings
	protected.Post("/jobs", listingHandler.Create)
	protected.Post("/jobs/:jobId/deactivate", listingHandler.Deactivate)
	protected.Post("/jobs/:jobId/applications", listingHandler.Apply)
	protected.Get("/jobs/:jobId/applications", listingHandler.GetApplications)
	protected.Post("/jobs/:jobId/approve", listingHandler.ApproveApplication)

	// Deliverables
	protected.Post("/uploads", uploadHandler.Upload)

	// Escrow units
	protected.Get("/escrows/:address", jobHandler.Status)
	protected.Post("/escrows/:address/checkpoints/:index/submit", jobHandler.SubmitCheckpoint)
	protected.Post("/escrows/:address/checkpoints/:index/approve", jobHandler.ApproveCheckpoint)
	protected.Post("/escrows/:address/checkpoints/:index/reject", jobHandler.RejectCheckpoint)
	protected.Get("/escrows/:address/checkpoints/:index/preview", uploadHandler.Preview)
	protected.Get("/escrows/:address/checkpoints/:index/original", uploadHandler.Original)
	protected.Post("/escrows/:address/cancel", jobHandler.CancelJob)
	protected.Get("/escrows/:address/audit", jobHandler.GetAuditLog)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
