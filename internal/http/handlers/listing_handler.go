package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/http/dto"
	"github.com/chainlance/backend/internal/middleware"
	"github.com/chainlance/backend/internal/services"
)

type ListingHandler struct {
	listings *services.ListingService
	approval *services.ApprovalService
	log      *zap.Logger
}

func NewListingHandler(listings *services.ListingService, approval *services.ApprovalService, log *zap.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, approval: approval, log: log}
}

func parseJobID(c *fiber.Ctx) (uint64, error) {
	return strconv.ParseUint(c.Params("jobId"), 10, 64)
}

func (h *ListingHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "deadline must be RFC3339"})
	}
	minPrice, err := dto.ParseUSD(req.MinPriceUSD)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	maxPrice, err := dto.ParseUSD(req.MaxPriceUSD)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	listing, err := h.listings.CreateListing(c.Context(), services.CreateListingParams{
		Client:      middleware.GetAddress(c),
		Title:       req.Title,
		Description: req.Description,
		JobType:     req.JobType,
		Deadline:    deadline,
		MinPriceUSD: minPrice,
		MaxPriceUSD: maxPrice,
		Asset:       req.Asset,
		MetadataURI: req.MetadataURI,
	})
	if err != nil {
		var collab *services.CollaboratorError
		if errors.As(err, &collab) {
			h.log.Error("create listing failed", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "chain transaction failed"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(listing)
}

func (h *ListingHandler) List(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active", true)
	jobType := c.Query("type")
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	listings, err := h.listings.ListListings(c.Context(), activeOnly, jobType, limit, offset)
	if err != nil {
		h.log.Error("list listings failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(listings)
}

func (h *ListingHandler) MyListings(c *fiber.Ctx) error {
	listings, err := h.listings.ListByClient(c.Context(), middleware.GetAddress(c))
	if err != nil {
		h.log.Error("my listings failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(listings)
}

func (h *ListingHandler) Get(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}

	listing, err := h.listings.GetListing(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "job not found"})
		}
		h.log.Error("get listing failed", zap.Uint64("job_id", jobID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	apps, err := h.listings.GetApplications(c.Context(), jobID)
	if err != nil {
		h.log.Warn("get applications failed", zap.Uint64("job_id", jobID), zap.Error(err))
	}
	return c.JSON(dto.ListingResponse{Listing: listing, Applications: apps})
}

func (h *ListingHandler) Deactivate(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}

	if err := h.listings.Deactivate(c.Context(), jobID, middleware.GetAddress(c)); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "job not found"})
		}
		var collab *services.CollaboratorError
		if errors.As(err, &collab) {
			h.log.Error("deactivate failed", zap.Uint64("job_id", jobID), zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "chain transaction failed"})
		}
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"status": "deactivated"})
}

func (h *ListingHandler) Apply(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}

	var req dto.ApplyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	price, err := dto.ParseUSD(req.ProposedPriceUSD)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	app, err := h.listings.Apply(c.Context(), jobID, services.ApplyParams{
		Freelancer:             middleware.GetAddress(c),
		ProposedPriceUSD:       price,
		CancellationWindowDays: req.CancellationWindowDays,
		EstimatedDelivery:      req.EstimatedDelivery,
		PortfolioLink:          req.PortfolioLink,
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "job not found"})
		}
		var collab *services.CollaboratorError
		if errors.As(err, &collab) {
			h.log.Error("apply failed", zap.Uint64("job_id", jobID), zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "chain transaction failed"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(app)
}

func (h *ListingHandler) GetApplications(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}
	apps, err := h.listings.GetApplications(c.Context(), jobID)
	if err != nil {
		h.log.Error("get applications failed", zap.Uint64("job_id", jobID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(apps)
}

// ApproveApplication kicks off the activation saga. It is synchronous: the
// response carries the funded escrow unit or the step that failed.
func (h *ListingHandler) ApproveApplication(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}

	var req dto.ApproveApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	unit, err := h.approval.Approve(c.Context(), jobID, req.ApplicationIndex, middleware.GetAddress(c))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "application not found"})
		}
		var stepErr *services.StepError
		if errors.As(err, &stepErr) {
			h.log.Error("approval saga failed", zap.Uint64("job_id", jobID), zap.Error(err))
			// The saga record survives; the worker retries from this step.
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: stepErr.Error()})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(unit)
}
