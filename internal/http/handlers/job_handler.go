package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/escrow"
	"github.com/chainlance/backend/internal/http/dto"
	"github.com/chainlance/backend/internal/middleware"
	"github.com/chainlance/backend/internal/models"
	"github.com/chainlance/backend/internal/repositories"
	"github.com/chainlance/backend/internal/services"
)

// JobHandler serves the checkpoint workflow on funded escrow units.
type JobHandler struct {
	checkpoints *services.CheckpointService
	auditRepo   *repositories.AuditRepo
	log         *zap.Logger
}

func NewJobHandler(checkpoints *services.CheckpointService, auditRepo *repositories.AuditRepo, log *zap.Logger) *JobHandler {
	return &JobHandler{checkpoints: checkpoints, auditRepo: auditRepo, log: log}
}

// workflowStatus maps engine guard violations to conflict-style responses and
// collaborator failures to 502.
func workflowStatus(err error) int {
	switch {
	case errors.Is(err, escrow.ErrUnauthorized):
		return fiber.StatusForbidden
	case escrow.IsInvalidState(err):
		return fiber.StatusConflict
	}
	var collab *services.CollaboratorError
	if errors.As(err, &collab) {
		return fiber.StatusBadGateway
	}
	return fiber.StatusBadRequest
}

func parseCheckpointIndex(c *fiber.Ctx) (int, error) {
	return strconv.Atoi(c.Params("index"))
}

func (h *JobHandler) MyJobs(c *fiber.Ctx) error {
	units, err := h.checkpoints.ListByParty(c.Context(), middleware.GetAddress(c))
	if err != nil {
		h.log.Error("list jobs failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(units)
}

func (h *JobHandler) Status(c *fiber.Ctx) error {
	unit, checkpoints, err := h.checkpoints.Status(c.Context(), c.Params("address"))
	if err != nil {
		h.log.Error("escrow status failed", zap.String("escrow", c.Params("address")), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "escrow unavailable"})
	}
	return c.JSON(dto.EscrowStatusResponse{Unit: unit, Checkpoints: checkpoints})
}

func (h *JobHandler) SubmitCheckpoint(c *fiber.Ctx) error {
	index, err := parseCheckpointIndex(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid checkpoint index"})
	}
	var req dto.SubmitCheckpointRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	ref := models.DeliverableRef{OriginalCID: req.OriginalCID, PreviewCID: req.PreviewCID}
	if ref.PreviewCID == "" {
		ref.PreviewCID = ref.OriginalCID
	}

	txHash, err := h.checkpoints.Submit(c.Context(), c.Params("address"), index, ref, middleware.GetAddress(c))
	if err != nil {
		return c.Status(workflowStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.TxResponse{TxHash: txHash})
}

func (h *JobHandler) ApproveCheckpoint(c *fiber.Ctx) error {
	index, err := parseCheckpointIndex(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid checkpoint index"})
	}

	txHash, err := h.checkpoints.Approve(c.Context(), c.Params("address"), index, middleware.GetAddress(c))
	if err != nil {
		return c.Status(workflowStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.TxResponse{TxHash: txHash})
}

func (h *JobHandler) RejectCheckpoint(c *fiber.Ctx) error {
	index, err := parseCheckpointIndex(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid checkpoint index"})
	}

	txHash, err := h.checkpoints.Reject(c.Context(), c.Params("address"), index, middleware.GetAddress(c))
	if err != nil {
		return c.Status(workflowStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.TxResponse{TxHash: txHash})
}

func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	txHash, err := h.checkpoints.Cancel(c.Context(), c.Params("address"), middleware.GetAddress(c))
	if err != nil {
		return c.Status(workflowStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.TxResponse{TxHash: txHash})
}

func (h *JobHandler) GetAuditLog(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	logs, err := h.auditRepo.GetByEntity(c.Context(), "escrow", c.Params("address"), limit, offset)
	if err != nil {
		h.log.Error("audit fetch failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(logs)
}
