package handlers

import (
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/http/dto"
	"github.com/chainlance/backend/internal/middleware"
	"github.com/chainlance/backend/internal/services"
)

type UploadHandler struct {
	uploads     *services.UploadService
	checkpoints *services.CheckpointService
	log         *zap.Logger
}

func NewUploadHandler(uploads *services.UploadService, checkpoints *services.CheckpointService, log *zap.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, checkpoints: checkpoints, log: log}
}

// Upload pins a deliverable and returns the original/preview pair to submit
// with a checkpoint.
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "file field is required"})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unreadable upload"})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unreadable upload"})
	}

	ref, err := h.uploads.UploadDeliverable(fileHeader.Filename, data)
	if err != nil {
		h.log.Error("upload failed", zap.String("filename", fileHeader.Filename), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "storage unavailable"})
	}

	previewURL, _ := h.uploads.PreviewURL(ref.Encode())
	return c.Status(fiber.StatusCreated).JSON(dto.UploadResponse{
		OriginalCID:    ref.OriginalCID,
		PreviewCID:     ref.PreviewCID,
		DeliverableRef: ref.Encode(),
		PreviewURL:     previewURL,
	})
}

// Preview redirects to the public gateway URL of the watermarked preview.
// Anyone party to the link can view it; the original stays gated.
func (h *UploadHandler) Preview(c *fiber.Ctx) error {
	_, checkpoints, err := h.checkpoints.Status(c.Context(), c.Params("address"))
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "escrow unavailable"})
	}

	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 0 || index >= len(checkpoints) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid checkpoint index"})
	}
	if checkpoints[index].DeliverableRef == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no deliverable submitted"})
	}

	url, err := h.uploads.PreviewURL(checkpoints[index].DeliverableRef)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "bad deliverable reference"})
	}
	return c.Redirect(url, fiber.StatusTemporaryRedirect)
}

// Original streams the unwatermarked deliverable. Only the unit's parties may
// fetch it.
func (h *UploadHandler) Original(c *fiber.Ctx) error {
	unit, checkpoints, err := h.checkpoints.Status(c.Context(), c.Params("address"))
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "escrow unavailable"})
	}

	caller := middleware.GetAddress(c)
	if !strings.EqualFold(unit.ClientAddress, caller) && !strings.EqualFold(unit.FreelancerAddress, caller) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a party to this job"})
	}

	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 0 || index >= len(checkpoints) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid checkpoint index"})
	}
	if checkpoints[index].DeliverableRef == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no deliverable submitted"})
	}

	data, err := h.uploads.FetchOriginal(checkpoints[index].DeliverableRef)
	if err != nil {
		h.log.Error("original fetch failed", zap.String("escrow", c.Params("address")), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "storage unavailable"})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(data)
}
