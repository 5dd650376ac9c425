package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/http/dto"
	"github.com/chainlance/backend/internal/middleware"
	"github.com/chainlance/backend/internal/repositories"
	"github.com/chainlance/backend/internal/services"
)

type AuthHandler struct {
	authService *services.AuthService
	userRepo    *repositories.UserRepo
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, userRepo *repositories.UserRepo, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, userRepo: userRepo, log: log}
}

// Challenge issues a message for the wallet to sign.
func (h *AuthHandler) Challenge(c *fiber.Ctx) error {
	var req dto.AuthChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}

	message, err := h.authService.Challenge(c.Context(), req.Address)
	if err != nil {
		h.log.Error("challenge failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.AuthChallengeResponse{Message: message})
}

// Login trades a signed challenge for a JWT.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.AuthLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Address == "" || req.Signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address and signature are required"})
	}

	token, user, err := h.authService.Login(c.Context(), req.Address, req.Signature, req.DisplayName)
	if err != nil {
		h.log.Debug("login rejected", zap.String("address", req.Address), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "authentication failed"})
	}
	return c.JSON(dto.AuthResponse{Token: token, User: user})
}

// GetMe returns the authenticated user.
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.userRepo.GetByID(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "user not found"})
	}
	return c.JSON(user)
}
