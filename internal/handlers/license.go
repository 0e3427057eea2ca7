package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/alteralabs/license-server/internal/entitlement"
)

// LicenseHandler exposes the public activation endpoints
type LicenseHandler struct {
	svc *entitlement.Service
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(svc *entitlement.Service) *LicenseHandler {
	return &LicenseHandler{svc: svc}
}

// ActivateRequest represents the activate/deactivate request body
type ActivateRequest struct {
	LicenseKey string `json:"license_key"`
	MachineID  string `json:"machine_id"`
	Username   string `json:"username"`
}

// ValidateRequest represents the validate request body
type ValidateRequest struct {
	Token     string `json:"token"`
	MachineID string `json:"machine_id"`
}

// Activate handles POST /api/v1/license/activate
func (h *LicenseHandler) Activate(c *fiber.Ctx) error {
	var req ActivateRequest
	if err := c.BodyParser(&req); err != nil || req.LicenseKey == "" || req.MachineID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "license_key and machine_id are required",
		})
	}

	result, err := h.svc.Activate(c.Context(), req.LicenseKey, req.MachineID, req.Username)
	if err != nil {
		return rejectionResponse(c, err)
	}

	return c.JSON(result)
}

// Validate handles POST /api/v1/license/validate. Entitlement failures are
// reported in the body with valid=false, never as an HTTP error.
func (h *LicenseHandler) Validate(c *fiber.Ctx) error {
	var req ValidateRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" || req.MachineID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "token and machine_id are required",
		})
	}

	result, err := h.svc.Validate(c.Context(), req.Token, req.MachineID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Validation temporarily unavailable",
		})
	}

	return c.JSON(result)
}

// Deactivate handles POST /api/v1/license/deactivate
func (h *LicenseHandler) Deactivate(c *fiber.Ctx) error {
	var req ActivateRequest
	if err := c.BodyParser(&req); err != nil || req.LicenseKey == "" || req.MachineID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "license_key and machine_id are required",
		})
	}

	if err := h.svc.Deactivate(c.Context(), req.LicenseKey, req.MachineID); err != nil {
		return rejectionResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"message": "Deactivated successfully",
	})
}

// rejectionResponse maps entitlement rejections to their status codes.
// Storage faults become a generic 500 so callers can tell them apart from
// business-rule failures and retry.
func rejectionResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, entitlement.ErrMachineBanned):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Machine is banned",
		})
	case errors.Is(err, entitlement.ErrLicenseNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "License not found",
		})
	case errors.Is(err, entitlement.ErrLicenseExpired):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "License has expired",
		})
	case errors.Is(err, entitlement.ErrSeatLimitReached):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Seat limit reached",
		})
	case errors.Is(err, entitlement.ErrActivationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Active activation not found",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
		})
	}
}
