package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/alteralabs/license-server/internal/database"
	"github.com/alteralabs/license-server/internal/models"
)

// AdminHandler implements the administrative CRUD surface: license
// management, activation listings and the machine ban list. It is a thin
// wrapper over the store; all entitlement decisions live in the core.
type AdminHandler struct{}

// NewAdminHandler creates a new admin handler
func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

// CreateLicenseRequest represents the create-license request body
type CreateLicenseRequest struct {
	Key      string `json:"key"`
	Email    string `json:"email"`
	Plan     string `json:"plan"`
	Expiry   string `json:"expiry"`
	MaxSeats *int   `json:"max_seats"`
}

// UpdateLicenseRequest represents the update-license request body.
// Nil fields are left unchanged. The key itself is immutable.
type UpdateLicenseRequest struct {
	Email    *string `json:"email"`
	Plan     *string `json:"plan"`
	Expiry   *string `json:"expiry"`
	MaxSeats *int    `json:"max_seats"`
}

// BanRequest represents the ban-machine request body
type BanRequest struct {
	MachineID string `json:"machine_id"`
	Reason    string `json:"reason"`
}

// CreateLicense handles POST /api/v1/admin/licenses
func (h *AdminHandler) CreateLicense(c *fiber.Ctx) error {
	var req CreateLicenseRequest
	if err := c.BodyParser(&req); err != nil || req.Key == "" || req.Email == "" || req.Plan == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "key, email, plan and expiry are required",
		})
	}

	expiry, err := time.Parse("2006-01-02", req.Expiry)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "expiry must be formatted as YYYY-MM-DD",
		})
	}

	maxSeats := 1
	if req.MaxSeats != nil {
		maxSeats = *req.MaxSeats
	}
	if maxSeats < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "max_seats must not be negative",
		})
	}

	var existing models.License
	if err := database.DB.Where("key = ?", req.Key).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "A license with this key already exists",
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "CreateLicense", err)
	}

	lic := models.License{
		Key:      req.Key,
		Email:    req.Email,
		Plan:     req.Plan,
		Expiry:   expiry,
		MaxSeats: maxSeats,
	}
	if err := database.DB.Create(&lic).Error; err != nil {
		return internalError(c, "CreateLicense", err)
	}

	database.InvalidateOverviewCache()

	return c.JSON(fiber.Map{"ok": true})
}

// ListLicenses handles GET /api/v1/admin/licenses
func (h *AdminHandler) ListLicenses(c *fiber.Ctx) error {
	var licenses []models.License
	if err := database.DB.Order("id").Find(&licenses).Error; err != nil {
		return internalError(c, "ListLicenses", err)
	}

	out := make([]fiber.Map, 0, len(licenses))
	for _, lic := range licenses {
		out = append(out, licenseJSON(&lic))
	}

	return c.JSON(fiber.Map{
		"count":    len(licenses),
		"licenses": out,
	})
}

// UpdateLicense handles PATCH /api/v1/admin/licenses/:key
//
// Shrinking max_seats below the current live seat count is allowed and is
// not retroactively enforced: existing seats stay valid until individually
// deactivated.
func (h *AdminHandler) UpdateLicense(c *fiber.Ctx) error {
	key := c.Params("key")

	var lic models.License
	if err := database.DB.Where("key = ?", key).First(&lic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "License not found",
			})
		}
		return internalError(c, "UpdateLicense", err)
	}

	var req UpdateLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Email != nil {
		lic.Email = *req.Email
	}
	if req.Plan != nil {
		lic.Plan = *req.Plan
	}
	if req.Expiry != nil {
		expiry, err := time.Parse("2006-01-02", *req.Expiry)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "expiry must be formatted as YYYY-MM-DD",
			})
		}
		lic.Expiry = expiry
	}
	if req.MaxSeats != nil {
		if *req.MaxSeats < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "max_seats must not be negative",
			})
		}
		lic.MaxSeats = *req.MaxSeats
	}

	if err := database.DB.Save(&lic).Error; err != nil {
		return internalError(c, "UpdateLicense", err)
	}

	database.InvalidateOverviewCache()

	return c.JSON(fiber.Map{
		"ok":      true,
		"updated": licenseJSON(&lic),
	})
}

// DeleteLicense handles DELETE /api/v1/admin/licenses/:key and cascades the
// delete to every activation row of the license.
func (h *AdminHandler) DeleteLicense(c *fiber.Ctx) error {
	key := c.Params("key")

	var lic models.License
	if err := database.DB.Where("key = ?", key).First(&lic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "License not found",
			})
		}
		return internalError(c, "DeleteLicense", err)
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("license_key = ?", key).Delete(&models.Activation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&lic).Error
	})
	if err != nil {
		return internalError(c, "DeleteLicense", err)
	}

	database.InvalidateOverviewCache()

	return c.JSON(fiber.Map{
		"ok":      true,
		"message": fmt.Sprintf("License %s and all its activations deleted", key),
	})
}

// ListActivations handles GET /api/v1/admin/activations
func (h *AdminHandler) ListActivations(c *fiber.Ctx) error {
	var activations []models.Activation
	if err := database.DB.Order("id").Find(&activations).Error; err != nil {
		return internalError(c, "ListActivations", err)
	}

	out := make([]fiber.Map, 0, len(activations))
	for _, act := range activations {
		out = append(out, fiber.Map{
			"id":           act.ID,
			"license_key":  act.LicenseKey,
			"machine_id":   act.MachineID,
			"username":     act.Username,
			"activated_at": act.ActivatedAt.Format("2006-01-02"),
			"revoked":      act.Revoked,
		})
	}

	return c.JSON(fiber.Map{
		"count":       len(activations),
		"activations": out,
	})
}

// Overview handles GET /api/v1/admin/overview: every license joined with its
// activations and seat usage. Cached briefly; the dashboard polls this.
func (h *AdminHandler) Overview(c *fiber.Ctx) error {
	var cached fiber.Map
	if err := database.CacheGet(database.CacheKeyOverview, &cached); err == nil {
		return c.JSON(cached)
	}

	var licenses []models.License
	if err := database.DB.Order("id").Find(&licenses).Error; err != nil {
		return internalError(c, "Overview", err)
	}
	var activations []models.Activation
	if err := database.DB.Order("id").Find(&activations).Error; err != nil {
		return internalError(c, "Overview", err)
	}

	byKey := make(map[string][]models.Activation)
	for _, act := range activations {
		byKey[act.LicenseKey] = append(byKey[act.LicenseKey], act)
	}

	result := make([]fiber.Map, 0, len(licenses))
	for _, lic := range licenses {
		licActs := byKey[lic.Key]
		live := 0
		actsOut := make([]fiber.Map, 0, len(licActs))
		for _, act := range licActs {
			if !act.Revoked {
				live++
			}
			actsOut = append(actsOut, fiber.Map{
				"machine_id":   act.MachineID,
				"username":     act.Username,
				"activated_at": act.ActivatedAt.Format("2006-01-02"),
				"revoked":      act.Revoked,
			})
		}
		result = append(result, fiber.Map{
			"key":             lic.Key,
			"email":           lic.Email,
			"plan":            lic.Plan,
			"expiry":          lic.ExpiryDate(),
			"max_seats":       lic.MaxSeats,
			"seats_used":      live,
			"seats_available": lic.MaxSeats - live,
			"activations":     actsOut,
		})
	}

	body := fiber.Map{
		"total_licenses":    len(licenses),
		"total_activations": len(activations),
		"licenses":          result,
	}

	database.CacheSet(database.CacheKeyOverview, body, database.CacheTTLOverview)

	return c.JSON(body)
}

// BanMachine handles POST /api/v1/admin/bans
func (h *AdminHandler) BanMachine(c *fiber.Ctx) error {
	var req BanRequest
	if err := c.BodyParser(&req); err != nil || req.MachineID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "machine_id is required",
		})
	}

	var existing models.BannedMachine
	if err := database.DB.Where("machine_id = ?", req.MachineID).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Machine is already banned",
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "BanMachine", err)
	}

	ban := models.BannedMachine{
		MachineID: req.MachineID,
		Reason:    req.Reason,
	}
	if err := database.DB.Create(&ban).Error; err != nil {
		return internalError(c, "BanMachine", err)
	}

	database.InvalidateBanCache(req.MachineID)

	return c.JSON(fiber.Map{"ok": true})
}

// UnbanMachine handles DELETE /api/v1/admin/bans/:machine_id
func (h *AdminHandler) UnbanMachine(c *fiber.Ctx) error {
	machineID := c.Params("machine_id")

	res := database.DB.Where("machine_id = ?", machineID).Delete(&models.BannedMachine{})
	if res.Error != nil {
		return internalError(c, "UnbanMachine", res.Error)
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Machine is not banned",
		})
	}

	database.InvalidateBanCache(machineID)

	return c.JSON(fiber.Map{"ok": true})
}

// ListBans handles GET /api/v1/admin/bans
func (h *AdminHandler) ListBans(c *fiber.Ctx) error {
	var bans []models.BannedMachine
	if err := database.DB.Order("id").Find(&bans).Error; err != nil {
		return internalError(c, "ListBans", err)
	}

	return c.JSON(fiber.Map{
		"count": len(bans),
		"bans":  bans,
	})
}

func licenseJSON(lic *models.License) fiber.Map {
	return fiber.Map{
		"id":        lic.ID,
		"key":       lic.Key,
		"email":     lic.Email,
		"plan":      lic.Plan,
		"expiry":    lic.ExpiryDate(),
		"max_seats": lic.MaxSeats,
	}
}

func internalError(c *fiber.Ctx, op string, err error) error {
	// Kept terse on the wire; the detail goes to the log only.
	logStorageError(op, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Internal server error",
	})
}
