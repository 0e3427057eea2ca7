package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/alteralabs/license-server/internal/database"
	"github.com/alteralabs/license-server/internal/models"
)

const (
	// defaultQuotaBytes is 500 MB in bytes.
	defaultQuotaBytes int64 = 524288000
	// maxUploadBytes is 1 GB in bytes — uploads larger than this are rejected immediately.
	maxUploadBytes int64 = 1073741824
)

// CloudBackupHandler stores customer backup files against their license.
// Files live at {storageDir}/{license_id}/{backup_id}.bak; requests are
// authenticated by the X-License-Key header.
type CloudBackupHandler struct {
	storageDir string
}

// NewCloudBackupHandler constructs a CloudBackupHandler rooted at storageDir.
func NewCloudBackupHandler(storageDir string) *CloudBackupHandler {
	if err := os.MkdirAll(storageDir, 0750); err != nil {
		log.Printf("CloudBackup: WARNING: could not create storage dir %s: %v", storageDir, err)
	}
	return &CloudBackupHandler{storageDir: storageDir}
}

// Upload handles POST /api/v1/cloud-backup/upload
//
// Expected headers:
//
//	X-License-Key  – customer license key
//	X-Filename     – original filename for the backup
//
// The raw request body is the backup file bytes.
func (h *CloudBackupHandler) Upload(c *fiber.Ctx) error {
	license, err := h.getLicenseByKey(c.Get("X-License-Key"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or missing license key",
		})
	}

	filename := filepath.Base(c.Get("X-Filename"))
	if filename == "" || filename == "." || filename == "/" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing or invalid X-Filename header",
		})
	}

	// Reject oversized uploads early using Content-Length before reading the body.
	if lengthStr := c.Get("Content-Length"); lengthStr != "" {
		if declared, convErr := strconv.ParseInt(lengthStr, 10, 64); convErr == nil && declared > maxUploadBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"success": false,
				"message": fmt.Sprintf("File too large. Maximum allowed size is %d MB", maxUploadBytes/1024/1024),
			})
		}
	}

	body := c.Request().Body()
	fileSize := int64(len(body))
	if fileSize == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Upload body is empty",
		})
	}
	if fileSize > maxUploadBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("File too large. Maximum allowed size is %d MB", maxUploadBytes/1024/1024),
		})
	}

	usage, err := h.getOrCreateUsage(license.ID)
	if err != nil {
		return internalError(c, "CloudBackup.Upload", err)
	}
	if usage.TotalUsedBytes+fileSize > usage.QuotaBytes {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Storage quota exceeded. %d MB used of %d MB",
				usage.TotalUsedBytes/1024/1024, usage.QuotaBytes/1024/1024),
		})
	}

	backupID, err := generateBackupID()
	if err != nil {
		return internalError(c, "CloudBackup.Upload", err)
	}

	licenseDir := filepath.Join(h.storageDir, fmt.Sprintf("%d", license.ID))
	if err := os.MkdirAll(licenseDir, 0750); err != nil {
		return internalError(c, "CloudBackup.Upload", err)
	}

	filePath := filepath.Join(licenseDir, backupID+".bak")
	if err := os.WriteFile(filePath, body, 0640); err != nil {
		return internalError(c, "CloudBackup.Upload", err)
	}

	backup := models.CloudBackup{
		LicenseID: license.ID,
		BackupID:  backupID,
		Filename:  filename,
		FilePath:  filePath,
		SizeBytes: fileSize,
		Status:    "active",
	}
	if err := database.DB.Create(&backup).Error; err != nil {
		// Clean up the file if the insert fails.
		_ = os.Remove(filePath)
		return internalError(c, "CloudBackup.Upload", err)
	}

	if err := database.DB.Model(&models.CloudStorageUsage{}).
		Where("license_id = ?", license.ID).
		Updates(map[string]interface{}{
			"total_used_bytes": gorm.Expr("total_used_bytes + ?", fileSize),
			"backup_count":     gorm.Expr("backup_count + 1"),
			"updated_at":       time.Now(),
		}).Error; err != nil {
		// Non-fatal: the backup was saved, counters can be resynced later.
		log.Printf("CloudBackup: Upload: failed to update usage for license %d: %v", license.ID, err)
	}

	log.Printf("CloudBackup: Upload: license %d uploaded %q (%d bytes), backup_id=%s",
		license.ID, filename, fileSize, backupID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"backup_id":  backupID,
		"filename":   filename,
		"size_bytes": fileSize,
	})
}

// List handles GET /api/v1/cloud-backup/list
func (h *CloudBackupHandler) List(c *fiber.Ctx) error {
	license, err := h.getLicenseByKey(c.Get("X-License-Key"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or missing license key",
		})
	}

	var backups []models.CloudBackup
	if err := database.DB.
		Where("license_id = ? AND status = 'active'", license.ID).
		Order("created_at DESC").
		Find(&backups).Error; err != nil {
		return internalError(c, "CloudBackup.List", err)
	}

	usage, err := h.getOrCreateUsage(license.ID)
	if err != nil {
		return internalError(c, "CloudBackup.List", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"backups": backups,
		"usage":   usageJSON(usage),
	})
}

// Download handles GET /api/v1/cloud-backup/download/:backup_id
func (h *CloudBackupHandler) Download(c *fiber.Ctx) error {
	license, err := h.getLicenseByKey(c.Get("X-License-Key"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or missing license key",
		})
	}

	backupID := c.Params("backup_id")
	var backup models.CloudBackup
	if err := database.DB.
		Where("backup_id = ? AND license_id = ? AND status = 'active'", backupID, license.ID).
		First(&backup).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Backup not found",
		})
	}

	if _, statErr := os.Stat(backup.FilePath); os.IsNotExist(statErr) {
		log.Printf("CloudBackup: Download: file missing on disk for backup_id=%s path=%s", backupID, backup.FilePath)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Backup file not found on storage",
		})
	}

	now := time.Now()
	if err := database.DB.Model(&backup).Updates(map[string]interface{}{
		"download_count":     gorm.Expr("download_count + 1"),
		"last_downloaded_at": now,
	}).Error; err != nil {
		// Non-fatal.
		log.Printf("CloudBackup: Download: failed to update download stats for backup_id=%s: %v", backupID, err)
	}

	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, backup.Filename))
	return c.SendFile(backup.FilePath)
}

// Delete handles DELETE /api/v1/cloud-backup/:backup_id
func (h *CloudBackupHandler) Delete(c *fiber.Ctx) error {
	license, err := h.getLicenseByKey(c.Get("X-License-Key"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or missing license key",
		})
	}

	backupID := c.Params("backup_id")
	var backup models.CloudBackup
	if err := database.DB.
		Where("backup_id = ? AND license_id = ? AND status = 'active'", backupID, license.ID).
		First(&backup).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Backup not found",
		})
	}

	// Remove from disk, then soft-delete so quota is freed even if the file
	// was already gone.
	if err := os.Remove(backup.FilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("CloudBackup: Delete: failed to remove file %s: %v", backup.FilePath, err)
	}

	if err := database.DB.Model(&backup).Update("status", "deleted").Error; err != nil {
		return internalError(c, "CloudBackup.Delete", err)
	}

	if err := database.DB.Model(&models.CloudStorageUsage{}).
		Where("license_id = ?", license.ID).
		Updates(map[string]interface{}{
			"total_used_bytes": gorm.Expr("GREATEST(total_used_bytes - ?, 0)", backup.SizeBytes),
			"backup_count":     gorm.Expr("GREATEST(backup_count - 1, 0)"),
			"updated_at":       time.Now(),
		}).Error; err != nil {
		// Non-fatal.
		log.Printf("CloudBackup: Delete: failed to update usage for license %d: %v", license.ID, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Backup deleted",
	})
}

// Usage handles GET /api/v1/cloud-backup/usage
func (h *CloudBackupHandler) Usage(c *fiber.Ctx) error {
	license, err := h.getLicenseByKey(c.Get("X-License-Key"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or missing license key",
		})
	}

	usage, err := h.getOrCreateUsage(license.ID)
	if err != nil {
		return internalError(c, "CloudBackup.Usage", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"usage":   usageJSON(usage),
	})
}

// AdminSetQuota handles PUT /api/v1/admin/licenses/:key/quota
func (h *CloudBackupHandler) AdminSetQuota(c *fiber.Ctx) error {
	key := c.Params("key")

	var lic models.License
	if err := database.DB.Where("key = ?", key).First(&lic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "License not found",
			})
		}
		return internalError(c, "CloudBackup.AdminSetQuota", err)
	}

	var req struct {
		QuotaBytes int64 `json:"quota_bytes"`
	}
	if err := c.BodyParser(&req); err != nil || req.QuotaBytes <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "quota_bytes must be a positive integer",
		})
	}

	if _, err := h.getOrCreateUsage(lic.ID); err != nil {
		return internalError(c, "CloudBackup.AdminSetQuota", err)
	}
	if err := database.DB.Model(&models.CloudStorageUsage{}).
		Where("license_id = ?", lic.ID).
		Update("quota_bytes", req.QuotaBytes).Error; err != nil {
		return internalError(c, "CloudBackup.AdminSetQuota", err)
	}

	return c.JSON(fiber.Map{"ok": true})
}

func (h *CloudBackupHandler) getLicenseByKey(key string) (*models.License, error) {
	if key == "" {
		return nil, errors.New("missing license key")
	}
	var lic models.License
	if err := database.DB.Where("key = ?", key).First(&lic).Error; err != nil {
		return nil, err
	}
	return &lic, nil
}

func (h *CloudBackupHandler) getOrCreateUsage(licenseID uint) (*models.CloudStorageUsage, error) {
	var usage models.CloudStorageUsage
	err := database.DB.Where("license_id = ?", licenseID).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		usage = models.CloudStorageUsage{
			LicenseID:  licenseID,
			QuotaBytes: defaultQuotaBytes,
		}
		err = database.DB.Create(&usage).Error
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func usageJSON(usage *models.CloudStorageUsage) fiber.Map {
	usedPercent := float64(0)
	if usage.QuotaBytes > 0 {
		usedPercent = float64(usage.TotalUsedBytes) / float64(usage.QuotaBytes) * 100
	}
	return fiber.Map{
		"used_bytes":   usage.TotalUsedBytes,
		"quota_bytes":  usage.QuotaBytes,
		"backup_count": usage.BackupCount,
		"used_percent": usedPercent,
	}
}

func generateBackupID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
