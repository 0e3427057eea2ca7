package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/alteralabs/license-server/internal/database"
	"github.com/alteralabs/license-server/internal/models"
)

// AuditLogger records successful admin mutations to the audit log.
func AuditLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip non-modifying requests
		method := c.Method()
		if method == "GET" || method == "HEAD" || method == "OPTIONS" {
			return c.Next()
		}

		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		// Execute the request
		err := c.Next()

		// Only log successful responses
		statusCode := c.Response().StatusCode()
		if statusCode >= 200 && statusCode < 400 {
			logAuditEntry(method, path, ip, userAgent)
		}

		return err
	}
}

func logAuditEntry(method, path, ip, userAgent string) {
	var action models.AuditAction
	switch method {
	case "POST":
		action = models.AuditActionCreate
	case "PUT", "PATCH":
		action = models.AuditActionUpdate
	case "DELETE":
		action = models.AuditActionDelete
	default:
		return
	}

	entityType, entityKey := parseAdminPath(path)
	if entityType == "ban" {
		if method == "POST" {
			action = models.AuditActionBan
		} else if method == "DELETE" {
			action = models.AuditActionUnban
		}
	}

	entry := models.AuditLog{
		Action:      action,
		EntityType:  entityType,
		EntityKey:   entityKey,
		Description: method + " " + path,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}

	if err := database.DB.Create(&entry).Error; err != nil {
		log.Printf("Audit: failed to record %s %s: %v", method, path, err)
	}
}

// parseAdminPath maps /api/v1/admin/licenses/KEY-123 to ("license", "KEY-123")
func parseAdminPath(path string) (string, string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		var entityType string
		switch part {
		case "licenses":
			entityType = "license"
		case "bans":
			entityType = "ban"
		case "cloud-backups":
			entityType = "backup"
		default:
			continue
		}
		if i+1 < len(parts) {
			return entityType, parts[i+1]
		}
		return entityType, ""
	}
	return "", ""
}
