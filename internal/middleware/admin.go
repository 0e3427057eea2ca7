package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/alteralabs/license-server/internal/config"
)

// AdminRequired guards the admin surface. The credential arrives in the
// X-Admin-Key header and is compared against injected configuration: a bcrypt
// hash when ADMIN_SECRET_HASH is set, constant-time equality otherwise.
func AdminRequired(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Admin-Key")
		if key == "" || !adminKeyValid(cfg, key) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Forbidden",
			})
		}
		return c.Next()
	}
}

func adminKeyValid(cfg *config.Config, key string) bool {
	if cfg.AdminSecretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.AdminSecretHash), []byte(key)) == nil
	}
	if cfg.AdminSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cfg.AdminSecret), []byte(key)) == 1
}

// AdminTOTP additionally requires a one-time code in X-Admin-OTP on
// destructive routes. A no-op unless ADMIN_TOTP_SECRET is configured.
func AdminTOTP(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.AdminTOTPSecret == "" {
			return c.Next()
		}
		code := c.Get("X-Admin-OTP")
		if code == "" || !totp.Validate(code, cfg.AdminTOTPSecret) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Invalid or missing one-time code",
			})
		}
		return c.Next()
	}
}
