package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alteralabs/license-server/internal/config"
	"github.com/alteralabs/license-server/internal/middleware"
)

func adminApp(cfg *config.Config, extra ...fiber.Handler) *fiber.App {
	app := fiber.New()
	chain := []fiber.Handler{middleware.AdminRequired(cfg)}
	chain = append(chain, extra...)
	chain = append(chain, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Get("/admin", chain...)
	return app
}

func get(t *testing.T, app *fiber.App, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAdminRequiredPlainSecret(t *testing.T) {
	app := adminApp(&config.Config{AdminSecret: "hunter2"})

	resp := get(t, app, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = get(t, app, map[string]string{"X-Admin-Key": "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = get(t, app, map[string]string{"X-Admin-Key": "hunter2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRequiredNoSecretLocksOut(t *testing.T) {
	app := adminApp(&config.Config{})

	resp := get(t, app, map[string]string{"X-Admin-Key": ""})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminRequiredBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	app := adminApp(&config.Config{AdminSecretHash: string(hash)})

	resp := get(t, app, map[string]string{"X-Admin-Key": "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = get(t, app, map[string]string{"X-Admin-Key": "hunter2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminTOTP(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	cfg := &config.Config{AdminSecret: "hunter2", AdminTOTPSecret: secret}
	app := adminApp(cfg, middleware.AdminTOTP(cfg))

	resp := get(t, app, map[string]string{"X-Admin-Key": "hunter2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "missing one-time code")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp = get(t, app, map[string]string{"X-Admin-Key": "hunter2", "X-Admin-OTP": code})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminTOTPDisabledWhenUnset(t *testing.T) {
	cfg := &config.Config{AdminSecret: "hunter2"}
	app := adminApp(cfg, middleware.AdminTOTP(cfg))

	resp := get(t, app, map[string]string{"X-Admin-Key": "hunter2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
