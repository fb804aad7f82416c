package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadpulse/internal/settings"
)

// AdminAPIKeyAuth middleware validates the admin API key.
// Expects: Authorization: Bearer <api_key>
// configuredKey wins when set; otherwise the key stored in settings is used.
func AdminAPIKeyAuth(db *gorm.DB, logger *slog.Logger, configuredKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Missing Authorization header")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid Authorization header format. Expected: Bearer <api_key>")
		}

		providedKey := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if providedKey == "" {
			return unauthorized(c, "API key is empty")
		}

		storedKey := configuredKey
		if storedKey == "" {
			key, err := settings.GetAdminAPIKey(db)
			if err != nil || key == "" {
				logger.Warn("Admin API key not configured", slog.Any("error", err))
				return unauthorized(c, "Admin API key not configured. Run `lpctl api-key` to generate one.")
			}
			storedKey = key
		}

		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(storedKey)) != 1 {
			logger.Debug("Rejected admin request with invalid API key", slog.String("path", c.Path()))
			return unauthorized(c, "Invalid API key")
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
