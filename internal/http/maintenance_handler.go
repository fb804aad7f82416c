package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/sessions"
)

// ReconcileAction re-derives the session bounce and conversion flags.
func ReconcileAction(ctx *cartridge.Context) error {
	updated, err := sessions.ReconcileFlags(ctx.DB(), ctx.Logger)
	if err != nil {
		return internalError(ctx, "Failed to reconcile sessions", err)
	}
	return ctx.JSON(fiber.Map{"success": true, "updated": updated})
}
