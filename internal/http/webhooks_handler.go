package http

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/settings"
	"leadpulse/internal/webhooks"
)

type webhookRequest struct {
	WebhookURL string `json:"webhook_url"`
}

// parseWebhookURL reads an optional webhook_url body field and falls back to
// the configured URL.
func parseWebhookURL(ctx *cartridge.Context) (string, error) {
	var req webhookRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return "", err
		}
	}
	target := strings.TrimSpace(req.WebhookURL)
	if target == "" {
		target = webhooks.ResolveURL(ctx.DB(), appConfig(ctx))
	}
	return target, nil
}

// WebhookSendAction relays one lead to the webhook and returns the outcome.
// A non-2xx reply or an unreachable endpoint is still a 200 with data.success false.
func WebhookSendAction(ctx *cartridge.Context) error {
	id, ok := leadIDParam(ctx)
	if !ok {
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid lead id")
	}

	target, err := parseWebhookURL(ctx)
	if err != nil {
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	relay := webhooks.NewRelayFromConfig(ctx.Logger, appConfig(ctx))
	result, err := relay.Send(ctx.UserContext(), ctx.DB(), id, target)
	switch {
	case errors.Is(err, webhooks.ErrInvalidURL):
		return jsonError(ctx, fiber.StatusBadRequest, err.Error())
	case isLeadNotFound(err):
		return jsonError(ctx, fiber.StatusNotFound, "Lead not found")
	case err != nil:
		return internalError(ctx, "Failed to send webhook", err)
	}

	return ctx.JSON(fiber.Map{"success": true, "data": result})
}

// WebhookResendFailedAction retries every lead whose last delivery failed.
func WebhookResendFailedAction(ctx *cartridge.Context) error {
	target, err := parseWebhookURL(ctx)
	if err != nil {
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	relay := webhooks.NewRelayFromConfig(ctx.Logger, appConfig(ctx))
	summary, err := relay.ResendFailed(ctx.UserContext(), ctx.DB(), target)
	if err != nil {
		if errors.Is(err, webhooks.ErrInvalidURL) {
			return jsonError(ctx, fiber.StatusBadRequest, err.Error())
		}
		return internalError(ctx, "Failed to resend webhooks", err)
	}

	ctx.Logger.Info("Failed webhooks resent",
		slog.Int("attempted", summary.Attempted),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed))
	return ctx.JSON(fiber.Map{"success": true, "data": summary})
}

// WebhookSettingsAction returns the stored webhook URL.
func WebhookSettingsAction(ctx *cartridge.Context) error {
	cfg := appConfig(ctx)
	stored := settings.GetSettingOrDefault(ctx.DB(), settings.KeyWebhookURL, "")
	return ctx.JSON(fiber.Map{
		"success":     true,
		"webhook_url": stored,
		"effective":   webhooks.ResolveURL(ctx.DB(), cfg),
		"from_config": strings.TrimSpace(cfg.WebhookURL) != "",
	})
}

// WebhookSettingsUpdateAction stores the webhook URL. An empty value clears it.
// It is also mounted as a plain fiber PUT route, so it only touches the DB manager.
func WebhookSettingsUpdateAction(ctx *cartridge.Context) error {
	var req webhookRequest
	if err := ctx.BodyParser(&req); err != nil {
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid request body")
	}

	target := strings.TrimSpace(req.WebhookURL)
	if target != "" {
		if err := webhooks.ValidateURL(target); err != nil {
			return jsonError(ctx, fiber.StatusBadRequest, err.Error())
		}
	}

	if err := settings.CreateOrUpdateSetting(ctx.DBManager.GetConnection(), settings.KeyWebhookURL, target); err != nil {
		return internalError(ctx, "Failed to save webhook URL", err)
	}

	ctx.Logger.Info("Webhook URL updated", slog.Bool("cleared", target == ""))
	return ctx.JSON(fiber.Map{"success": true, "webhook_url": target})
}
