package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	ua "leadpulse/internal/pkg/user_agent"
	"leadpulse/internal/sessions"
)

// StartSessionRequest is the session descriptor sent when a page opens.
type StartSessionRequest struct {
	ID               string     `json:"id" validate:"required,max=64"`
	UserAgent        string     `json:"userAgent" validate:"max=1024"`
	Referrer         string     `json:"referrer" validate:"max=2048"`
	LandingPage      string     `json:"landingPage" validate:"max=2048"`
	UTMSource        string     `json:"utmSource" validate:"max=255"`
	UTMMedium        string     `json:"utmMedium" validate:"max=255"`
	UTMCampaign      string     `json:"utmCampaign" validate:"max=255"`
	UTMTerm          string     `json:"utmTerm" validate:"max=255"`
	UTMContent       string     `json:"utmContent" validate:"max=255"`
	DeviceType       string     `json:"deviceType" validate:"omitempty,oneof=desktop mobile tablet"`
	Browser          string     `json:"browser" validate:"max=64"`
	OS               string     `json:"os" validate:"max=64"`
	ScreenResolution string     `json:"screenResolution" validate:"max=32"`
	Language         string     `json:"language" validate:"max=32"`
	Timezone         string     `json:"timezone" validate:"max=64"`
	StartedAt        clientTime `json:"startedAt"`
}

// UpdateSessionRequest carries heartbeat and unload counters.
type UpdateSessionRequest struct {
	SessionID    string     `json:"sessionId" validate:"required,max=64"`
	Duration     int        `json:"duration" validate:"min=0"`
	PageViews    int        `json:"pageViews" validate:"min=0"`
	Bounce       *bool      `json:"bounce"`
	LastActivity clientTime `json:"lastActivity"`
}

func (r UpdateSessionRequest) input() sessions.UpdateInput {
	return sessions.UpdateInput{
		SessionID:       r.SessionID,
		DurationSeconds: r.Duration,
		PageViews:       r.PageViews,
		Bounce:          r.Bounce,
		LastActivity:    r.LastActivity.Time,
	}
}

// StartSessionHandler opens a session. A reused id, an excluded IP or a
// crawler is acknowledged without storing anything.
func StartSessionHandler(ctx *cartridge.Context) error {
	var req StartSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		ctx.Logger.Debug("Failed to parse session request", slog.Any("error", err))
		return badRequest(ctx, errInvalidRequest)
	}
	if device := ua.NormalizeDeviceType(req.DeviceType); device != "" {
		req.DeviceType = device
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(ctx, validationMessage(err))
	}

	_, err := sessions.Start(ctx.DBManager.GetConnection(), ctx.Logger, sessions.StartInput{
		ID:               req.ID,
		UserAgent:        getUserAgent(ctx.Ctx, req.UserAgent),
		IPAddress:        getClientIP(ctx.Ctx),
		Referrer:         req.Referrer,
		LandingPage:      req.LandingPage,
		UTMSource:        req.UTMSource,
		UTMMedium:        req.UTMMedium,
		UTMCampaign:      req.UTMCampaign,
		UTMTerm:          req.UTMTerm,
		UTMContent:       req.UTMContent,
		DeviceType:       req.DeviceType,
		Browser:          req.Browser,
		OS:               req.OS,
		ScreenResolution: req.ScreenResolution,
		Language:         req.Language,
		Timezone:         req.Timezone,
		StartedAt:        req.StartedAt.Time,
	})
	switch {
	case errors.Is(err, sessions.ErrDuplicateSession):
		return ctx.JSON(fiber.Map{"success": true, "sessionId": req.ID, "duplicate": true})
	case errors.Is(err, sessions.ErrExcludedIP), errors.Is(err, sessions.ErrBotTraffic):
		return ctx.JSON(fiber.Map{"success": true, "sessionId": req.ID, "tracked": false})
	case err != nil:
		return internalError(ctx)
	}

	return ctx.JSON(fiber.Map{"success": true, "sessionId": req.ID})
}

// UpdateSessionHandler stores a heartbeat.
func UpdateSessionHandler(ctx *cartridge.Context) error {
	var req UpdateSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		ctx.Logger.Debug("Failed to parse heartbeat", slog.Any("error", err))
		return badRequest(ctx, errInvalidRequest)
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(ctx, validationMessage(err))
	}

	if err := sessions.Heartbeat(ctx.DBManager.GetConnection(), ctx.Logger, req.input()); err != nil {
		return internalError(ctx)
	}
	return ctx.JSON(fiber.Map{"success": true})
}

// EndSessionHandler finalizes a session from an unload beacon. Beacons are
// usually sent as text/plain and the browser never reads the reply, so every
// outcome is answered with 202.
func EndSessionHandler(ctx *cartridge.Context) error {
	var req UpdateSessionRequest
	if err := json.Unmarshal(ctx.Body(), &req); err != nil {
		ctx.Logger.Debug("Failed to parse end beacon", slog.Any("error", err))
		return ctx.SendStatus(http.StatusAccepted)
	}
	if err := validate.Struct(&req); err != nil {
		ctx.Logger.Debug("Invalid end beacon", slog.String("error", validationMessage(err)))
		return ctx.SendStatus(http.StatusAccepted)
	}

	if err := sessions.End(ctx.DBManager.GetConnection(), ctx.Logger, req.input()); err != nil {
		ctx.Logger.Debug("Failed to end session", slog.Any("error", err))
	}
	return ctx.SendStatus(http.StatusAccepted)
}

// Adapt runs a cartridge handler from a plain fiber route, for the verbs the
// cartridge server does not register directly.
func Adapt(handler func(*cartridge.Context) error, dbManager cartridge.DBManager, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return handler(&cartridge.Context{Ctx: c, Logger: logger, DBManager: dbManager})
	}
}
