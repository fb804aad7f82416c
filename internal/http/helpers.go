// Package http contains the admin API actions.
package http

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/config"
	"leadpulse/internal/leads"
	"leadpulse/internal/timeframe"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
	errInternal     = "Internal server error"
)

func appConfig(ctx *cartridge.Context) *config.Config {
	if cfg, ok := ctx.Config.(*config.Config); ok && cfg != nil {
		return cfg
	}
	return config.GetConfig()
}

// reportWindow reads ?days= using the configured default and ceiling.
func reportWindow(ctx *cartridge.Context) timeframe.Window {
	cfg := appConfig(ctx)
	days := timeframe.ParseDays(ctx.Query("days"), cfg.ReportDefaultDays, cfg.ReportMaxDays)
	return timeframe.Last(days)
}

// pageParams reads ?page= and ?limit=. page is at least 1 and limit stays
// within 1..100, defaulting to 50.
func pageParams(ctx *cartridge.Context) (int, int) {
	page, err := strconv.Atoi(ctx.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(ctx.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func leadIDParam(ctx *cartridge.Context) (uint, bool) {
	id, err := ctx.ParamsInt("id")
	if err != nil || id < 1 {
		return 0, false
	}
	return uint(id), true
}

func jsonError(ctx *cartridge.Context, status int, message string) error {
	return ctx.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

func internalError(ctx *cartridge.Context, msg string, err error) error {
	ctx.Logger.Error(msg, slog.Any("error", err))
	return jsonError(ctx, fiber.StatusInternalServerError, errInternal)
}

func isLeadNotFound(err error) bool {
	var notFound *leads.LeadNotFoundError
	return errors.As(err, &notFound)
}
