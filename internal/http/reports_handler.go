package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/analytics"
	"leadpulse/internal/conversions"
	"leadpulse/internal/events"
	"leadpulse/internal/sessions"
)

// SessionsReportAction returns the paginated session view with its breakdowns.
func SessionsReportAction(ctx *cartridge.Context) error {
	window := reportWindow(ctx)
	page, limit := pageParams(ctx)

	report, err := analytics.Sessions(ctx.DB(), window, page, limit)
	if err != nil {
		return internalError(ctx, "Failed to build session report", err)
	}
	return ctx.JSON(struct {
		Success bool `json:"success"`
		*analytics.SessionPage
	}{true, report})
}

// SessionShowAction returns one session with its event count and conversions.
func SessionShowAction(ctx *cartridge.Context) error {
	id := ctx.Params("id")
	db := ctx.DB()

	session, err := sessions.Get(db, id)
	if err != nil {
		var notFound *sessions.SessionNotFoundError
		if errors.As(err, &notFound) {
			return jsonError(ctx, fiber.StatusNotFound, "Session not found")
		}
		return internalError(ctx, "Failed to load session", err)
	}

	eventCount, err := events.CountForSession(db, id)
	if err != nil {
		return internalError(ctx, "Failed to count session events", err)
	}
	items, err := conversions.ListForSession(db, id)
	if err != nil {
		return internalError(ctx, "Failed to list session conversions", err)
	}

	return ctx.JSON(fiber.Map{
		"success":     true,
		"session":     session,
		"event_count": eventCount,
		"conversions": items,
	})
}

// EventsReportAction returns the event summary, top events and raw events.
func EventsReportAction(ctx *cartridge.Context) error {
	window := reportWindow(ctx)
	filters := analytics.EventFilters{
		EventType:     ctx.Query("eventType"),
		EventCategory: ctx.Query("eventCategory"),
	}

	report, err := analytics.Events(ctx.DB(), window, filters)
	if err != nil {
		return internalError(ctx, "Failed to build event report", err)
	}
	return ctx.JSON(struct {
		Success bool `json:"success"`
		*analytics.EventReport
	}{true, report})
}

// ConversionsReportAction returns conversions by type and day, the funnel and recent conversions.
func ConversionsReportAction(ctx *cartridge.Context) error {
	report, err := analytics.Conversions(ctx.DB(), reportWindow(ctx))
	if err != nil {
		return internalError(ctx, "Failed to build conversion report", err)
	}
	return ctx.JSON(struct {
		Success bool `json:"success"`
		*analytics.ConversionReport
	}{true, report})
}

// DailyReportAction returns daily lead counters and the best hour and weekday.
func DailyReportAction(ctx *cartridge.Context) error {
	report, err := analytics.Daily(ctx.DB(), reportWindow(ctx))
	if err != nil {
		return internalError(ctx, "Failed to build daily report", err)
	}
	return ctx.JSON(struct {
		Success bool `json:"success"`
		*analytics.DailyReport
	}{true, report})
}
