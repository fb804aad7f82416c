package http

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/analytics"
	"leadpulse/internal/leads"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LeadsIndexAction lists leads in the report window, optionally by webhook status.
func LeadsIndexAction(ctx *cartridge.Context) error {
	window := reportWindow(ctx)
	page, limit := pageParams(ctx)

	status := leads.WebhookStatus(ctx.Query("status"))
	if status != "" && !status.IsValid() {
		return jsonError(ctx, fiber.StatusBadRequest, "status must be one of pending, success, error")
	}

	items, total, err := leads.List(ctx.DB(), leads.ListParams{
		Since:  window.From,
		Status: status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return internalError(ctx, "Failed to list leads", err)
	}
	if items == nil {
		items = []leads.Lead{}
	}

	return ctx.JSON(fiber.Map{
		"success":    true,
		"days":       window.Days,
		"leads":      items,
		"pagination": analytics.NewPagination(page, limit, total),
	})
}

// LeadDeleteAction permanently removes a lead.
func LeadDeleteAction(ctx *cartridge.Context) error {
	id, ok := leadIDParam(ctx)
	if !ok {
		return jsonError(ctx, fiber.StatusBadRequest, "Invalid lead id")
	}

	if err := leads.Delete(ctx.DB(), ctx.Logger, id); err != nil {
		if isLeadNotFound(err) {
			return jsonError(ctx, fiber.StatusNotFound, "Lead not found")
		}
		return internalError(ctx, "Failed to delete lead", err)
	}

	ctx.Logger.Info("Lead deleted", slog.Uint64("lead_id", uint64(id)))
	return ctx.JSON(fiber.Map{"success": true})
}

// LeadsExportAction streams the leads in the window as an xlsx workbook.
func LeadsExportAction(ctx *cartridge.Context) error {
	window := reportWindow(ctx)

	items, _, err := leads.List(ctx.DB(), leads.ListParams{Since: window.From})
	if err != nil {
		return internalError(ctx, "Failed to load leads for export", err)
	}

	data, err := leads.ExportXLSX(items)
	if err != nil {
		return internalError(ctx, "Failed to build lead export", err)
	}

	filename := fmt.Sprintf("leads-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	ctx.Set(fiber.HeaderContentType, xlsxContentType)
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))

	ctx.Logger.Info("Leads exported", slog.Int("count", len(items)), slog.Int("days", window.Days))
	return ctx.Send(data)
}

// CheckDuplicatesAction recomputes is_duplicate over every lead.
func CheckDuplicatesAction(ctx *cartridge.Context) error {
	updated, err := leads.MarkDuplicates(ctx.DB(), ctx.Logger)
	if err != nil {
		return internalError(ctx, "Failed to check duplicates", err)
	}
	return ctx.JSON(fiber.Map{"success": true, "updated": updated})
}
