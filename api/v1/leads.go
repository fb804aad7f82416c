package v1

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"leadpulse/internal/conversions"
	"leadpulse/internal/leads"
)

// LeadRequest is the lead form submitted from the landing page.
type LeadRequest struct {
	Name        string                 `json:"name" validate:"required,max=255"`
	Email       string                 `json:"email" validate:"omitempty,email,max=255"`
	Phone       string                 `json:"phone" validate:"max=64"`
	City        string                 `json:"city" validate:"max=255"`
	State       string                 `json:"state" validate:"max=64"`
	StoreType   string                 `json:"storeType" validate:"max=255"`
	HasCNPJ     flexString             `json:"hasCnpj"`
	CNPJStatus  string                 `json:"cnpjStatus" validate:"max=64"`
	Message     string                 `json:"message" validate:"max=4096"`
	Source      string                 `json:"source" validate:"max=64"`
	SessionID   string                 `json:"sessionId" validate:"max=64"`
	UTMSource   string                 `json:"utmSource" validate:"max=255"`
	UTMMedium   string                 `json:"utmMedium" validate:"max=255"`
	UTMCampaign string                 `json:"utmCampaign" validate:"max=255"`
	PageURL     string                 `json:"pageUrl" validate:"max=2048"`
	Extra       map[string]interface{} `json:"extra"`
}

// CaptureLeadHandler stores a lead and, when the form came from a tracked
// session, records the lead_form conversion and any no-store signal.
func CaptureLeadHandler(ctx *cartridge.Context) error {
	var req LeadRequest
	if err := ctx.BodyParser(&req); err != nil {
		ctx.Logger.Debug("Failed to parse lead request", slog.Any("error", err))
		return badRequest(ctx, errInvalidRequest)
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(ctx, validationMessage(err))
	}

	db := ctx.DBManager.GetConnection()
	lead, err := leads.Capture(db, ctx.Logger, leads.CaptureInput{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		City:        req.City,
		State:       req.State,
		StoreType:   req.StoreType,
		HasCNPJ:     string(req.HasCNPJ),
		CNPJStatus:  req.CNPJStatus,
		Message:     req.Message,
		Source:      req.Source,
		SessionID:   req.SessionID,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
		Extra:       req.Extra,
	})
	if err != nil {
		if errors.Is(err, leads.ErrMissingName) || errors.Is(err, leads.ErrMissingContact) {
			return badRequest(ctx, err.Error())
		}
		return internalError(ctx)
	}

	if lead.SessionID != "" {
		recordLeadConversions(db, ctx.Logger, lead, req.PageURL)
	}

	return ctx.JSON(fiber.Map{
		"success":   true,
		"leadId":    lead.ID,
		"duplicate": lead.IsDuplicate,
	})
}

// recordLeadConversions never fails the capture; the lead is already stored.
func recordLeadConversions(db *gorm.DB, logger *slog.Logger, lead *leads.Lead, pageURL string) {
	leadID := lead.ID
	formData := map[string]interface{}{
		"name":        lead.Name,
		"city":        lead.City,
		"state":       lead.State,
		"store_type":  lead.StoreType,
		"has_cnpj":    lead.HasCNPJ,
		"cnpj_status": lead.CNPJStatus,
	}

	_, err := conversions.Record(db, logger, conversions.RecordInput{
		SessionID:       lead.SessionID,
		LeadID:          &leadID,
		ConversionType:  conversions.TypeLeadForm,
		ConversionValue: 1,
		FormData:        formData,
		PageURL:         pageURL,
	})
	if err != nil {
		logger.Warn("Failed to record lead conversion", slog.Uint64("lead_id", uint64(leadID)), slog.Any("error", err))
	}

	if !conversions.IsNoStoreSignal("has_cnpj", lead.HasCNPJ) &&
		!conversions.IsNoStoreSignal("cnpj_status", lead.CNPJStatus) {
		return
	}
	_, err = conversions.Record(db, logger, conversions.RecordInput{
		SessionID:      lead.SessionID,
		LeadID:         &leadID,
		ConversionType: conversions.TypeNoStoreIndication,
		FormData:       formData,
		PageURL:        pageURL,
	})
	if err != nil {
		logger.Warn("Failed to record no-store indication", slog.Uint64("lead_id", uint64(leadID)), slog.Any("error", err))
	}
}
