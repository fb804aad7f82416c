package v1

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/conversions"
	"leadpulse/internal/events"
)

// EventRequest is one interaction reported by the tracking client.
type EventRequest struct {
	SessionID     string     `json:"sessionId"`
	EventType     string     `json:"eventType"`
	EventCategory string     `json:"eventCategory" validate:"max=64"`
	EventAction   string     `json:"eventAction" validate:"max=255"`
	EventLabel    string     `json:"eventLabel" validate:"max=1024"`
	EventValue    flexString `json:"eventValue"`
	PageURL       string     `json:"pageUrl" validate:"max=2048"`
	PageTitle     string     `json:"pageTitle" validate:"max=512"`
	ElementID     string     `json:"elementId" validate:"max=255"`
	ElementClass  string     `json:"elementClass" validate:"max=512"`
	ElementText   string     `json:"elementText" validate:"max=1024"`
	Timestamp     clientTime `json:"timestamp"`
}

// ConversionRequest is a high-value action reported by the tracking client.
type ConversionRequest struct {
	SessionID       string                 `json:"sessionId"`
	LeadID          *uint                  `json:"leadId"`
	ConversionType  string                 `json:"conversionType"`
	ConversionValue float64                `json:"conversionValue"`
	FormData        map[string]interface{} `json:"formData"`
	PageURL         string                 `json:"pageUrl" validate:"max=2048"`
	Timestamp       clientTime             `json:"timestamp"`
}

// RecordEventHandler stores one interaction event.
func RecordEventHandler(ctx *cartridge.Context) error {
	var req EventRequest
	if err := ctx.BodyParser(&req); err != nil {
		ctx.Logger.Debug("Failed to parse event request", slog.Any("error", err))
		return badRequest(ctx, errInvalidRequest)
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(ctx, validationMessage(err))
	}

	event, err := events.Record(ctx.DBManager.GetConnection(), ctx.Logger, events.RecordInput{
		SessionID:     req.SessionID,
		EventType:     events.EventType(req.EventType),
		EventCategory: req.EventCategory,
		EventAction:   req.EventAction,
		EventLabel:    req.EventLabel,
		EventValue:    string(req.EventValue),
		PageURL:       req.PageURL,
		PageTitle:     req.PageTitle,
		ElementID:     req.ElementID,
		ElementClass:  req.ElementClass,
		ElementText:   req.ElementText,
		Timestamp:     req.Timestamp.Time,
	})
	if err != nil {
		if isEventInputError(err) {
			return badRequest(ctx, err.Error())
		}
		return internalError(ctx)
	}

	return ctx.JSON(fiber.Map{"success": true, "id": event.ID})
}

func isEventInputError(err error) bool {
	return errors.Is(err, events.ErrMissingSessionID) ||
		errors.Is(err, events.ErrMissingEventType) ||
		errors.Is(err, events.ErrInvalidScroll)
}

// RecordConversionHandler stores a conversion, flags its session and mirrors
// it into the event stream.
func RecordConversionHandler(ctx *cartridge.Context) error {
	var req ConversionRequest
	if err := ctx.BodyParser(&req); err != nil {
		ctx.Logger.Debug("Failed to parse conversion request", slog.Any("error", err))
		return badRequest(ctx, errInvalidRequest)
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(ctx, validationMessage(err))
	}

	conversion, err := conversions.Record(ctx.DBManager.GetConnection(), ctx.Logger, conversions.RecordInput{
		SessionID:       req.SessionID,
		LeadID:          req.LeadID,
		ConversionType:  conversions.ConversionType(req.ConversionType),
		ConversionValue: req.ConversionValue,
		FormData:        req.FormData,
		PageURL:         req.PageURL,
		Timestamp:       req.Timestamp.Time,
	})
	if err != nil {
		if errors.Is(err, conversions.ErrMissingSessionID) || errors.Is(err, conversions.ErrInvalidType) {
			return badRequest(ctx, err.Error())
		}
		return internalError(ctx)
	}

	return ctx.JSON(fiber.Map{"success": true, "id": conversion.ID})
}
