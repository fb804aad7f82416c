package conversions

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"leadpulse/internal/events"
	"leadpulse/internal/sessions"
)

var (
	ErrMissingSessionID = errors.New("sessionId is required")
	ErrInvalidType      = errors.New("conversionType must be one of lead_form, phone_click, email_click, social_click, no_store_indication")
)

// RecordInput describes a qualifying action.
type RecordInput struct {
	SessionID       string
	LeadID          *uint
	ConversionType  ConversionType
	ConversionValue float64
	FormData        map[string]interface{}
	PageURL         string
	Timestamp       time.Time
}

// Validate checks the input without touching the database.
func (in RecordInput) Validate() error {
	if strings.TrimSpace(in.SessionID) == "" {
		return ErrMissingSessionID
	}
	if !in.ConversionType.IsValid() {
		return ErrInvalidType
	}
	return nil
}

// Record inserts the conversion, then flags the parent session and mirrors
// the conversion into the events table. Only the insert can fail the call.
func Record(db *gorm.DB, logger *slog.Logger, input RecordInput) (*Conversion, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var formData datatypes.JSON
	if len(input.FormData) > 0 {
		raw, err := json.Marshal(input.FormData)
		if err != nil {
			return nil, fmt.Errorf("invalid form data: %w", err)
		}
		formData = datatypes.JSON(raw)
	}

	now := time.Now().UTC()
	timestamp := input.Timestamp.UTC()
	if timestamp.IsZero() || timestamp.After(now) {
		timestamp = now
	}

	conversion := &Conversion{
		SessionID:       strings.TrimSpace(input.SessionID),
		LeadID:          input.LeadID,
		ConversionType:  input.ConversionType,
		ConversionValue: input.ConversionValue,
		FormData:        formData,
		PageURL:         input.PageURL,
		Timestamp:       timestamp,
		CreatedAt:       now,
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(conversion).Error
	})
	if err != nil {
		logger.Error("Failed to store conversion",
			slog.String("session_id", conversion.SessionID),
			slog.String("conversion_type", string(conversion.ConversionType)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to store conversion: %w", err)
	}

	markSessionConverted(db, logger, conversion.SessionID)
	mirrorAsEvent(db, logger, conversion)

	logger.Debug("Conversion recorded",
		slog.Uint64("id", uint64(conversion.ID)),
		slog.String("conversion_type", string(conversion.ConversionType)))
	return conversion, nil
}

func markSessionConverted(db *gorm.DB, logger *slog.Logger, sessionID string) {
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&sessions.Session{}).
			Where("id = ?", sessionID).
			UpdateColumns(map[string]interface{}{
				"conversion": true,
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		logger.Warn("Failed to flag session as converted",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
}

func mirrorAsEvent(db *gorm.DB, logger *slog.Logger, conversion *Conversion) {
	_, err := events.Record(db, logger, events.RecordInput{
		SessionID:     conversion.SessionID,
		EventType:     events.EventTypeConversion,
		EventCategory: events.CategoryConversion,
		EventAction:   string(conversion.ConversionType),
		EventLabel:    conversion.PageURL,
		EventValue:    strconv.FormatFloat(conversion.ConversionValue, 'f', -1, 64),
		PageURL:       conversion.PageURL,
		Timestamp:     conversion.Timestamp,
	})
	if err != nil {
		logger.Warn("Failed to mirror conversion as event",
			slog.Uint64("conversion_id", uint64(conversion.ID)),
			slog.Any("error", err))
	}
}

// ListForSession returns a session's conversions in the order they happened.
func ListForSession(db *gorm.DB, sessionID string) ([]Conversion, error) {
	items := []Conversion{}
	err := db.Where("session_id = ?", sessionID).
		Order("timestamp ASC").Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	return items, nil
}
