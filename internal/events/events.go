package events

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

var (
	ErrMissingSessionID = errors.New("sessionId is required")
	ErrMissingEventType = errors.New("eventType is required")
	ErrInvalidScroll    = errors.New("scroll events must report 25, 50, 75 or 100")
)

// RecordInput is a single client-reported interaction.
type RecordInput struct {
	SessionID     string
	EventType     EventType
	EventCategory string
	EventAction   string
	EventLabel    string
	EventValue    string
	PageURL       string
	PageTitle     string
	ElementID     string
	ElementClass  string
	ElementText   string
	Timestamp     time.Time
}

// IsScrollThreshold reports whether value is one of the accepted scroll depths.
func IsScrollThreshold(value string) bool {
	depth, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(value), "%"))
	if err != nil {
		return false
	}
	for _, threshold := range ScrollThresholds {
		if depth == threshold {
			return true
		}
	}
	return false
}

// Validate checks the input without touching the database.
func (in RecordInput) Validate() error {
	if strings.TrimSpace(in.SessionID) == "" {
		return ErrMissingSessionID
	}
	if strings.TrimSpace(string(in.EventType)) == "" {
		return ErrMissingEventType
	}
	if in.EventType == EventTypeScroll && !IsScrollThreshold(in.EventValue) {
		return ErrInvalidScroll
	}
	return nil
}

// Record inserts one event row. The referenced session is not looked up.
func Record(db *gorm.DB, logger *slog.Logger, input RecordInput) (*Event, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	category := strings.TrimSpace(input.EventCategory)
	if category == "" && (input.EventType == EventTypeFormInteraction || input.EventType == EventTypeFormSubmit) {
		category = CategoryForm
	}

	value := strings.TrimSpace(input.EventValue)
	if input.EventType == EventTypeScroll {
		value = strings.TrimSuffix(value, "%")
	}

	now := time.Now().UTC()
	timestamp := input.Timestamp.UTC()
	if timestamp.IsZero() || timestamp.After(now) {
		timestamp = now
	}

	event := &Event{
		SessionID:     strings.TrimSpace(input.SessionID),
		EventType:     EventType(strings.TrimSpace(string(input.EventType))),
		EventCategory: category,
		EventAction:   input.EventAction,
		EventLabel:    input.EventLabel,
		EventValue:    value,
		PageURL:       input.PageURL,
		PageTitle:     input.PageTitle,
		ElementID:     input.ElementID,
		ElementClass:  input.ElementClass,
		ElementText:   input.ElementText,
		Timestamp:     timestamp,
		CreatedAt:     now,
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		logger.Error("Failed to store event",
			slog.String("session_id", event.SessionID),
			slog.String("event_type", string(event.EventType)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	logger.Debug("Event recorded",
		slog.Uint64("id", uint64(event.ID)),
		slog.String("event_type", string(event.EventType)))
	return event, nil
}
