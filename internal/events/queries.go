package events

import (
	"time"

	"gorm.io/gorm"
)

const defaultListLimit = 100

// Filters narrows an event listing.
type Filters struct {
	Since         time.Time
	EventType     string
	EventCategory string
	Limit         int
}

// List returns the most recent events matching filters.
func List(db *gorm.DB, filters Filters) ([]Event, error) {
	query := db.Model(&Event{}).Where("timestamp >= ?", filters.Since.UTC())

	if filters.EventType != "" {
		query = query.Where("event_type = ?", filters.EventType)
	}
	if filters.EventCategory != "" {
		query = query.Where("event_category = ?", filters.EventCategory)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var items []Event
	if err := query.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// CountForSession returns how many events reference sessionID.
func CountForSession(db *gorm.DB, sessionID string) (int64, error) {
	var count int64
	err := db.Model(&Event{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}
