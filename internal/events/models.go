package events

import "time"

// EventType is the kind of interaction a client reported.
type EventType string

const (
	EventTypePageView        EventType = "page_view"
	EventTypeClick           EventType = "click"
	EventTypeScroll          EventType = "scroll"
	EventTypeFormInteraction EventType = "form_interaction"
	EventTypeFormSubmit      EventType = "form_submit"
	EventTypePageVisibility  EventType = "page_visibility"
	EventTypeTimeOnPage      EventType = "time_on_page"
	EventTypeSectionView     EventType = "section_view"
	EventTypeConversion      EventType = "conversion"
)

// Categories the reports group on.
const (
	CategoryForm       = "form"
	CategoryConversion = "conversion"
	CategoryEngagement = "engagement"
	CategoryNavigation = "navigation"
)

// ScrollThresholds are the only depths a scroll event may report.
var ScrollThresholds = []int{25, 50, 75, 100}

// Event is an immutable interaction record. SessionID is a soft reference:
// nothing checks that the session exists.
type Event struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     string    `gorm:"index;size:64;not null" json:"session_id"`
	EventType     EventType `gorm:"index;size:32;not null" json:"event_type"`
	EventCategory string    `gorm:"index;size:64" json:"event_category"`
	EventAction   string    `gorm:"size:255" json:"event_action"`
	EventLabel    string    `gorm:"type:text" json:"event_label"`
	EventValue    string    `gorm:"size:255" json:"event_value"`
	PageURL       string    `gorm:"type:text" json:"page_url"`
	PageTitle     string    `gorm:"type:text" json:"page_title"`
	ElementID     string    `gorm:"size:255" json:"element_id"`
	ElementClass  string    `gorm:"type:text" json:"element_class"`
	ElementText   string    `gorm:"type:text" json:"element_text"`
	Timestamp     time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt     time.Time `json:"created_at"`
}
