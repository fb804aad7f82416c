package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"leadpulse/internal/events"
	"leadpulse/internal/timeframe"
)

// EventSummary counts events in a window by the types the dashboard cares about.
type EventSummary struct {
	TotalEvents      int64 `json:"total_events"`
	UniqueSessions   int64 `json:"unique_sessions"`
	PageViews        int64 `json:"page_views"`
	Clicks           int64 `json:"clicks"`
	FormInteractions int64 `json:"form_interactions"`
	ScrollEvents     int64 `json:"scroll_events"`
}

// TopEvent is one (type, category, action) group.
type TopEvent struct {
	EventType      string `json:"event_type"`
	EventCategory  string `json:"event_category"`
	EventAction    string `json:"event_action"`
	EventCount     int64  `json:"event_count"`
	UniqueSessions int64  `json:"unique_sessions"`
}

// ConversionEvent is a mirrored conversion row from the events table.
type ConversionEvent struct {
	ID          uint   `json:"id"`
	SessionID   string `json:"session_id"`
	EventAction string `json:"event_action"`
	EventLabel  string `json:"event_label"`
	EventValue  string `json:"event_value"`
	PageURL     string `json:"page_url"`
	Timestamp   string `json:"timestamp"`
}

// NoStoreSession is a session that signalled it has no store. Session
// fields are empty when the session row is missing.
type NoStoreSession struct {
	SessionID   string  `json:"session_id"`
	SignalledAt string  `json:"signalled_at"`
	StartedAt   *string `json:"started_at"`
	UTMSource   *string `json:"utm_source"`
	DeviceType  *string `json:"device_type"`
}

// EventReport is the payload of the admin event view.
type EventReport struct {
	Days             int               `json:"days"`
	Summary          EventSummary      `json:"summary"`
	TopEvents        []TopEvent        `json:"top_events"`
	ConversionEvents []ConversionEvent `json:"conversion_events"`
	NoStoreSessions  []NoStoreSession  `json:"no_store_sessions"`
	Events           []events.Event    `json:"events"`
}

// EventFilters narrows the raw event list of the event report.
type EventFilters struct {
	EventType     string
	EventCategory string
}

// EventSummaryReport counts events in the window.
func EventSummaryReport(db *gorm.DB, window timeframe.Window) (EventSummary, error) {
	var summary EventSummary
	err := db.Raw(`
        SELECT
            COUNT(*) AS total_events,
            COUNT(DISTINCT session_id) AS unique_sessions,
            COALESCE(SUM(CASE WHEN event_type = 'page_view' THEN 1 ELSE 0 END), 0) AS page_views,
            COALESCE(SUM(CASE WHEN event_type = 'click' THEN 1 ELSE 0 END), 0) AS clicks,
            COALESCE(SUM(CASE WHEN event_type IN ('form_interaction', 'form_submit') THEN 1 ELSE 0 END), 0) AS form_interactions,
            COALESCE(SUM(CASE WHEN event_type = 'scroll' THEN 1 ELSE 0 END), 0) AS scroll_events
        FROM events
        WHERE timestamp >= ?
    `, window.From).Scan(&summary).Error
	if err != nil {
		return EventSummary{}, fmt.Errorf("error fetching event summary: %w", err)
	}
	return summary, nil
}

// TopEvents ranks event groups by volume.
func TopEvents(db *gorm.DB, window timeframe.Window) ([]TopEvent, error) {
	results := []TopEvent{}
	err := db.Raw(`
        SELECT
            event_type,
            COALESCE(event_category, '') AS event_category,
            COALESCE(event_action, '') AS event_action,
            COUNT(*) AS event_count,
            COUNT(DISTINCT session_id) AS unique_sessions
        FROM events
        WHERE timestamp >= ?
        GROUP BY event_type, COALESCE(event_category, ''), COALESCE(event_action, '')
        ORDER BY event_count DESC, event_type ASC, event_category ASC, event_action ASC
        LIMIT ?
    `, window.From, topEventsMax).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top events: %w", err)
	}
	return results, nil
}

// ConversionEvents lists the latest mirrored conversion events.
func ConversionEvents(db *gorm.DB, window timeframe.Window) ([]ConversionEvent, error) {
	results := []ConversionEvent{}
	err := db.Raw(`
        SELECT
            id,
            session_id,
            COALESCE(event_action, '') AS event_action,
            COALESCE(event_label, '') AS event_label,
            COALESCE(event_value, '') AS event_value,
            COALESCE(page_url, '') AS page_url,
            strftime('%Y-%m-%dT%H:%M:%SZ', timestamp) AS timestamp
        FROM events
        WHERE event_type = 'conversion' AND timestamp >= ?
        ORDER BY events.timestamp DESC, id DESC
        LIMIT ?
    `, window.From, recentLimit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching conversion events: %w", err)
	}
	return results, nil
}

// NoStoreSessions lists sessions with a no_store_indication conversion.
func NoStoreSessions(db *gorm.DB, window timeframe.Window) ([]NoStoreSession, error) {
	results := []NoStoreSession{}
	err := db.Raw(`
        SELECT
            c.session_id AS session_id,
            strftime('%Y-%m-%dT%H:%M:%SZ', MIN(c.timestamp)) AS signalled_at,
            strftime('%Y-%m-%dT%H:%M:%SZ', s.started_at) AS started_at,
            s.utm_source AS utm_source,
            s.device_type AS device_type
        FROM conversions c
        LEFT JOIN sessions s ON s.id = c.session_id
        WHERE c.conversion_type = 'no_store_indication' AND c.timestamp >= ?
        GROUP BY c.session_id
        ORDER BY signalled_at DESC, c.session_id ASC
        LIMIT ?
    `, window.From, recentLimit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching no-store sessions: %w", err)
	}
	return results, nil
}

// Events builds the admin event view.
func Events(db *gorm.DB, window timeframe.Window, filters EventFilters) (*EventReport, error) {
	summary, err := EventSummaryReport(db, window)
	if err != nil {
		return nil, err
	}
	top, err := TopEvents(db, window)
	if err != nil {
		return nil, err
	}
	conversionEvents, err := ConversionEvents(db, window)
	if err != nil {
		return nil, err
	}
	noStore, err := NoStoreSessions(db, window)
	if err != nil {
		return nil, err
	}
	list, err := events.List(db, events.Filters{
		Since:         window.From,
		EventType:     filters.EventType,
		EventCategory: filters.EventCategory,
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching events: %w", err)
	}

	return &EventReport{
		Days:             window.Days,
		Summary:          summary,
		TopEvents:        top,
		ConversionEvents: conversionEvents,
		NoStoreSessions:  noStore,
		Events:           list,
	}, nil
}
