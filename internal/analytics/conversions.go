package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"leadpulse/internal/timeframe"
)

// ConversionTypeSummary counts one conversion type in the window.
type ConversionTypeSummary struct {
	ConversionType string  `json:"conversion_type"`
	Count          int64   `json:"count"`
	UniqueSessions int64   `json:"unique_sessions"`
	TotalValue     float64 `json:"total_value"`
}

// DailyConversionStat counts one conversion type on one day.
type DailyConversionStat struct {
	Date           string `json:"date"`
	ConversionType string `json:"conversion_type"`
	Count          int64  `json:"count"`
}

// RecentConversion is a conversion joined with its lead and session, both optional.
type RecentConversion struct {
	ID              uint    `json:"id"`
	SessionID       string  `json:"session_id"`
	LeadID          *uint   `json:"lead_id"`
	ConversionType  string  `json:"conversion_type"`
	ConversionValue float64 `json:"conversion_value"`
	PageURL         string  `json:"page_url"`
	Timestamp       string  `json:"timestamp"`
	LeadName        *string `json:"lead_name"`
	LeadPhone       *string `json:"lead_phone"`
	UTMSource       *string `json:"utm_source"`
	DeviceType      *string `json:"device_type"`
}

// ConversionReport is the payload of the admin conversion view.
type ConversionReport struct {
	Days    int                     `json:"days"`
	Summary []ConversionTypeSummary `json:"summary"`
	Daily   []DailyConversionStat   `json:"daily"`
	Funnel  []FunnelStep            `json:"funnel"`
	Recent  []RecentConversion      `json:"recent"`
}

// ConversionSummary groups conversions in the window by type.
func ConversionSummary(db *gorm.DB, window timeframe.Window) ([]ConversionTypeSummary, error) {
	results := []ConversionTypeSummary{}
	err := db.Raw(`
        SELECT
            conversion_type,
            COUNT(*) AS count,
            COUNT(DISTINCT session_id) AS unique_sessions,
            COALESCE(SUM(conversion_value), 0) AS total_value
        FROM conversions
        WHERE timestamp >= ?
        GROUP BY conversion_type
        ORDER BY count DESC, conversion_type ASC
    `, window.From).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching conversion summary: %w", err)
	}
	return results, nil
}

// DailyConversions counts conversions per day and type, newest day first.
func DailyConversions(db *gorm.DB, window timeframe.Window) ([]DailyConversionStat, error) {
	results := []DailyConversionStat{}
	err := db.Raw(`
        SELECT
            DATE(timestamp) AS date,
            conversion_type,
            COUNT(*) AS count
        FROM conversions
        WHERE timestamp >= ?
        GROUP BY DATE(timestamp), conversion_type
        ORDER BY date DESC, conversion_type ASC
    `, window.From).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily conversions: %w", err)
	}
	return results, nil
}

// RecentConversions lists the latest conversions with lead and session details.
func RecentConversions(db *gorm.DB, window timeframe.Window) ([]RecentConversion, error) {
	results := []RecentConversion{}
	err := db.Raw(`
        SELECT
            c.id AS id,
            c.session_id AS session_id,
            c.lead_id AS lead_id,
            c.conversion_type AS conversion_type,
            c.conversion_value AS conversion_value,
            COALESCE(c.page_url, '') AS page_url,
            strftime('%Y-%m-%dT%H:%M:%SZ', c.timestamp) AS timestamp,
            l.name AS lead_name,
            l.phone AS lead_phone,
            s.utm_source AS utm_source,
            s.device_type AS device_type
        FROM conversions c
        LEFT JOIN leads l ON l.id = c.lead_id
        LEFT JOIN sessions s ON s.id = c.session_id
        WHERE c.timestamp >= ?
        ORDER BY c.timestamp DESC, c.id DESC
        LIMIT ?
    `, window.From, recentLimit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching recent conversions: %w", err)
	}
	return results, nil
}

// Conversions builds the admin conversion view.
func Conversions(db *gorm.DB, window timeframe.Window) (*ConversionReport, error) {
	summary, err := ConversionSummary(db, window)
	if err != nil {
		return nil, err
	}
	daily, err := DailyConversions(db, window)
	if err != nil {
		return nil, err
	}
	funnel, err := Funnel(db, window)
	if err != nil {
		return nil, err
	}
	recent, err := RecentConversions(db, window)
	if err != nil {
		return nil, err
	}
	return &ConversionReport{
		Days:    window.Days,
		Summary: summary,
		Daily:   daily,
		Funnel:  funnel,
		Recent:  recent,
	}, nil
}
