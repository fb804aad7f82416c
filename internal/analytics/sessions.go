package analytics

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"leadpulse/internal/pkg/referrers"
	"leadpulse/internal/timeframe"
)

// SessionSummary aggregates the sessions started in a window.
type SessionSummary struct {
	TotalSessions     int64   `json:"total_sessions"`
	ConvertedSessions int64   `json:"converted_sessions"`
	AvgDuration       float64 `json:"avg_duration"`
	AvgPageViews      float64 `json:"avg_page_views"`
	BounceSessions    int64   `json:"bounce_sessions"`
	TodaySessions     int64   `json:"today_sessions"`
	UTMSessions       int64   `json:"utm_sessions"`
	ConversionRate    string  `json:"conversion_rate"`
	BounceRate        string  `json:"bounce_rate"`
}

// TrafficSource is one (utm_source, utm_medium) pair.
type TrafficSource struct {
	Source      string `json:"source"`
	Medium      string `json:"medium"`
	Sessions    int64  `json:"sessions"`
	Conversions int64  `json:"conversions"`
}

// Breakdown counts sessions and converted sessions for one dimension value.
type Breakdown struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Sessions    int64  `json:"sessions"`
	Conversions int64  `json:"conversions"`
}

// DeviceStat counts sessions per device type.
type DeviceStat struct {
	DeviceType  string `json:"device_type"`
	Label       string `json:"label"`
	Sessions    int64  `json:"sessions"`
	Conversions int64  `json:"conversions"`
}

// ReferrerStat counts sessions per referrer display name.
type ReferrerStat struct {
	Referrer string `json:"referrer"`
	Sessions int64  `json:"sessions"`
}

// SessionSummaryReport computes the session counters and rates for a window.
func SessionSummaryReport(db *gorm.DB, window timeframe.Window) (SessionSummary, error) {
	var row struct {
		TotalSessions     int64
		ConvertedSessions int64
		AvgDuration       float64
		AvgPageViews      float64
		BounceSessions    int64
		TodaySessions     int64
		UTMSessions       int64
	}

	err := db.Raw(`
        SELECT
            COUNT(*) AS total_sessions,
            COALESCE(SUM(CASE WHEN conversion = 1 THEN 1 ELSE 0 END), 0) AS converted_sessions,
            COALESCE(AVG(duration_seconds), 0) AS avg_duration,
            COALESCE(AVG(page_views), 0) AS avg_page_views,
            COALESCE(SUM(CASE WHEN bounce = 1 THEN 1 ELSE 0 END), 0) AS bounce_sessions,
            COALESCE(SUM(CASE WHEN started_at >= ? THEN 1 ELSE 0 END), 0) AS today_sessions,
            COALESCE(SUM(CASE WHEN COALESCE(utm_source, '') <> '' OR COALESCE(utm_medium, '') <> ''
                OR COALESCE(utm_campaign, '') <> '' OR COALESCE(utm_term, '') <> ''
                OR COALESCE(utm_content, '') <> '' THEN 1 ELSE 0 END), 0) AS utm_sessions
        FROM sessions
        WHERE started_at >= ?
    `, window.Today(), window.From).Scan(&row).Error
	if err != nil {
		return SessionSummary{}, fmt.Errorf("error fetching session summary: %w", err)
	}

	return SessionSummary{
		TotalSessions:     row.TotalSessions,
		ConvertedSessions: row.ConvertedSessions,
		AvgDuration:       round2(row.AvgDuration),
		AvgPageViews:      round2(row.AvgPageViews),
		BounceSessions:    row.BounceSessions,
		TodaySessions:     row.TodaySessions,
		UTMSessions:       row.UTMSessions,
		ConversionRate:    Rate(row.ConvertedSessions, row.TotalSessions),
		BounceRate:        Rate(row.BounceSessions, row.TotalSessions),
	}, nil
}

// TrafficSources ranks the top ten (source, medium) pairs. Missing values
// default to direct and none.
func TrafficSources(db *gorm.DB, window timeframe.Window) ([]TrafficSource, error) {
	results := []TrafficSource{}
	err := db.Raw(`
        SELECT
            COALESCE(NULLIF(utm_source, ''), 'direct') AS source,
            COALESCE(NULLIF(utm_medium, ''), 'none') AS medium,
            COUNT(*) AS sessions,
            COALESCE(SUM(CASE WHEN conversion = 1 THEN 1 ELSE 0 END), 0) AS conversions
        FROM sessions
        WHERE started_at >= ?
        GROUP BY source, medium
        ORDER BY sessions DESC, source ASC, medium ASC
        LIMIT ?
    `, window.From, topLimit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching traffic sources: %w", err)
	}
	return results, nil
}

// DeviceBreakdown groups sessions by device type.
func DeviceBreakdown(db *gorm.DB, window timeframe.Window) ([]DeviceStat, error) {
	results := []DeviceStat{}
	err := db.Raw(`
        SELECT
            COALESCE(device_type, '') AS device_type,
            COUNT(*) AS sessions,
            COALESCE(SUM(CASE WHEN conversion = 1 THEN 1 ELSE 0 END), 0) AS conversions
        FROM sessions
        WHERE started_at >= ?
        GROUP BY COALESCE(device_type, '')
        ORDER BY sessions DESC, device_type ASC
    `, window.From).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching device breakdown: %w", err)
	}
	for i := range results {
		results[i].Label = DeviceLabel(results[i].DeviceType)
	}
	return results, nil
}

// BrowserBreakdown returns the ten most common browsers.
func BrowserBreakdown(db *gorm.DB, window timeframe.Window) ([]Breakdown, error) {
	results, err := breakdownBy(db, window, "browser")
	if err != nil {
		return nil, fmt.Errorf("error fetching browser breakdown: %w", err)
	}
	for i := range results {
		results[i].Label = DeviceLabel(results[i].Name)
	}
	return results, nil
}

// CountryBreakdown returns the ten most common countries with display names.
func CountryBreakdown(db *gorm.DB, window timeframe.Window) ([]Breakdown, error) {
	results, err := breakdownBy(db, window, "country")
	if err != nil {
		return nil, fmt.Errorf("error fetching country breakdown: %w", err)
	}
	for i := range results {
		results[i].Label = CountryLabel(results[i].Name)
	}
	return results, nil
}

// breakdownBy groups sessions on a fixed column name; column is never user input.
func breakdownBy(db *gorm.DB, window timeframe.Window, column string) ([]Breakdown, error) {
	results := []Breakdown{}
	query := fmt.Sprintf(`
        SELECT
            COALESCE(%s, '') AS name,
            COUNT(*) AS sessions,
            COALESCE(SUM(CASE WHEN conversion = 1 THEN 1 ELSE 0 END), 0) AS conversions
        FROM sessions
        WHERE started_at >= ?
        GROUP BY COALESCE(%s, '')
        ORDER BY sessions DESC, name ASC
        LIMIT ?
    `, column, column)
	if err := db.Raw(query, window.From, topLimit).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// TopReferrers groups sessions by referrer display name.
func TopReferrers(db *gorm.DB, window timeframe.Window) ([]ReferrerStat, error) {
	var rows []struct {
		Referrer string
		Sessions int64
	}
	err := db.Raw(`
        SELECT
            COALESCE(referrer, '') AS referrer,
            COUNT(*) AS sessions
        FROM sessions
        WHERE started_at >= ?
        GROUP BY COALESCE(referrer, '')
    `, window.From).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching referrers: %w", err)
	}

	counts := make(map[string]int64)
	for _, row := range rows {
		counts[referrers.FromURL(row.Referrer)] += row.Sessions
	}

	results := make([]ReferrerStat, 0, len(counts))
	for name, sessions := range counts {
		results = append(results, ReferrerStat{Referrer: name, Sessions: sessions})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Sessions != results[j].Sessions {
			return results[i].Sessions > results[j].Sessions
		}
		return results[i].Referrer < results[j].Referrer
	})
	if len(results) > topLimit {
		results = results[:topLimit]
	}
	return results, nil
}

// SessionRow is a session as listed in the admin view.
type SessionRow struct {
	ID              string `json:"id"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at"`
	DurationSeconds int    `json:"duration_seconds"`
	PageViews       int    `json:"page_views"`
	Bounce          bool   `json:"bounce"`
	Conversion      bool   `json:"conversion"`
	UTMSource       string `json:"utm_source"`
	UTMMedium       string `json:"utm_medium"`
	UTMCampaign     string `json:"utm_campaign"`
	DeviceType      string `json:"device_type"`
	Browser         string `json:"browser"`
	OS              string `json:"os"`
	Country         string `json:"country"`
	Referrer        string `json:"referrer"`
	LandingPage     string `json:"landing_page"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination computes the page count for total rows.
func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// SessionPage is the payload of the admin session view.
type SessionPage struct {
	Days           int             `json:"days"`
	Sessions       []SessionRow    `json:"sessions"`
	Pagination     Pagination      `json:"pagination"`
	Summary        SessionSummary  `json:"summary"`
	TrafficSources []TrafficSource `json:"traffic_sources"`
	Devices        []DeviceStat    `json:"devices"`
	Browsers       []Breakdown     `json:"browsers"`
	Countries      []Breakdown     `json:"countries"`
	Referrers      []ReferrerStat  `json:"referrers"`
}

// Sessions builds the admin session view. page starts at 1.
func Sessions(db *gorm.DB, window timeframe.Window, page, limit int) (*SessionPage, error) {
	var total int64
	if err := db.Raw(`SELECT COUNT(*) FROM sessions WHERE started_at >= ?`, window.From).Scan(&total).Error; err != nil {
		return nil, fmt.Errorf("error counting sessions: %w", err)
	}

	rows := []SessionRow{}
	err := db.Raw(`
        SELECT
            id,
            strftime('%Y-%m-%dT%H:%M:%SZ', started_at) AS started_at,
            COALESCE(strftime('%Y-%m-%dT%H:%M:%SZ', ended_at), '') AS ended_at,
            duration_seconds,
            page_views,
            bounce,
            conversion,
            COALESCE(utm_source, '') AS utm_source,
            COALESCE(utm_medium, '') AS utm_medium,
            COALESCE(utm_campaign, '') AS utm_campaign,
            COALESCE(device_type, '') AS device_type,
            COALESCE(browser, '') AS browser,
            COALESCE(os, '') AS os,
            COALESCE(country, '') AS country,
            COALESCE(referrer, '') AS referrer,
            COALESCE(landing_page, '') AS landing_page
        FROM sessions
        WHERE started_at >= ?
        ORDER BY started_at DESC, id ASC
        LIMIT ? OFFSET ?
    `, window.From, limit, (page-1)*limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching sessions: %w", err)
	}

	summary, err := SessionSummaryReport(db, window)
	if err != nil {
		return nil, err
	}
	sources, err := TrafficSources(db, window)
	if err != nil {
		return nil, err
	}
	devices, err := DeviceBreakdown(db, window)
	if err != nil {
		return nil, err
	}
	browsers, err := BrowserBreakdown(db, window)
	if err != nil {
		return nil, err
	}
	countryStats, err := CountryBreakdown(db, window)
	if err != nil {
		return nil, err
	}
	refs, err := TopReferrers(db, window)
	if err != nil {
		return nil, err
	}

	return &SessionPage{
		Days:           window.Days,
		Sessions:       rows,
		Pagination:     NewPagination(page, limit, total),
		Summary:        summary,
		TrafficSources: sources,
		Devices:        devices,
		Browsers:       browsers,
		Countries:      countryStats,
		Referrers:      refs,
	}, nil
}
